package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vango-go/vai-tutor/pkg/session"
)

var (
	errCaptureTimeout  = errors.New("browser did not answer capture.start")
	errCaptureTooLarge = errors.New("recording exceeds the audio size limit")
)

// captureSource turns capture.start/capture.ready/capture.done frames into
// the session's blocking capture contract. At most one capture is active.
type captureSource struct {
	b *Bridge

	mu     sync.Mutex
	active *wsCapture
}

type wsCapture struct {
	src *captureSource

	mu       sync.Mutex
	replied  bool
	reply    chan error
	finished chan struct{}
	mimeType string
	data     []byte
	overflow bool
}

func (s *captureSource) Start(ctx context.Context) (session.Capture, error) {
	c := &wsCapture{
		src:      s,
		reply:    make(chan error, 1),
		finished: make(chan struct{}),
	}
	s.mu.Lock()
	s.active = c
	s.mu.Unlock()

	if err := s.b.send(ControlFrame{Type: TypeCaptureStart}); err != nil {
		s.detach(c)
		return nil, err
	}

	timer := time.NewTimer(s.b.cfg.CaptureHandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-c.reply:
		if err != nil {
			s.detach(c)
			return nil, err
		}
		return c, nil
	case <-timer.C:
		s.abandon(c)
		return nil, errCaptureTimeout
	case <-ctx.Done():
		s.abandon(c)
		return nil, ctx.Err()
	case <-s.b.ctx.Done():
		s.detach(c)
		return nil, ErrClosed
	}
}

// abandon gives up on a capture the browser may still grant, telling it to
// release the microphone if it does.
func (s *captureSource) abandon(c *wsCapture) {
	s.detach(c)
	_ = s.b.send(ControlFrame{Type: TypeCaptureStop})
}

func (s *captureSource) detach(c *wsCapture) {
	s.mu.Lock()
	if s.active == c {
		s.active = nil
	}
	s.mu.Unlock()
}

func (s *captureSource) current() *wsCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *captureSource) ready(mimeType string) {
	if c := s.current(); c != nil {
		c.answer(strings.TrimSpace(mimeType), nil)
	}
}

func (s *captureSource) denied(message string) {
	if message = strings.TrimSpace(message); message == "" {
		message = "permission denied"
	}
	if c := s.current(); c != nil {
		c.answer("", fmt.Errorf("browser denied capture: %s", message))
	}
}

func (s *captureSource) append(chunk []byte) {
	if c := s.current(); c != nil {
		c.append(chunk, s.b.cfg.MaxAudioBytes)
	}
}

func (s *captureSource) done() {
	if c := s.current(); c != nil {
		c.finish()
	}
}

func (c *wsCapture) answer(mimeType string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replied {
		return
	}
	c.replied = true
	c.mimeType = mimeType
	c.reply <- err
}

func (c *wsCapture) append(chunk []byte, limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.replied || c.overflow {
		return
	}
	if int64(len(c.data)+len(chunk)) > limit {
		c.overflow = true
		c.data = nil
		return
	}
	c.data = append(c.data, chunk...)
}

func (c *wsCapture) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.finished:
	default:
		close(c.finished)
	}
}

// Stop asks the browser to stop recording and waits for it to flush the
// remaining audio, bounded by the handshake timeout.
func (c *wsCapture) Stop(ctx context.Context) (session.Recording, error) {
	defer c.src.detach(c)
	b := c.src.b
	if err := b.send(ControlFrame{Type: TypeCaptureStop}); err != nil {
		return session.Recording{}, err
	}

	timer := time.NewTimer(b.cfg.CaptureHandshakeTimeout)
	defer timer.Stop()
	select {
	case <-c.finished:
	case <-timer.C:
		b.logger.Warn("capture.done not received, using partial recording")
	case <-ctx.Done():
		return session.Recording{}, ctx.Err()
	case <-b.ctx.Done():
		return session.Recording{}, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overflow {
		return session.Recording{}, errCaptureTooLarge
	}
	rec := session.Recording{Data: c.data, MimeType: c.mimeType}
	if rec.MimeType == "" && len(rec.Data) > 0 {
		rec.MimeType = mimetype.Detect(rec.Data).String()
	}
	return rec, nil
}
