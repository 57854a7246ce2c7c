package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/gateway/apierror"
	"github.com/vango-go/vai-tutor/pkg/session"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// ErrClosed is returned by sends on a bridge that has shut down.
var ErrClosed = errors.New("live connection closed")

var errQueueFull = errors.New("live outbound queue full")

type Config struct {
	CaptureHandshakeTimeout time.Duration
	PlaybackTimeout         time.Duration
	MaxAudioBytes           int64
	PingInterval            time.Duration
	WriteTimeout            time.Duration
	OutboundBuffer          int
}

func (c Config) withDefaults() Config {
	if c.CaptureHandshakeTimeout <= 0 {
		c.CaptureHandshakeTimeout = 15 * time.Second
	}
	if c.PlaybackTimeout <= 0 {
		c.PlaybackTimeout = 2 * time.Minute
	}
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = 10 << 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 256
	}
	return c
}

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Controller is the part of *session.Session driven by the browser.
type Controller interface {
	Ask() session.AskOutcome
	Stop() bool
	Select(ctx context.Context, index int) (store.Turn, error)
	Events() <-chan session.Event
	Snapshot() session.State
}

// AudioRecorder counts audio bytes crossing the socket. *metrics.Metrics
// implements it.
type AudioRecorder interface {
	RecordLiveAudio(direction string, bytes int)
}

// Bridge owns one browser connection. It is the session's CaptureSource and
// Player, and forwards session events to the browser.
type Bridge struct {
	ws     wsConn
	cfg    Config
	logger *slog.Logger
	audio  AudioRecorder

	out    chan []byte
	ctx    context.Context
	cancel context.CancelCauseFunc

	capture *captureSource
	player  *player
}

// NewBridge wraps an upgraded connection. The bridge lives until ctx ends,
// Close is called or Run returns.
func NewBridge(ctx context.Context, ws wsConn, cfg Config, logger *slog.Logger, audio AudioRecorder) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancelCause(ctx)
	b := &Bridge{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		audio:  audio,
		out:    make(chan []byte, cfg.OutboundBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	b.capture = &captureSource{b: b}
	b.player = &player{b: b, waiting: make(map[string]chan struct{})}
	return b
}

// CaptureSource returns the browser microphone as a session capture source.
func (b *Bridge) CaptureSource() session.CaptureSource { return b.capture }

// Player returns the browser speakers as a session player.
func (b *Bridge) Player() session.Player { return b.player }

// Close ends the connection. It is safe to call more than once.
func (b *Bridge) Close(cause error) {
	b.cancel(cause)
}

// Warn sends a warning frame without waiting for it to be written.
func (b *Bridge) Warn(code, message string) error {
	data, err := json.Marshal(WarningFrame{Type: TypeWarning, Code: code, Message: message})
	if err != nil {
		return err
	}
	select {
	case b.out <- data:
		return nil
	case <-b.ctx.Done():
		return ErrClosed
	default:
		return errQueueFull
	}
}

// Run serves the connection until the browser goes away or the bridge is
// closed. The caller closes the session afterwards.
func (b *Bridge) Run(sess Controller, voiceID string) error {
	if err := b.send(HelloFrame{Type: TypeHello, State: sess.Snapshot(), VoiceID: voiceID}); err != nil {
		return err
	}
	if err := b.send(newGraphFrame(sess.Snapshot().Turns)); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		err := b.writeLoop()
		b.cancel(err)
		return err
	})
	g.Go(func() error {
		err := b.pumpEvents(sess)
		b.cancel(err)
		return err
	})
	g.Go(func() error {
		err := b.readLoop(sess)
		b.cancel(err)
		return err
	})
	err := g.Wait()
	if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	return err
}

func (b *Bridge) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case b.out <- data:
		return nil
	case <-b.ctx.Done():
		return ErrClosed
	}
}

func (b *Bridge) writeLoop() error {
	ping := time.NewTicker(b.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.flushOnShutdown()
			_ = b.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(b.cfg.WriteTimeout))
			_ = b.ws.Close()
			return nil
		case <-ping.C:
			if err := b.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(b.cfg.WriteTimeout)); err != nil {
				_ = b.ws.Close()
				return err
			}
		case data := <-b.out:
			if err := b.writeText(data); err != nil {
				_ = b.ws.Close()
				return err
			}
		}
	}
}

func (b *Bridge) writeText(data []byte) error {
	if err := b.ws.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout)); err != nil {
		return err
	}
	return b.ws.WriteMessage(websocket.TextMessage, data)
}

// flushOnShutdown writes what is already queued, within a short budget, so
// a final error or warning frame reaches the browser.
func (b *Bridge) flushOnShutdown() {
	deadline := time.Now().Add(min(100*time.Millisecond, b.cfg.WriteTimeout))
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case data := <-b.out:
			if err := b.writeText(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (b *Bridge) pumpEvents(sess Controller) error {
	events := sess.Events()
	for {
		select {
		case <-b.ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			frame, ok := frameForEvent(ev)
			if !ok {
				continue
			}
			if err := b.send(frame); err != nil {
				return nil
			}
			// The graph changes when a turn lands and again once it has ids.
			switch ev.(type) {
			case *session.TurnAddedEvent, *session.TurnRecordedEvent:
				if err := b.send(newGraphFrame(sess.Snapshot().Turns)); err != nil {
					return nil
				}
			}
		}
	}
}

func (b *Bridge) readLoop(sess Controller) error {
	for {
		messageType, data, err := b.ws.ReadMessage()
		if err != nil {
			if b.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if messageType == websocket.BinaryMessage {
			b.audioIn(len(data))
			b.capture.append(data)
			continue
		}

		msg, err := DecodeClientMessage(data)
		if err != nil {
			var de *DecodeError
			code := "bad_request"
			if errors.As(err, &de) {
				code = de.Code
			}
			_ = b.send(ErrorFrame{Type: "error", ErrorType: core.ErrInvalidRequest, Message: err.Error(), Code: code})
			continue
		}
		b.dispatch(sess, msg)
	}
}

func (b *Bridge) dispatch(sess Controller, msg ClientMessage) {
	switch msg.Type {
	case TypeAsk:
		outcome := sess.Ask()
		b.logger.Debug("live ask", "outcome", outcome.String())
	case TypeStop:
		sess.Stop()
	case TypeSelect:
		if _, err := sess.Select(b.ctx, *msg.Index); err != nil {
			ce, _ := apierror.FromError(err, "")
			_ = b.send(ErrorFrame{Type: "error", ErrorType: ce.Type, Message: ce.Message, Code: ce.Code})
		}
	case TypeCaptureReady:
		b.capture.ready(msg.MimeType)
	case TypeCaptureDenied:
		b.capture.denied(msg.Message)
	case TypeCaptureDone:
		b.capture.done()
	case TypePlaybackDone:
		b.player.done(msg.PlaybackID)
	}
}

func (b *Bridge) audioIn(n int) {
	if b.audio != nil {
		b.audio.RecordLiveAudio("in", n)
	}
}

func (b *Bridge) audioOut(n int) {
	if b.audio != nil {
		b.audio.RecordLiveAudio("out", n)
	}
}
