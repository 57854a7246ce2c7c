package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vango-go/vai-tutor/pkg/session"
)

// player sends play frames and blocks until the browser reports
// playback.done. A browser that never answers is given PlaybackTimeout.
type player struct {
	b *Bridge

	mu      sync.Mutex
	waiting map[string]chan struct{}
}

func (p *player) Play(ctx context.Context, pb session.Playback) error {
	id := "pb_" + strings.ToLower(ulid.Make().String())
	done := make(chan struct{})
	p.mu.Lock()
	p.waiting[id] = done
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, id)
		p.mu.Unlock()
	}()

	frame := PlayFrame{
		Type:       TypePlay,
		PlaybackID: id,
		Text:       pb.Text,
		Replay:     pb.Replay,
	}
	if len(pb.Data) > 0 {
		frame.Audio = pb.Data
		frame.MimeType = pb.MimeType
	}
	if err := p.b.send(frame); err != nil {
		return err
	}
	p.b.audioOut(len(pb.Data))

	timer := time.NewTimer(p.b.cfg.PlaybackTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		p.b.logger.Warn("playback.done not received", "playback_id", id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.b.ctx.Done():
		return ErrClosed
	}
}

func (p *player) done(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.waiting[id]; ok {
		close(ch)
		delete(p.waiting, id)
	}
}
