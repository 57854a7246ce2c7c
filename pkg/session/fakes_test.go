package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/store"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due callbacks on the caller's
// goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeCaptureSource struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	rec      Recording
	starts   int
	captures []*fakeCapture
}

func (f *fakeCaptureSource) Start(ctx context.Context) (Capture, error) {
	f.mu.Lock()
	f.starts++
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	c := &fakeCapture{rec: f.rec}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeCaptureSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeCaptureSource) acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

func (f *fakeCaptureSource) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.captures {
		n += c.stopCount()
	}
	return n
}

type fakeCapture struct {
	mu    sync.Mutex
	rec   Recording
	stops int
}

func (c *fakeCapture) Stop(context.Context) (Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return c.rec, nil
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeTranscriber struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

// Transcribe returns texts in order, repeating the last one.
func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	i := min(f.calls, len(f.texts)) - 1
	return f.texts[i], nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnswerer struct {
	mu       sync.Mutex
	replies  [][]string
	err      error
	gate     chan struct{}
	requests []answer.Request
}

func (f *fakeAnswerer) Answer(ctx context.Context, req answer.Request) (answer.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	gate, err := f.gate, f.err
	var chunks []string
	if len(f.replies) > 0 {
		chunks = f.replies[min(n, len(f.replies))-1]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &chunkStream{chunks: append([]string(nil), chunks...)}, nil
}

func (f *fakeAnswerer) requestsSnapshot() []answer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]answer.Request(nil), f.requests...)
}

type chunkStream struct {
	chunks []string
}

func (s *chunkStream) Next() (string, error) {
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkStream) Close() error { return nil }

type fakeSynthesizer struct {
	mu     sync.Mutex
	audio  Audio
	err    error
	voices []string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, voiceID string) (Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, voiceID)
	if f.err != nil {
		return Audio{}, f.err
	}
	return f.audio, nil
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.voices)
}

type fakePlayer struct {
	mu    sync.Mutex
	gate  chan struct{}
	plays []Playback
}

func (p *fakePlayer) Play(ctx context.Context, pb Playback) error {
	p.mu.Lock()
	p.plays = append(p.plays, pb)
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *fakePlayer) playsSnapshot() []Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Playback(nil), p.plays...)
}

// failingStore accepts conversations but rejects every turn.
type failingStore struct {
	TurnStore
	mu    sync.Mutex
	calls int
	err   error
}

func (f *failingStore) AppendTurn(context.Context, store.AppendTurnRequest) (store.AppendTurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return store.AppendTurnResult{}, f.err
}

func (f *failingStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stageRecorder struct {
	mu     sync.Mutex
	stages map[string]int
}

func (r *stageRecorder) ObserveStage(stage string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = map[string]int{}
	}
	r.stages[stage]++
}

func (r *stageRecorder) count(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stages[stage]
}

func waitFor(t *testing.T, s *Session, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.Snapshot()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state = %+v", what, st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitStatus(t *testing.T, s *Session, want Status) State {
	t.Helper()
	return waitFor(t, s, "status "+want.String(), func(st State) bool { return st.Status == want })
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
