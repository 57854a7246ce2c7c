// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
	"sync"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to a complete audio clip.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// SynthesizeStream converts text to audio delivered in chunks as it is
	// generated.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice  string // Provider voice identifier
	Model  string // Provider model
	Format string // Provider output format, e.g. "mp3_44100_128"
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio    []byte
	MimeType string
}

// SynthesisStream provides streaming audio output. Chunks is closed when the
// provider is done; Err is meaningful after that.
type SynthesisStream struct {
	MimeType string

	chunks    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func NewSynthesisStream(mimeType string) *SynthesisStream {
	return &SynthesisStream{
		MimeType: mimeType,
		chunks:   make(chan []byte, 100),
		done:     make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *SynthesisStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops delivery. It is safe to call more than once.
func (s *SynthesisStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Done is closed by Close.
func (s *SynthesisStream) Done() <-chan struct{} {
	return s.done
}

// SetError records the terminal error.
func (s *SynthesisStream) SetError(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Send delivers a chunk. Returns false if the stream was closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel to signal completion.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
}
