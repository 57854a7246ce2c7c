// Package voice turns recordings into text and answers into speech.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core/voice/stt"
	"github.com/vango-go/vai-tutor/pkg/core/voice/tts"
)

// ErrNoProvider is returned when a stage has no provider configured.
var ErrNoProvider = errors.New("voice provider not configured")

// Pipeline handles STT and TTS for tutor turns.
type Pipeline struct {
	sttProvider stt.Provider
	ttsProvider tts.Provider
	sttOpts     stt.TranscribeOptions
	ttsOpts     tts.SynthesizeOptions
}

// NewPipeline creates a pipeline backed by ElevenLabs for both directions.
func NewPipeline(elevenLabsAPIKey string) *Pipeline {
	return &Pipeline{
		sttProvider: stt.NewElevenLabs(elevenLabsAPIKey),
		ttsProvider: tts.NewElevenLabs(elevenLabsAPIKey),
	}
}

// NewPipelineWithProviders creates a new voice pipeline with custom providers.
// Either may be nil.
func NewPipelineWithProviders(sttProvider stt.Provider, ttsProvider tts.Provider) *Pipeline {
	return &Pipeline{
		sttProvider: sttProvider,
		ttsProvider: ttsProvider,
	}
}

// WithTranscribeOptions sets the defaults applied to every transcription.
func (p *Pipeline) WithTranscribeOptions(opts stt.TranscribeOptions) *Pipeline {
	p.sttOpts = opts
	return p
}

// WithSynthesizeOptions sets the defaults applied to every synthesis. Voice
// is always taken from the call.
func (p *Pipeline) WithSynthesizeOptions(opts tts.SynthesizeOptions) *Pipeline {
	p.ttsOpts = opts
	return p
}

// STTProvider returns the current STT provider.
func (p *Pipeline) STTProvider() stt.Provider {
	return p.sttProvider
}

// TTSProvider returns the current TTS provider.
func (p *Pipeline) TTSProvider() tts.Provider {
	return p.ttsProvider
}

// Transcribe converts a finished recording to trimmed text.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if p.sttProvider == nil {
		return "", ErrNoProvider
	}
	opts := p.sttOpts
	opts.MimeType = mimeType
	opts.Format = FormatFromMimeType(mimeType)

	trans, err := p.sttProvider.Transcribe(ctx, bytes.NewReader(audio), opts)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(trans.Text), nil
}

// Synthesize renders text in the given voice.
func (p *Pipeline) Synthesize(ctx context.Context, text, voiceID string) (*tts.Synthesis, error) {
	if p.ttsProvider == nil {
		return nil, ErrNoProvider
	}
	opts := p.ttsOpts
	opts.Voice = voiceID

	synth, err := p.ttsProvider.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return synth, nil
}

// SynthesizeStream renders text in the given voice, chunk by chunk.
func (p *Pipeline) SynthesizeStream(ctx context.Context, text, voiceID string) (*tts.SynthesisStream, error) {
	if p.ttsProvider == nil {
		return nil, ErrNoProvider
	}
	opts := p.ttsOpts
	opts.Voice = voiceID

	stream, err := p.ttsProvider.SynthesizeStream(ctx, text, opts)
	if err != nil {
		return nil, fmt.Errorf("synthesize stream: %w", err)
	}
	return stream, nil
}

// FormatFromMimeType maps a recording MIME type to a short format name.
// Parameters such as "; codecs=opus" are ignored.
func FormatFromMimeType(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/mp4", "video/mp4":
		return "mp4"
	default:
		return ""
	}
}
