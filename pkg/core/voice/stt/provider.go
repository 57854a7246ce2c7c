// Package stt provides speech-to-text functionality.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts a complete recording to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model    string // Provider-specific model
	Language string // Language code
	Format   string // Audio format hint (wav, mp3, webm, ...)
	MimeType string // MIME type of the recording, if known
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string  // Full transcribed text
	Language string  // Detected or specified language
	Duration float64 // Audio duration in seconds
	Words    []Word  // Word-level details, when the provider returns them
}

// Word represents a single transcribed word with timing.
type Word struct {
	Word    string
	Start   float64
	End     float64
	Speaker string
}
