package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// CaptureSource acquires the microphone. Start blocks until access is
// granted or denied and must honour ctx.
type CaptureSource interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture is an acquired recording. Stop ends it, releases the device and
// returns what was recorded. It is called exactly once.
type Capture interface {
	Stop(ctx context.Context) (Recording, error)
}

type Recording struct {
	Data     []byte
	MimeType string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Answerer streams an in-character answer. *answer.Generator implements it.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (answer.Stream, error)
}

// Audio is synthesized speech.
type Audio struct {
	Data     []byte
	MimeType string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// Playback is what a Player renders. Without Data the player speaks Text
// with its fallback voice.
type Playback struct {
	Data     []byte
	MimeType string
	Text     string
	Replay   bool
}

// Player renders a playback and blocks until it has finished or ctx ends.
type Player interface {
	Play(ctx context.Context, p Playback) error
}

// TurnStore is the part of store.Store a session needs.
type TurnStore interface {
	CreateConversation(ctx context.Context, persona, title string) (store.Conversation, error)
	ListTurns(ctx context.Context, conversationID string) ([]store.Turn, error)
	AppendTurn(ctx context.Context, req store.AppendTurnRequest) (store.AppendTurnResult, error)
	GetAudio(ctx context.Context, audioID string) (store.AudioClip, error)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Observer receives per-stage timings. *metrics.Metrics implements it.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Stage names reported to the Observer.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageAnswer     = "answer"
	StageSynthesize = "synthesize"
	StagePlayback   = "playback"
	StagePersist    = "persist"
)

const (
	DefaultRecordingTimeout = 10 * time.Second
	DefaultErrorRecovery    = 3 * time.Second
	DefaultPersistTimeout   = 15 * time.Second
	DefaultEventBuffer      = 128
)

type Config struct {
	// Persona speaks the answers. Its VoiceID selects synthesized speech;
	// an empty VoiceID uses the player's fallback voice.
	Persona persona.Persona
	// ConversationID resumes a stored conversation. Empty means one is
	// created with the first persisted turn.
	ConversationID string

	RecordingTimeout time.Duration
	ErrorRecovery    time.Duration
	PersistTimeout   time.Duration
	// PersistOnSynthesisFailure stores the text-only turn when synthesis
	// fails instead of dropping it.
	PersistOnSynthesisFailure bool
	EventBuffer               int
}

func (c Config) withDefaults() Config {
	if c.RecordingTimeout <= 0 {
		c.RecordingTimeout = DefaultRecordingTimeout
	}
	if c.ErrorRecovery <= 0 {
		c.ErrorRecovery = DefaultErrorRecovery
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	return c
}

// Dependencies wires a session. Capture, Transcriber and Answerer are
// required. Without Synthesizer every reply uses the fallback voice; without
// Player speaking ends as soon as the reply is ready; without Store turns
// live only in memory.
type Dependencies struct {
	Config Config

	Capture     CaptureSource
	Transcriber Transcriber
	Answerer    Answerer
	Synthesizer Synthesizer
	Player      Player
	Store       TurnStore

	Clock    Clock
	Observer Observer
	Logger   *slog.Logger
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Capture == nil {
		errs = append(errs, errors.New("capture source is required"))
	}
	if d.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if d.Answerer == nil {
		errs = append(errs, errors.New("answerer is required"))
	}
	return errors.Join(errs...)
}
