package session

import (
	"fmt"

	"github.com/vango-go/vai-tutor/pkg/store"
)

// Status is the position of a session in the ask pipeline.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusTranscribing
	StatusThinking
	StatusSpeaking
	StatusError
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusRecording:    "recording",
	StatusTranscribing: "transcribing",
	StatusThinking:     "thinking",
	StatusSpeaking:     "speaking",
	StatusError:        "error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// Busy reports whether a pipeline run owns the session. New asks are
// rejected while busy; recording is not busy because an ask stops it.
func (s Status) Busy() bool {
	return s == StatusTranscribing || s == StatusThinking || s == StatusSpeaking
}

// State is a point-in-time copy of everything a view renders.
type State struct {
	Status         Status       `json:"status"`
	Transcript     string       `json:"transcript"`
	Response       string       `json:"response"`
	Error          string       `json:"error,omitempty"`
	Turns          []store.Turn `json:"turns"`
	HasInteracted  bool         `json:"has_interacted"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Persona        string       `json:"persona"`
}

// AskOutcome reports what Ask did.
type AskOutcome int

const (
	// AskRejected means a pipeline run was already in flight.
	AskRejected AskOutcome = iota
	// AskStarted means recording began.
	AskStarted
	// AskStopped means an active recording was stopped.
	AskStopped
)

func (o AskOutcome) String() string {
	switch o {
	case AskStarted:
		return "started"
	case AskStopped:
		return "stopped"
	default:
		return "rejected"
	}
}
