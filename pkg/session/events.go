package session

import (
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Event is anything a session reports to its view.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

type StateChangedEvent struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state" }

// TranscriptEvent carries the transcribed question.
type TranscriptEvent struct {
	Text string `json:"text"`
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// ResponseDeltaEvent carries the whole preview so far, tags included.
type ResponseDeltaEvent struct {
	Text string `json:"text"`
}

func (e *ResponseDeltaEvent) EventType() string { return "response.delta" }

type ResponseDoneEvent struct {
	Text    string `json:"text"`
	Concept string `json:"concept"`
	Summary string `json:"summary"`
}

func (e *ResponseDoneEvent) EventType() string { return "response.done" }

// TurnAddedEvent is emitted when a completed turn joins the in-memory list,
// before it is persisted.
type TurnAddedEvent struct {
	Index int        `json:"index"`
	Turn  store.Turn `json:"turn"`
}

func (e *TurnAddedEvent) EventType() string { return "turn.added" }

// TurnRecordedEvent is emitted once the store has accepted a turn.
type TurnRecordedEvent struct {
	Index          int    `json:"index"`
	TurnID         string `json:"turn_id"`
	AudioID        string `json:"audio_id,omitempty"`
	ConversationID string `json:"conversation_id"`
}

func (e *TurnRecordedEvent) EventType() string { return "turn.recorded" }

type ErrorEvent struct {
	Type    core.ErrorType `json:"type"`
	Message string         `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SelectedEvent is emitted when a past turn is restored into view.
type SelectedEvent struct {
	Index int        `json:"index"`
	Turn  store.Turn `json:"turn"`
}

func (e *SelectedEvent) EventType() string { return "selected" }
