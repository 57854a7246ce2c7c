// Package live bridges a browser WebSocket to a server-side tutor session.
// The browser owns the microphone and the speakers: the server asks it to
// start and stop capturing, receives the recording as binary frames, and
// sends replies back as play frames.
package live

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/graph"
	"github.com/vango-go/vai-tutor/pkg/session"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Client frame types.
const (
	TypeAsk           = "ask"
	TypeStop          = "stop"
	TypeSelect        = "select"
	TypeCaptureReady  = "capture.ready"
	TypeCaptureDenied = "capture.denied"
	TypeCaptureDone   = "capture.done"
	TypePlaybackDone  = "playback.done"
)

// Server frame types not derived from session events.
const (
	TypeHello        = "hello"
	TypeGraph        = "graph"
	TypeCaptureStart = "capture.start"
	TypeCaptureStop  = "capture.stop"
	TypePlay         = "play"
	TypeWarning      = "warning"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientMessage is any JSON frame sent by the browser. Fields other than
// Type are meaningful only for the types that use them.
type ClientMessage struct {
	Type string `json:"type"`

	// select
	Index *int `json:"index,omitempty"`

	// capture.ready
	MimeType string `json:"mime_type,omitempty"`

	// capture.denied
	Message string `json:"message,omitempty"`

	// playback.done
	PlaybackID string `json:"playback_id,omitempty"`
}

// DecodeClientMessage parses and checks one text frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, badRequest("invalid json frame", "")
	}
	msg.Type = strings.TrimSpace(msg.Type)

	switch msg.Type {
	case TypeAsk, TypeStop, TypeCaptureReady, TypeCaptureDenied, TypeCaptureDone:
	case TypeSelect:
		if msg.Index == nil {
			return ClientMessage{}, badRequest("index is required", "index")
		}
		if *msg.Index < 0 {
			return ClientMessage{}, badRequest("index must be >= 0", "index")
		}
	case TypePlaybackDone:
		if strings.TrimSpace(msg.PlaybackID) == "" {
			return ClientMessage{}, badRequest("playback_id is required", "playback_id")
		}
	case "":
		return ClientMessage{}, badRequest("type is required", "type")
	default:
		return ClientMessage{}, &DecodeError{Code: "unsupported", Message: "unsupported frame type", Param: "type"}
	}
	return msg, nil
}

type HelloFrame struct {
	Type    string        `json:"type"`
	State   session.State `json:"state"`
	VoiceID string        `json:"voice_id,omitempty"`
}

type GraphFrame struct {
	Type    string       `json:"type"`
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
	Mermaid string       `json:"mermaid"`
}

func newGraphFrame(turns []store.Turn) GraphFrame {
	g := graph.Build(turns)
	return GraphFrame{Type: TypeGraph, Nodes: g.Nodes, Edges: g.Edges, Mermaid: g.Mermaid()}
}

type StateFrame struct {
	Type string         `json:"type"`
	From session.Status `json:"from"`
	To   session.Status `json:"to"`
}

type TextFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ResponseDoneFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Concept string `json:"concept"`
	Summary string `json:"summary"`
}

type TurnFrame struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Turn  store.Turn `json:"turn"`
}

type TurnRecordedFrame struct {
	Type           string `json:"type"`
	Index          int    `json:"index"`
	TurnID         string `json:"turn_id"`
	AudioID        string `json:"audio_id,omitempty"`
	ConversationID string `json:"conversation_id"`
}

type ErrorFrame struct {
	Type      string         `json:"type"`
	ErrorType core.ErrorType `json:"error_type"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
}

type ControlFrame struct {
	Type string `json:"type"`
}

// PlayFrame asks the browser to play Audio, or to speak Text with its own
// voice when Audio is empty. The browser answers with playback.done.
type PlayFrame struct {
	Type       string `json:"type"`
	PlaybackID string `json:"playback_id"`
	MimeType   string `json:"mime_type,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	Text       string `json:"text,omitempty"`
	Replay     bool   `json:"replay,omitempty"`
}

type WarningFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// frameForEvent maps a session event onto its wire frame.
func frameForEvent(ev session.Event) (any, bool) {
	switch e := ev.(type) {
	case *session.StateChangedEvent:
		return StateFrame{Type: e.EventType(), From: e.From, To: e.To}, true
	case *session.TranscriptEvent:
		return TextFrame{Type: e.EventType(), Text: e.Text}, true
	case *session.ResponseDeltaEvent:
		return TextFrame{Type: e.EventType(), Text: e.Text}, true
	case *session.ResponseDoneEvent:
		return ResponseDoneFrame{Type: e.EventType(), Text: e.Text, Concept: e.Concept, Summary: e.Summary}, true
	case *session.TurnAddedEvent:
		return TurnFrame{Type: e.EventType(), Index: e.Index, Turn: e.Turn}, true
	case *session.SelectedEvent:
		return TurnFrame{Type: e.EventType(), Index: e.Index, Turn: e.Turn}, true
	case *session.TurnRecordedEvent:
		return TurnRecordedFrame{
			Type:           e.EventType(),
			Index:          e.Index,
			TurnID:         e.TurnID,
			AudioID:        e.AudioID,
			ConversationID: e.ConversationID,
		}, true
	case *session.ErrorEvent:
		return ErrorFrame{Type: e.EventType(), ErrorType: e.Type, Message: e.Message}, true
	default:
		return nil, false
	}
}
