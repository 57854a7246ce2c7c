// Package store defines the durable record of tutoring conversations: the
// conversations themselves, their ordered turns and the synthesized audio
// clips the turns reference.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core"
)

// DefaultAudioMimeType is used when a clip is stored without a MIME type.
const DefaultAudioMimeType = "audio/mpeg"

// Conversation groups the turns of one tutoring session.
type Conversation struct {
	ID        string    `json:"id"`
	Persona   string    `json:"persona"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one completed question/answer exchange. Turns are immutable once
// stored.
type Turn struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Concept        string    `json:"concept"`
	Summary        string    `json:"summary"`
	AudioID        string    `json:"audio_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Persisted reports whether the turn has been assigned a store id.
func (t Turn) Persisted() bool {
	return t.ID != ""
}

// AudioClip is the synthesized speech for a turn.
type AudioClip struct {
	ID       string `json:"id"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// AppendTurnRequest carries a completed turn and its optional audio.
type AppendTurnRequest struct {
	ConversationID string
	Question       string
	Answer         string
	Concept        string
	Summary        string
	Audio          []byte
	AudioMimeType  string
}

// AppendTurnResult identifies what AppendTurn created. AudioID is empty when
// no audio was supplied.
type AppendTurnResult struct {
	TurnID  string `json:"turn_id"`
	AudioID string `json:"audio_id,omitempty"`
}

// Store is the persistence contract. Implementations must create the audio
// clip before the turn referencing it and must create nothing when the
// request fails validation.
type Store interface {
	CreateConversation(ctx context.Context, persona, title string) (Conversation, error)
	// ListConversations returns conversations newest first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// ListTurns returns the turns of a conversation oldest first.
	ListTurns(ctx context.Context, conversationID string) ([]Turn, error)
	AppendTurn(ctx context.Context, req AppendTurnRequest) (AppendTurnResult, error)
	GetAudio(ctx context.Context, audioID string) (AudioClip, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Validate checks the fields every persisted turn must carry.
func (r AppendTurnRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return core.NewValidationError("conversation id is required", "conversation_id")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"question", r.Question},
		{"answer", r.Answer},
		{"concept", r.Concept},
		{"summary", r.Summary},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return core.NewValidationError(f.name+" is required", f.name)
		}
	}
	return nil
}

// MimeType returns the audio MIME type, defaulted.
func (r AppendTurnRequest) MimeType() string {
	if mt := strings.TrimSpace(r.AudioMimeType); mt != "" {
		return mt
	}
	return DefaultAudioMimeType
}

// ValidatePersona checks the persona argument of CreateConversation.
func ValidatePersona(persona string) error {
	if strings.TrimSpace(persona) == "" {
		return core.NewValidationError("persona is required", "persona")
	}
	return nil
}

// ConversationNotFound is the error returned for an unknown conversation id.
func ConversationNotFound(id string) error {
	return &core.Error{Type: core.ErrNotFound, Message: "conversation " + id + " not found", Code: "conversation_not_found"}
}

// AudioNotFound is the error returned for an unknown audio id.
func AudioNotFound(id string) error {
	return &core.Error{Type: core.ErrNotFound, Message: "audio clip " + id + " not found", Code: "audio_not_found"}
}

// BlobStore holds audio payloads outside the relational store.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}
