// Package memory is an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-tutor/internal/idgen"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Store keeps everything in maps guarded by a single mutex.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	conversations map[string]store.Conversation
	turns         map[string][]store.Turn
	audio         map[string]store.AudioClip
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:           time.Now,
		conversations: make(map[string]store.Conversation),
		turns:         make(map[string][]store.Turn),
		audio:         make(map[string]store.AudioClip),
	}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) CreateConversation(_ context.Context, persona, title string) (store.Conversation, error) {
	if err := store.ValidatePersona(persona); err != nil {
		return store.Conversation{}, err
	}
	conv := store.Conversation{
		ID:        idgen.Conversation(),
		Persona:   strings.TrimSpace(persona),
		Title:     strings.TrimSpace(title),
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
	return conv, nil
}

func (s *Store) ListConversations(_ context.Context) ([]store.Conversation, error) {
	s.mu.RLock()
	out := make([]store.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) ListTurns(_ context.Context, conversationID string) ([]store.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, store.ConversationNotFound(conversationID)
	}
	turns := s.turns[conversationID]
	out := make([]store.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *Store) AppendTurn(_ context.Context, req store.AppendTurnRequest) (store.AppendTurnResult, error) {
	if err := req.Validate(); err != nil {
		return store.AppendTurnResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[req.ConversationID]; !ok {
		return store.AppendTurnResult{}, store.ConversationNotFound(req.ConversationID)
	}

	var result store.AppendTurnResult
	if len(req.Audio) > 0 {
		clip := store.AudioClip{
			ID:       idgen.Audio(),
			Data:     append([]byte(nil), req.Audio...),
			MimeType: req.MimeType(),
		}
		s.audio[clip.ID] = clip
		result.AudioID = clip.ID
	}

	turn := store.Turn{
		ID:             idgen.Turn(),
		ConversationID: req.ConversationID,
		Question:       req.Question,
		Answer:         req.Answer,
		Concept:        req.Concept,
		Summary:        req.Summary,
		AudioID:        result.AudioID,
		CreatedAt:      s.now().UTC(),
	}
	s.turns[req.ConversationID] = append(s.turns[req.ConversationID], turn)
	result.TurnID = turn.ID
	return result, nil
}

func (s *Store) GetAudio(_ context.Context, audioID string) (store.AudioClip, error) {
	s.mu.RLock()
	clip, ok := s.audio[audioID]
	s.mu.RUnlock()
	if !ok {
		return store.AudioClip{}, store.AudioNotFound(audioID)
	}
	clip.Data = append([]byte(nil), clip.Data...)
	return clip, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
