// Package storetest is a behavioural suite every store.Store backend must
// pass.
package storetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateAndListConversationsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateConversation(ctx, "spongebob", "first")
		require.NoError(t, err)
		second, err := s.CreateConversation(ctx, "dora", "")
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)

		convs, err := s.ListConversations(ctx)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		require.Equal(t, second.ID, convs[0].ID)
		require.Equal(t, first.ID, convs[1].ID)
		require.Equal(t, "spongebob", convs[1].Persona)
		require.Equal(t, "first", convs[1].Title)
	})

	t.Run("CreateConversationRequiresPersona", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateConversation(context.Background(), "", "untitled")
		require.True(t, core.IsType(err, core.ErrValidation), "got %v", err)
	})

	t.Run("AppendTurnsKeepsInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.CreateConversation(ctx, "peter", "")
		require.NoError(t, err)

		questions := []string{"What is water?", "Why is the sky blue?", "How do magnets work?"}
		for i, q := range questions {
			res, err := s.AppendTurn(ctx, store.AppendTurnRequest{
				ConversationID: conv.ID,
				Question:       q,
				Answer:         "answer " + q,
				Concept:        "Concept",
				Summary:        "summary",
			})
			require.NoError(t, err, "turn %d", i)
			require.NotEmpty(t, res.TurnID)
			require.Empty(t, res.AudioID)
		}

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, turns, len(questions))
		for i, turn := range turns {
			require.Equal(t, questions[i], turn.Question)
			require.Equal(t, conv.ID, turn.ConversationID)
			require.Empty(t, turn.AudioID)
		}
	})

	t.Run("InvalidAppendCreatesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.CreateConversation(ctx, "spongebob", "")
		require.NoError(t, err)

		_, err = s.AppendTurn(ctx, store.AppendTurnRequest{
			ConversationID: conv.ID,
			Question:       "What is water?",
			Answer:         "Water is H2O.",
			Concept:        "",
			Summary:        "Water composition",
			Audio:          []byte("ID3-audio"),
		})
		require.True(t, core.IsType(err, core.ErrValidation), "got %v", err)

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Empty(t, turns)
	})

	t.Run("AppendToUnknownConversationIsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendTurn(context.Background(), store.AppendTurnRequest{
			ConversationID: "conv_missing",
			Question:       "q",
			Answer:         "a",
			Concept:        "c",
			Summary:        "s",
		})
		require.True(t, core.IsType(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("AudioRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.CreateConversation(ctx, "dora", "")
		require.NoError(t, err)

		payload := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 512)
		res, err := s.AppendTurn(ctx, store.AppendTurnRequest{
			ConversationID: conv.ID,
			Question:       "q",
			Answer:         "a",
			Concept:        "c",
			Summary:        "s",
			Audio:          payload,
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.AudioID)

		clip, err := s.GetAudio(ctx, res.AudioID)
		require.NoError(t, err)
		require.Equal(t, payload, clip.Data)
		require.Equal(t, store.DefaultAudioMimeType, clip.MimeType)

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		require.Equal(t, res.AudioID, turns[0].AudioID)
	})

	t.Run("AudioKeepsExplicitMimeType", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		conv, err := s.CreateConversation(ctx, "dora", "")
		require.NoError(t, err)

		res, err := s.AppendTurn(ctx, store.AppendTurnRequest{
			ConversationID: conv.ID,
			Question:       "q",
			Answer:         "a",
			Concept:        "c",
			Summary:        "s",
			Audio:          []byte("RIFF0000WAVE"),
			AudioMimeType:  "audio/wav",
		})
		require.NoError(t, err)

		clip, err := s.GetAudio(ctx, res.AudioID)
		require.NoError(t, err)
		require.Equal(t, "audio/wav", clip.MimeType)
	})

	t.Run("GetUnknownAudioIsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAudio(context.Background(), "aud_missing")
		require.True(t, core.IsType(err, core.ErrNotFound), "got %v", err)
	})
}
