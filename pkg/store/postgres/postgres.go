// Package postgres is the PostgreSQL Store backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vango-go/vai-tutor/internal/idgen"
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Store persists conversations in PostgreSQL. Audio payloads live in the
// audio_clips table unless a BlobStore is attached.
type Store struct {
	db     *pgxpool.Pool
	blobs  store.BlobStore
	logger *slog.Logger
}

// Open connects, pings and migrates.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, logger), nil
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// WithBlobs stores audio payloads in b, keeping only the key in the database.
func (s *Store) WithBlobs(b store.BlobStore) *Store {
	s.blobs = b
	return s
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) CreateConversation(ctx context.Context, persona, title string) (store.Conversation, error) {
	if err := store.ValidatePersona(persona); err != nil {
		return store.Conversation{}, err
	}
	conv := store.Conversation{
		ID:      idgen.Conversation(),
		Persona: strings.TrimSpace(persona),
		Title:   strings.TrimSpace(title),
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO conversations (id, persona, title) VALUES ($1, $2, $3) RETURNING created_at`,
		conv.ID, conv.Persona, conv.Title,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return store.Conversation{}, core.Wrap(core.ErrPersistence, "insert conversation", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]store.Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, persona, title, created_at
		FROM conversations
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, core.Wrap(core.ErrPersistence, "query conversations", err)
	}
	defer rows.Close()

	out := []store.Conversation{}
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.Persona, &c.Title, &c.CreatedAt); err != nil {
			return nil, core.Wrap(core.ErrPersistence, "scan conversation", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(core.ErrPersistence, "iterate conversations", err)
	}
	return out, nil
}

func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]store.Turn, error) {
	exists, err := s.conversationExists(ctx, s.db, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ConversationNotFound(conversationID)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, question, answer, concept, summary, COALESCE(audio_id, ''), created_at
		FROM turns
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, core.Wrap(core.ErrPersistence, "query turns", err)
	}
	defer rows.Close()

	out := []store.Turn{}
	for rows.Next() {
		var t store.Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Question, &t.Answer, &t.Concept, &t.Summary, &t.AudioID, &t.CreatedAt); err != nil {
			return nil, core.Wrap(core.ErrPersistence, "scan turn", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(core.ErrPersistence, "iterate turns", err)
	}
	return out, nil
}

// AppendTurn writes the audio clip and the turn in one transaction. With a
// BlobStore attached the payload is uploaded first and removed again if the
// transaction does not commit.
func (s *Store) AppendTurn(ctx context.Context, req store.AppendTurnRequest) (store.AppendTurnResult, error) {
	if err := req.Validate(); err != nil {
		return store.AppendTurnResult{}, err
	}

	var result store.AppendTurnResult
	var blobKey string
	if len(req.Audio) > 0 {
		result.AudioID = idgen.Audio()
		if s.blobs != nil {
			blobKey = blobKeyFor(req.ConversationID, result.AudioID)
			if err := s.blobs.Put(ctx, blobKey, req.Audio, req.MimeType()); err != nil {
				return store.AppendTurnResult{}, core.Wrap(core.ErrPersistence, "upload audio", err)
			}
		}
	}

	committed := false
	defer func() {
		if blobKey != "" && !committed {
			if err := s.blobs.Delete(context.WithoutCancel(ctx), blobKey); err != nil {
				s.logger.Warn("orphaned audio blob", "key", blobKey, "error", err)
			}
		}
	}()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.AppendTurnResult{}, core.Wrap(core.ErrPersistence, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exists, err := s.conversationExists(ctx, tx, req.ConversationID)
	if err != nil {
		return store.AppendTurnResult{}, err
	}
	if !exists {
		return store.AppendTurnResult{}, store.ConversationNotFound(req.ConversationID)
	}

	if result.AudioID != "" {
		var data []byte
		var key *string
		if blobKey != "" {
			key = &blobKey
		} else {
			data = req.Audio
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO audio_clips (id, mime_type, data, storage_key, size_bytes) VALUES ($1, $2, $3, $4, $5)`,
			result.AudioID, req.MimeType(), data, key, int64(len(req.Audio)),
		); err != nil {
			return store.AppendTurnResult{}, core.Wrap(core.ErrPersistence, "insert audio clip", err)
		}
	}

	var audioID *string
	if result.AudioID != "" {
		audioID = &result.AudioID
	}
	result.TurnID = idgen.Turn()
	if _, err := tx.Exec(ctx, `
		INSERT INTO turns (id, conversation_id, question, answer, concept, summary, audio_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, result.TurnID, req.ConversationID, req.Question, req.Answer, req.Concept, req.Summary, audioID); err != nil {
		return store.AppendTurnResult{}, core.Wrap(core.ErrPersistence, "insert turn", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.AppendTurnResult{}, core.Wrap(core.ErrPersistence, "commit turn", err)
	}
	committed = true
	return result, nil
}

func (s *Store) GetAudio(ctx context.Context, audioID string) (store.AudioClip, error) {
	clip := store.AudioClip{ID: audioID}
	var key *string
	err := s.db.QueryRow(ctx,
		`SELECT mime_type, data, storage_key FROM audio_clips WHERE id = $1`,
		audioID,
	).Scan(&clip.MimeType, &clip.Data, &key)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.AudioClip{}, store.AudioNotFound(audioID)
	}
	if err != nil {
		return store.AudioClip{}, core.Wrap(core.ErrPersistence, "query audio clip", err)
	}

	if key != nil && *key != "" {
		if s.blobs == nil {
			return store.AudioClip{}, core.Wrap(core.ErrPersistence, "audio clip is stored externally but no blob store is configured", nil)
		}
		data, _, err := s.blobs.Get(ctx, *key)
		if err != nil {
			return store.AudioClip{}, core.Wrap(core.ErrPersistence, "download audio", err)
		}
		clip.Data = data
	}
	return clip, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) conversationExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, core.Wrap(core.ErrPersistence, "lookup conversation", err)
	}
	return true, nil
}

func blobKeyFor(conversationID, audioID string) string {
	return "conversations/" + conversationID + "/" + audioID
}
