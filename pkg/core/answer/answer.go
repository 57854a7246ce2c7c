// Package answer produces in-character, streamed answers to a learner's
// question. A Generator builds the prompt (persona, prior exchanges, web
// context) and hands it to a model Backend.
package answer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/persona"
)

// Exchange is one prior question/answer pair, oldest first in a history.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Request struct {
	Question string
	Persona  persona.Persona
	History  []Exchange
}

// Stream yields answer text chunks. Next returns io.EOF after the last
// chunk. Close releases the underlying connection and is safe to call at any
// point.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Backend streams a completion for a prepared prompt.
type Backend interface {
	Name() string
	Stream(ctx context.Context, prompt Prompt) (Stream, error)
}

// ContextSource supplies web context for a question. It must not fail;
// search.Augmenter is the usual implementation.
type ContextSource interface {
	Context(ctx context.Context, question string) string
}

const DefaultMaxTokens = 1024

type Generator struct {
	backend   Backend
	web       ContextSource
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator wires a backend with an optional context source.
func NewGenerator(backend Backend, web ContextSource, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		backend:   backend,
		web:       web,
		maxTokens: DefaultMaxTokens,
		logger:    logger,
	}
}

func (g *Generator) WithMaxTokens(n int) *Generator {
	if n > 0 {
		g.maxTokens = n
	}
	return g
}

// Answer starts streaming an answer to req.
func (g *Generator) Answer(ctx context.Context, req Request) (Stream, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, core.NewValidationError("question is required", "question")
	}
	if g.backend == nil {
		return nil, core.Wrap(core.ErrAnswerGeneration, "no answer backend configured", nil)
	}

	webContext := noWebContext
	if g.web != nil {
		webContext = g.web.Context(ctx, req.Question)
	}
	prompt := BuildPrompt(req, webContext, g.maxTokens)

	g.logger.Debug("answer requested",
		"backend", g.backend.Name(),
		"persona", req.Persona.ID,
		"history", len(req.History),
	)
	stream, err := g.backend.Stream(ctx, prompt)
	if err != nil {
		return nil, core.Wrap(core.ErrAnswerGeneration, g.backend.Name()+" stream", err)
	}
	return stream, nil
}
