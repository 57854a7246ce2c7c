// Package search supplies web context for answer generation. Search is
// best-effort: every failure degrades to a short "no context" notice that is
// passed to the model in place of results.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Context strings handed to the model when no results are available.
const (
	NotConfigured = "No web context available (web search not configured)."
	Unavailable   = "Web search unavailable."
	NoResults     = "No web results found."
	Failed        = "Web search failed."
)

const (
	defaultMaxResults = 5
	defaultTimeout    = 8 * time.Second
)

// Hit is one search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is a web search backend.
type Searcher interface {
	Name() string
	Configured() bool
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// StatusError is returned by backends when the provider answers with a
// non-success HTTP status.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.Status, e.Body)
}

// Augmenter turns a question into a block of web context.
type Augmenter struct {
	searcher   Searcher
	maxResults int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewAugmenter wraps searcher, which may be nil.
func NewAugmenter(searcher Searcher, logger *slog.Logger) *Augmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmenter{
		searcher:   searcher,
		maxResults: defaultMaxResults,
		timeout:    defaultTimeout,
		logger:     logger,
	}
}

func (a *Augmenter) WithMaxResults(n int) *Augmenter {
	if n > 0 {
		a.maxResults = n
	}
	return a
}

func (a *Augmenter) WithTimeout(d time.Duration) *Augmenter {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// Context never fails; see the package doc.
func (a *Augmenter) Context(ctx context.Context, question string) string {
	if a == nil || a.searcher == nil || !a.searcher.Configured() {
		return NotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	hits, err := a.searcher.Search(ctx, question, a.maxResults)
	if err != nil {
		a.logger.Warn("web search failed", "provider", a.searcher.Name(), "error", err, "duration", time.Since(start))
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return Unavailable
		}
		return Failed
	}
	if len(hits) == 0 {
		return NoResults
	}
	a.logger.Debug("web search", "provider", a.searcher.Name(), "hits", len(hits), "duration", time.Since(start))
	return Format(hits)
}

// Format renders hits as "Source: title\nsnippet" blocks separated by blank
// lines.
func Format(hits []Hit) string {
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		blocks = append(blocks, "Source: "+strings.TrimSpace(h.Title)+"\n"+strings.TrimSpace(h.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}

// Objective is the research goal sent to backends that accept one.
func Objective(question string) string {
	return fmt.Sprintf("Explain %q in simple terms suitable for a 5-year-old. Prefer reliable educational sources.", question)
}
