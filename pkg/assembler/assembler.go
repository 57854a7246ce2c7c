// Package assembler accumulates a streamed answer and, once the stream is
// complete, splits it into visible prose and the concept/summary metadata
// the model appends as inline tags:
//
//	Water is H2O. <concept: Chemistry><summary: Water composition>
package assembler

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultConcept labels a turn whose answer carried no concept tag.
	DefaultConcept = "Concept"

	summaryFallbackRunes = 50
)

var (
	conceptTag = regexp.MustCompile(`(?i)<concept:\s*([^>]+)>`)
	summaryTag = regexp.MustCompile(`(?i)<summary:\s*([^>]+)>`)
)

// Result is a fully assembled answer.
type Result struct {
	Text    string
	Concept string
	Summary string
}

// Assembler is single-reader and append-only.
type Assembler struct {
	raw strings.Builder
}

func New() *Assembler {
	return &Assembler{}
}

// Write appends a chunk and returns the live preview: everything received so
// far, tags included.
func (a *Assembler) Write(chunk string) string {
	a.raw.WriteString(chunk)
	return a.raw.String()
}

func (a *Assembler) Preview() string {
	return a.raw.String()
}

// Finish extracts metadata from the accumulated text.
func (a *Assembler) Finish() Result {
	return Assemble(a.raw.String())
}

// Assemble parses a complete answer. The first tag of each kind wins; every
// tag is removed from the visible text.
func Assemble(raw string) Result {
	concept := firstValue(conceptTag, raw)
	summary := firstValue(summaryTag, raw)

	text := conceptTag.ReplaceAllString(raw, "")
	text = summaryTag.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if concept == "" {
		concept = DefaultConcept
	}
	if summary == "" {
		summary = truncateRunes(text, summaryFallbackRunes) + "..."
	}
	return Result{Text: text, Concept: concept, Summary: summary}
}

func firstValue(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ChunkSource yields text chunks and io.EOF once the stream is complete.
type ChunkSource interface {
	Next() (string, error)
}

// Consume drains src, calling onPreview after every non-empty chunk. A stream
// error or cancellation discards the partial answer.
func Consume(ctx context.Context, src ChunkSource, onPreview func(string)) (Result, error) {
	a := New()
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		chunk, err := src.Next()
		if chunk != "" {
			preview := a.Write(chunk)
			if onPreview != nil {
				onPreview(preview)
			}
		}
		if errors.Is(err, io.EOF) {
			return a.Finish(), nil
		}
		if err != nil {
			return Result{}, err
		}
	}
}
