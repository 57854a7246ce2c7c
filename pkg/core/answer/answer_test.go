package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/persona"
)

type fakeBackend struct {
	prompt Prompt
	chunks []string
	err    error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Stream(_ context.Context, prompt Prompt) (Stream, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &sliceStream{chunks: f.chunks}, nil
}

type sliceStream struct {
	chunks []string
	closed bool
}

func (s *sliceStream) Next() (string, error) {
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type staticContext string

func (c staticContext) Context(context.Context, string) string { return string(c) }

func sponge(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.Default().Lookup("spongebob")
	if !ok {
		t.Fatal("spongebob persona missing")
	}
	return p
}

func TestBuildPrompt_HistoryAndQuestion(t *testing.T) {
	p := sponge(t)
	prompt := BuildPrompt(Request{
		Question: " Why is the sea salty? ",
		Persona:  p,
		History: []Exchange{
			{Question: "What is water?", Answer: "Water is H2O."},
		},
	}, "Source: Sea\nSalt comes from rocks.", 0)

	if prompt.MaxTokens != DefaultMaxTokens {
		t.Fatalf("MaxTokens = %d, want %d", prompt.MaxTokens, DefaultMaxTokens)
	}
	if !strings.HasPrefix(prompt.System, p.Prompt+"\n") || !strings.Contains(prompt.System, "<concept: LABEL>") || !strings.Contains(prompt.System, "<summary: SUMMARY>") {
		t.Fatalf("System = %q", prompt.System)
	}
	if len(prompt.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(prompt.Messages))
	}
	if prompt.Messages[0] != (Message{Role: RoleUser, Text: "What is water?"}) ||
		prompt.Messages[1] != (Message{Role: RoleAssistant, Text: "Water is H2O."}) {
		t.Fatalf("history messages = %#v", prompt.Messages[:2])
	}
	want := "Question: Why is the sea salty?\n\nWeb Context:\nSource: Sea\nSalt comes from rocks.\n\nPlease answer the question using the web context provided, in your character's voice. Keep answers under 50 words."
	if got := prompt.Messages[2]; got.Role != RoleUser || got.Text != want {
		t.Fatalf("final message = %#v", got)
	}
}

func TestGenerator_Answer(t *testing.T) {
	backend := &fakeBackend{chunks: []string{"Salt ", "washes in."}}
	g := NewGenerator(backend, staticContext("ctx-block"), nil).WithMaxTokens(256)

	stream, err := g.Answer(context.Background(), Request{Question: "Why is the sea salty?", Persona: sponge(t)})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		sb.WriteString(chunk)
	}
	if sb.String() != "Salt washes in." {
		t.Fatalf("answer = %q", sb.String())
	}
	if backend.prompt.MaxTokens != 256 {
		t.Fatalf("MaxTokens = %d", backend.prompt.MaxTokens)
	}
	if !strings.Contains(backend.prompt.Messages[0].Text, "Web Context:\nctx-block") {
		t.Fatalf("web context missing from prompt: %q", backend.prompt.Messages[0].Text)
	}
}

func TestGenerator_AnswerErrors(t *testing.T) {
	g := NewGenerator(&fakeBackend{}, nil, nil)
	if _, err := g.Answer(context.Background(), Request{Question: "  "}); !core.IsType(err, core.ErrValidation) {
		t.Fatalf("blank question error = %v", err)
	}

	boom := errors.New("overloaded")
	g = NewGenerator(&fakeBackend{err: boom}, nil, nil)
	_, err := g.Answer(context.Background(), Request{Question: "q"})
	if !core.IsType(err, core.ErrAnswerGeneration) || !errors.Is(err, boom) {
		t.Fatalf("backend error = %v", err)
	}

	if _, err := NewGenerator(nil, nil, nil).Answer(context.Background(), Request{Question: "q"}); !core.IsType(err, core.ErrAnswerGeneration) {
		t.Fatalf("nil backend error = %v", err)
	}
}

func TestGenerator_NoContextSource(t *testing.T) {
	backend := &fakeBackend{}
	if _, err := NewGenerator(backend, nil, nil).Answer(context.Background(), Request{Question: "q"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(backend.prompt.Messages[0].Text, noWebContext) {
		t.Fatalf("prompt = %q", backend.prompt.Messages[0].Text)
	}
}
