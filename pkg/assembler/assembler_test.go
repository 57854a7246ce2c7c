package assembler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestAssemble_ExtractsTags(t *testing.T) {
	got := Assemble("Water is H2O. <concept: Chemistry><summary: Water composition>")
	want := Result{Text: "Water is H2O.", Concept: "Chemistry", Summary: "Water composition"}
	if got != want {
		t.Fatalf("Assemble() = %#v, want %#v", got, want)
	}
}

func TestAssemble_DefaultsWithoutTags(t *testing.T) {
	got := Assemble("Plain answer")
	want := Result{Text: "Plain answer", Concept: "Concept", Summary: "Plain answer..."}
	if got != want {
		t.Fatalf("Assemble() = %#v, want %#v", got, want)
	}
}

func TestAssemble_Cases(t *testing.T) {
	long := strings.Repeat("abcdefghij", 6)
	tests := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "case insensitive and whitespace",
			raw:  "Gravity pulls.\n<CONCEPT:   Physics ><Summary:\tFalling things >",
			want: Result{Text: "Gravity pulls.", Concept: "Physics", Summary: "Falling things"},
		},
		{
			name: "first occurrence wins and all tags removed",
			raw:  "A <concept: First> B <concept: Second> <summary: one><summary: two>",
			want: Result{Text: "A  B", Concept: "First", Summary: "one"},
		},
		{
			name: "summary fallback truncates to fifty runes",
			raw:  long + " <concept: Letters>",
			want: Result{Text: long, Concept: "Letters", Summary: long[:50] + "..."},
		},
		{
			name: "multibyte fallback",
			raw:  strings.Repeat("é", 60),
			want: Result{Text: strings.Repeat("é", 60), Concept: "Concept", Summary: strings.Repeat("é", 50) + "..."},
		},
		{
			name: "only tags",
			raw:  "<concept: Empty><summary: Nothing said>",
			want: Result{Text: "", Concept: "Empty", Summary: "Nothing said"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Assemble(tc.raw); got != tc.want {
				t.Fatalf("Assemble(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
		})
	}
}

type chunks struct {
	parts []string
	err   error
}

func (c *chunks) Next() (string, error) {
	if len(c.parts) == 0 {
		if c.err != nil {
			return "", c.err
		}
		return "", io.EOF
	}
	p := c.parts[0]
	c.parts = c.parts[1:]
	return p, nil
}

func TestConsume_TagSplitAcrossChunks(t *testing.T) {
	src := &chunks{parts: []string{"Water is ", "H2O. <conc", "ept: Chem", "istry><summary: Water ", "composition>"}}
	var previews []string

	got, err := Consume(context.Background(), src, func(p string) { previews = append(previews, p) })
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got.Concept != "Chemistry" || got.Summary != "Water composition" || got.Text != "Water is H2O." {
		t.Fatalf("Consume() = %#v", got)
	}
	if len(previews) != 5 {
		t.Fatalf("len(previews) = %d, want 5", len(previews))
	}
	if previews[1] != "Water is H2O. <conc" {
		t.Fatalf("previews[1] = %q", previews[1])
	}
	for i := 1; i < len(previews); i++ {
		if !strings.HasPrefix(previews[i], previews[i-1]) {
			t.Fatalf("preview %d is not an extension of the previous one", i)
		}
	}
}

func TestConsume_StreamErrorDiscardsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	src := &chunks{parts: []string{"partial"}, err: boom}

	got, err := Consume(context.Background(), src, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Consume() error = %v, want %v", err, boom)
	}
	if got != (Result{}) {
		t.Fatalf("Consume() result = %#v, want zero", got)
	}
}

func TestConsume_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Consume(ctx, &chunks{parts: []string{"x"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Consume() error = %v, want context.Canceled", err)
	}
}
