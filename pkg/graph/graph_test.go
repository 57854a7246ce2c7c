package graph

import (
	"fmt"
	"testing"

	"github.com/vango-go/vai-tutor/pkg/store"
)

func turns(n int) []store.Turn {
	out := make([]store.Turn, n)
	for i := range out {
		out[i] = store.Turn{
			ID:       fmt.Sprintf("turn_%d", i),
			Question: fmt.Sprintf("question %d", i),
			Answer:   fmt.Sprintf("answer %d", i),
			Concept:  fmt.Sprintf("Concept%d", i),
			Summary:  fmt.Sprintf("summary %d", i),
		}
	}
	return out
}

func TestBuild_ChainShape(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		g := Build(turns(n))
		if len(g.Nodes) != n {
			t.Fatalf("n=%d: len(nodes) = %d", n, len(g.Nodes))
		}
		wantEdges := n - 1
		if n == 0 {
			wantEdges = 0
		}
		if len(g.Edges) != wantEdges {
			t.Fatalf("n=%d: len(edges) = %d, want %d", n, len(g.Edges), wantEdges)
		}
		for i, e := range g.Edges {
			if e.From != NodeID(i) || e.To != NodeID(i+1) {
				t.Fatalf("n=%d: edge %d = %s-->%s", n, i, e.From, e.To)
			}
		}
	}
}

func TestBuild_IsPureFunctionOfInput(t *testing.T) {
	in := turns(3)
	a := Build(in).Mermaid()
	b := Build(in).Mermaid()
	if a != b {
		t.Fatalf("Build not deterministic:\n%s\n%s", a, b)
	}
	grown := Build(append(in, turns(4)[3]))
	if len(grown.Nodes) != 4 || grown.Nodes[2] != Build(in).Nodes[2] {
		t.Fatal("growing the turn list changed existing nodes")
	}
}

func TestMermaid(t *testing.T) {
	tests := []struct {
		name  string
		turns []store.Turn
		want  string
	}{
		{name: "empty", turns: nil, want: "graph TD;"},
		{
			name:  "single",
			turns: []store.Turn{{Concept: "Chemistry", Summary: "Water composition"}},
			want:  `graph TD; C0["Chemistry<br/>Water composition"]`,
		},
		{
			name: "chain with sanitized labels",
			turns: []store.Turn{
				{Concept: "Arrays [0]", Summary: `the "first" slot`},
				{Concept: "Loops", Summary: "line one\nline two"},
			},
			want: `graph TD; C0["Arrays (0)<br/>the #quot;first#quot; slot"]; C1["Loops<br/>line one line two"]; C0-->C1`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Build(tc.turns).Mermaid(); got != tc.want {
				t.Fatalf("Mermaid() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	in := turns(3)
	g := Build(in)
	for _, n := range g.Nodes {
		turn, ok := Resolve(in, n.ID)
		if !ok {
			t.Fatalf("Resolve(%q) not found", n.ID)
		}
		if turn.Question != in[n.Index].Question || turn.Answer != in[n.Index].Answer {
			t.Fatalf("Resolve(%q) = %#v", n.ID, turn)
		}
	}
	for _, bad := range []string{"C3", "C-1", "C01", "X0", "C", ""} {
		if _, ok := Resolve(in, bad); ok {
			t.Fatalf("Resolve(%q) = ok, want not found", bad)
		}
	}
}
