// Package graph derives the concept map of a conversation: one node per turn
// in chronological order, each linked to the next.
package graph

import (
	"strconv"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/store"
)

// Node is one turn in the concept map.
type Node struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	TurnID  string `json:"turn_id,omitempty"`
	Concept string `json:"concept"`
	Summary string `json:"summary"`
}

// Label is the text shown in the node.
func (n Node) Label() string {
	if n.Summary == "" {
		return n.Concept
	}
	return n.Concept + "<br/>" + n.Summary
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeID returns the id of the node for turn i.
func NodeID(i int) string {
	return "C" + strconv.Itoa(i)
}

// NodeIndex parses a node id back into a turn index.
func NodeIndex(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "C")
	if !ok || rest == "" {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || NodeID(i) != id {
		return 0, false
	}
	return i, true
}

// Build maps turns, already in chronological order, to a chain graph. It is a
// pure function of its input and is recomputed whenever the turn list grows.
func Build(turns []store.Turn) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(turns)),
		Edges: make([]Edge, 0, max(len(turns)-1, 0)),
	}
	for i, t := range turns {
		g.Nodes = append(g.Nodes, Node{
			ID:      NodeID(i),
			Index:   i,
			TurnID:  t.ID,
			Concept: t.Concept,
			Summary: t.Summary,
		})
		if i > 0 {
			g.Edges = append(g.Edges, Edge{From: NodeID(i - 1), To: NodeID(i)})
		}
	}
	return g
}

// Resolve returns the turn behind nodeID.
func Resolve(turns []store.Turn, nodeID string) (store.Turn, bool) {
	i, ok := NodeIndex(nodeID)
	if !ok || i >= len(turns) {
		return store.Turn{}, false
	}
	return turns[i], true
}
