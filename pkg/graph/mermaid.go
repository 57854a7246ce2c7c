package graph

import "strings"

const mermaidHeader = "graph TD;"

var labelReplacer = strings.NewReplacer(
	"[", "(",
	"]", ")",
	`"`, "#quot;",
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// Mermaid renders the graph as a top-down Mermaid flowchart:
//
//	graph TD; C0["Chemistry<br/>Water composition"]; C1["Physics"]; C0-->C1
func (g Graph) Mermaid() string {
	if len(g.Nodes) == 0 {
		return mermaidHeader
	}

	parts := make([]string, 0, len(g.Nodes)+len(g.Edges))
	for _, n := range g.Nodes {
		parts = append(parts, n.ID+`["`+sanitizeLabel(n)+`"]`)
	}
	for _, e := range g.Edges {
		parts = append(parts, e.From+"-->"+e.To)
	}
	return mermaidHeader + " " + strings.Join(parts, "; ")
}

func sanitizeLabel(n Node) string {
	concept := labelReplacer.Replace(n.Concept)
	if n.Summary == "" {
		return concept
	}
	return concept + "<br/>" + labelReplacer.Replace(n.Summary)
}
