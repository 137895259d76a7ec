package deps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/arduci/pkg/library"
)

// Graph is the dependency graph seen while resolving one library.
type Graph struct {
	Root   string
	Nodes  []string // root first, then the closure in discovery order
	Edges  []Edge
	Failed []string
}

// Graph resolves root like [Resolver.Collect] and returns the declared
// edges between every library in the closure. Aux libraries hang off the
// root alongside its declared dependencies.
func (r *Resolver) Graph(ctx context.Context, root *library.Library, aux []string) *Graph {
	col := r.Collect(ctx, root, aux)

	g := &Graph{Root: root.Name, Nodes: append([]string{root.Name}, col.Names...), Failed: col.Result.Failed}
	for _, name := range r.seeds(root, aux) {
		if name != root.Name {
			g.addEdge(Edge{From: root.Name, To: name})
		}
	}
	for _, e := range r.edges {
		if slices.Contains(g.Nodes, e.From) {
			g.addEdge(e)
		}
	}
	return g
}

func (g *Graph) addEdge(e Edge) {
	if !slices.Contains(g.Edges, e) {
		g.Edges = append(g.Edges, e)
	}
}

// Children returns the direct dependencies of name in the graph.
func (g *Graph) Children(name string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == name {
			out = append(out, e.To)
		}
	}
	return out
}

// DOT renders the graph in Graphviz DOT format. Libraries that failed to
// install are drawn dashed.
func (g *Graph) DOT() string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes {
		var attrs string
		switch {
		case n == g.Root:
			attrs = " [fillcolor=\"#e0f0ff\", penwidth=2]"
		case slices.Contains(g.Failed, n):
			attrs = " [style=\"rounded,dashed\", fontcolor=\"#b00000\"]"
		}
		fmt.Fprintf(&buf, "  %q%s;\n", n, attrs)
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

type jsonGraph struct {
	Root  string     `json:"root"`
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

type jsonNode struct {
	ID     string `json:"id"`
	Failed bool   `json:"failed,omitempty"`
}

type jsonEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WriteJSON encodes the graph as indented JSON nodes and edges.
func (g *Graph) WriteJSON(w io.Writer) error {
	out := jsonGraph{
		Root:  g.Root,
		Nodes: make([]jsonNode, len(g.Nodes)),
		Edges: make([]jsonEdge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = jsonNode{ID: n, Failed: slices.Contains(g.Failed, n)}
	}
	for i, e := range g.Edges {
		out.Edges[i] = jsonEdge{From: e.From, To: e.To}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
