// Package dotgraph parses the DOT-syntax graph files the engine takes
// as input into a *graph.Graph. Node shape attributes select the
// handler dispatch shape; every other attribute passes through
// opaquely as a string, exactly as the external-interface contract
// requires.
package dotgraph

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/attractorhq/pipeline-engine/graph"
)

// shapeByDOTShape is the fixed shape→handler mapping table: the DOT
// "shape" attribute a node declares determines which of the nine
// engine shapes it is.
var shapeByDOTShape = map[string]graph.NodeShape{
	"Mdiamond":      graph.ShapeStart,
	"Msquare":       graph.ShapeExit,
	"box":           graph.ShapeCodegen,
	"diamond":       graph.ShapeConditional,
	"hexagon":       graph.ShapeHumanWait,
	"component":     graph.ShapeParallel,
	"tripleoctagon": graph.ShapeFanIn,
	"parallelogram": graph.ShapeTool,
	"house":         graph.ShapeManagerLoop,
}

// ParseFile reads and parses the DOT file at path.
func ParseFile(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, graph.NewParseError(fmt.Sprintf("read dot file %q", path), err)
	}
	return Parse(string(data))
}

// Parse parses DOT-syntax source text into a *graph.Graph.
func Parse(src string) (*graph.Graph, error) {
	ast, err := gographviz.ParseString(src)
	if err != nil {
		return nil, graph.NewParseError("parse dot source", err)
	}
	g := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, graph.NewParseError("analyse dot graph", err)
	}

	nodes := make([]*graph.Node, 0, len(g.Nodes.Nodes))
	for _, n := range g.Nodes.Nodes {
		id := unquote(n.Name)
		attrs := unquoteAttrs(n.Attrs)

		dotShape, ok := attrs["shape"]
		if !ok {
			return nil, graph.NewParseError(fmt.Sprintf("node %q has no shape attribute", id), nil)
		}
		shape, ok := shapeByDOTShape[dotShape]
		if !ok {
			return nil, graph.NewParseError(fmt.Sprintf("node %q has unrecognized dot shape %q", id, dotShape), nil)
		}

		nodes = append(nodes, &graph.Node{ID: id, Shape: shape, Attrs: attrs})
	}

	edges := make([]graph.Edge, 0, len(g.Edges.Edges))
	for _, e := range g.Edges.Edges {
		attrs := unquoteAttrs(e.Attrs)
		edge := graph.Edge{
			Source:    unquote(e.Src),
			Target:    unquote(e.Dst),
			Label:     attrs["label"],
			Condition: attrs["condition"],
			Attrs:     attrs,
		}
		if w, ok := attrs["weight"]; ok {
			if parsed, err := strconv.ParseFloat(w, 64); err == nil {
				edge.Weight = &parsed
			}
		}
		if lr, ok := attrs["loop_restart"]; ok {
			edge.LoopRestart = lr == "true"
		}
		edges = append(edges, edge)
	}

	graphAttrs := unquoteAttrs(g.Attrs)
	return graph.NewGraph(unquote(g.Name), graphAttrs, nodes, edges)
}

// attrsOf adapts gographviz.Attrs (a distinct named map type) to a plain
// map[string]string the rest of this package works with.
func attrsOf(a gographviz.Attrs) map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[string(k)] = v
	}
	return out
}

func unquoteAttrs(a gographviz.Attrs) map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[string(k)] = unquote(v)
	}
	return out
}

// unquote strips a single pair of surrounding double quotes, which
// gographviz preserves verbatim on every quoted DOT token.
func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
