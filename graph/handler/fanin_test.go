package handler

import (
	"context"
	"testing"

	"github.com/attractorhq/pipeline-engine/graph"
)

func buildFanInGraph(t *testing.T, fanInAttrs map[string]string) (*graph.Graph, *graph.Node) {
	t.Helper()
	nodes := []*graph.Node{
		{ID: "start", Shape: graph.ShapeStart},
		{ID: "branch-a", Shape: graph.ShapeTool},
		{ID: "branch-b", Shape: graph.ShapeTool},
		{ID: "fi", Shape: graph.ShapeFanIn, Attrs: fanInAttrs},
		{ID: "exit", Shape: graph.ShapeExit},
	}
	edges := []graph.Edge{
		{Source: "start", Target: "branch-a"},
		{Source: "start", Target: "branch-b"},
		{Source: "branch-a", Target: "fi"},
		{Source: "branch-b", Target: "fi"},
		{Source: "fi", Target: "exit"},
	}
	g, err := graph.NewGraph("g", nil, nodes, edges)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	node, _ := g.Node("fi")
	return g, node
}

func TestFanInSucceedsWhenAllPredecessorsSucceeded(t *testing.T) {
	g, node := buildFanInGraph(t, nil)
	pctx := graph.NewPipelineContext(nil)
	pctx.Set(fanInResultsKey("branch-a"), map[string]any{"branch-a": string(graph.StatusSuccess)})
	pctx.Set(fanInResultsKey("branch-b"), map[string]any{"branch-b": string(graph.StatusSuccess)})

	outcome, err := (FanInHandler{}).Execute(context.Background(), graph.HandlerRequest{Node: node, Graph: g, Context: pctx})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected success, got %+v", outcome)
	}
}

func TestFanInNoOpSucceedsWhenNothingFound(t *testing.T) {
	g, node := buildFanInGraph(t, nil)
	pctx := graph.NewPipelineContext(nil)

	outcome, err := (FanInHandler{}).Execute(context.Background(), graph.HandlerRequest{Node: node, Graph: g, Context: pctx})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected success no-op, got %+v", outcome)
	}
}

func TestFanInAllowPartialSucceedsWithOneFailure(t *testing.T) {
	g, node := buildFanInGraph(t, map[string]string{"allow_partial": "true"})
	pctx := graph.NewPipelineContext(nil)
	pctx.Set(fanInResultsKey("branch-a"), map[string]any{"branch-a": string(graph.StatusSuccess)})
	pctx.Set(fanInResultsKey("branch-b"), map[string]any{"branch-b": string(graph.StatusFailure)})

	outcome, err := (FanInHandler{}).Execute(context.Background(), graph.HandlerRequest{Node: node, Graph: g, Context: pctx})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected allow_partial success, got %+v", outcome)
	}
}

func TestFanInFallsBackToNamespacedKeyScan(t *testing.T) {
	g, node := buildFanInGraph(t, nil)
	pctx := graph.NewPipelineContext(nil)
	pctx.MergeFanOutResults("branch-a", map[string]any{"output": "ok"})
	pctx.MergeFanOutResults("branch-b", map[string]any{"output": "ok"})

	outcome, err := (FanInHandler{}).Execute(context.Background(), graph.HandlerRequest{Node: node, Graph: g, Context: pctx})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected success via fallback scan, got %+v", outcome)
	}
}
