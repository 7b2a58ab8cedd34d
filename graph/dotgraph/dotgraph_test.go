package dotgraph

import (
	"testing"

	"github.com/attractorhq/pipeline-engine/graph"
)

const sampleDOT = `
digraph pipeline {
  start [shape=Mdiamond];
  gen [shape=box, prompt="write a function", goal_gate="true"];
  done [shape=Msquare];

  start -> gen;
  gen -> done [label="success", condition="status == 'success'"];
  gen -> gen [label="retry", loop_restart="true", weight="2"];
}
`

func TestParseBuildsGraphWithShapesAndAttrs(t *testing.T) {
	g, err := Parse(sampleDOT)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	start, ok := g.Node("start")
	if !ok || start.Shape != graph.ShapeStart {
		t.Fatalf("expected start shape, got %+v", start)
	}

	gen, ok := g.Node("gen")
	if !ok || gen.Shape != graph.ShapeCodegen {
		t.Fatalf("expected codegen shape, got %+v", gen)
	}
	if gen.Prompt() != "write a function" {
		t.Fatalf("expected prompt attr to survive parsing, got %q", gen.Prompt())
	}
	if !gen.GoalGate() {
		t.Fatalf("expected goal_gate=true to parse as true")
	}

	done, ok := g.Node("done")
	if !ok || done.Shape != graph.ShapeExit {
		t.Fatalf("expected exit shape, got %+v", done)
	}

	edges := g.EdgesFrom("gen")
	if len(edges) != 2 {
		t.Fatalf("expected 2 outgoing edges from gen, got %d", len(edges))
	}
	var sawRetry, sawSuccess bool
	for _, e := range edges {
		switch e.Label {
		case "success":
			sawSuccess = true
			if e.Condition == "" {
				t.Fatalf("expected condition to survive parsing on the success edge")
			}
		case "retry":
			sawRetry = true
			if !e.LoopRestart {
				t.Fatalf("expected loop_restart=true on the retry edge")
			}
			if !e.HasWeight() || *e.Weight != 2 {
				t.Fatalf("expected weight=2 on the retry edge, got %+v", e.Weight)
			}
		}
	}
	if !sawRetry || !sawSuccess {
		t.Fatalf("expected both retry and success edges, got %+v", edges)
	}
}

func TestParseRejectsUnrecognizedShape(t *testing.T) {
	const src = `digraph g { a [shape=circle]; }`
	if _, err := Parse(src); err == nil {
		t.Fatalf("expected an error for an unrecognized dot shape")
	}
}

func TestParseRejectsNodeWithNoShape(t *testing.T) {
	const src = `digraph g { a [label="no shape"]; }`
	if _, err := Parse(src); err == nil {
		t.Fatalf("expected an error for a node with no shape attribute")
	}
}
