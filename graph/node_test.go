package graph

import "testing"

func TestNodeAccessorsDefaultsAndFallbacks(t *testing.T) {
	n := &Node{ID: "n1", Shape: ShapeCodegen, Attrs: map[string]string{
		"command": "echo hi",
	}}

	if got := n.ToolCommand(); got != "echo hi" {
		t.Fatalf("expected tool_command to fall back to command, got %q", got)
	}
	if got := n.DispatchStrategy(); got != DispatchTmux {
		t.Fatalf("expected default dispatch strategy tmux, got %q", got)
	}
	if got, ok := n.MaxRetries(); ok || got != defaultMaxRetries {
		t.Fatalf("expected MaxRetries unset with the default %d, got %d ok=%v", defaultMaxRetries, got, ok)
	}
	if got := n.JoinPolicy(); got != JoinWaitAll {
		t.Fatalf("expected default join policy wait_all, got %q", got)
	}
	if n.GoalGate() {
		t.Fatalf("expected goal_gate to default false")
	}
}

func TestNodeToolCommandPrefersExplicitAttr(t *testing.T) {
	n := &Node{ID: "n1", Attrs: map[string]string{
		"tool_command": "run-explicit",
		"command":      "run-fallback",
	}}
	if got := n.ToolCommand(); got != "run-explicit" {
		t.Fatalf("expected explicit tool_command to win, got %q", got)
	}
}

func TestNodeMaxRetriesParsed(t *testing.T) {
	n := &Node{ID: "n1", Attrs: map[string]string{"max_retries": "7"}}
	got, ok := n.MaxRetries()
	if !ok || got != 7 {
		t.Fatalf("expected max_retries=7, got %d ok=%v", got, ok)
	}
}

func TestNodeDispatchStrategyRejectsUnknownValue(t *testing.T) {
	n := &Node{ID: "n1", Attrs: map[string]string{"dispatch_strategy": "carrier-pigeon"}}
	if got := n.DispatchStrategy(); got != DispatchTmux {
		t.Fatalf("expected unknown dispatch strategy to fall back to tmux, got %q", got)
	}
}

func TestIsGoalGateShape(t *testing.T) {
	cases := map[NodeShape]bool{
		ShapeCodegen:     true,
		ShapeHumanWait:   true,
		ShapeParallel:    true,
		ShapeConditional: false,
		ShapeTool:        false,
		ShapeStart:       false,
	}
	for shape, want := range cases {
		if got := shape.isGoalGateShape(); got != want {
			t.Fatalf("shape %q: expected isGoalGateShape=%v, got %v", shape, want, got)
		}
	}
}
