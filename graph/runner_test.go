package graph

import (
	"context"
	"testing"

	"github.com/attractorhq/pipeline-engine/graph/emit"
)

func buildLinearGraph(t *testing.T) *Graph {
	t.Helper()
	nodes := []*Node{
		{ID: "start", Shape: ShapeStart},
		{ID: "work", Shape: ShapeConditional},
		{ID: "exit", Shape: ShapeExit},
	}
	edges := []Edge{
		{Source: "start", Target: "work"},
		{Source: "work", Target: "exit"},
	}
	g, err := NewGraph("linear", nil, nodes, edges)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func echoStatusDispatch(statuses map[string]OutcomeStatus) HandlerFunc {
	return func(ctx context.Context, req HandlerRequest) (Outcome, error) {
		status := statuses[req.Node.ID]
		if status == "" {
			status = StatusSuccess
		}
		return Outcome{Status: status}, nil
	}
}

func TestRunnerHappyPathReachesExitAndEmitsEvents(t *testing.T) {
	g := buildLinearGraph(t)
	mem := emit.NewMemoryEmitter()
	runner, err := NewRunner(g,
		WithPipelinesDir(t.TempDir()),
		WithDispatch(echoStatusDispatch(nil)),
		WithEmitter(mem),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	cp, err := runner.Run(context.Background(), RunParams{PipelineID: "pipe-1", DotPath: "g.dot"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(cp.CompletedNodes) != 3 {
		t.Fatalf("expected 3 completed nodes, got %v", cp.CompletedNodes)
	}
	if cp.CurrentNodeID != "exit" {
		t.Fatalf("expected to finish at exit, got %q", cp.CurrentNodeID)
	}

	completed := mem.OfType(emit.EventPipelineCompleted)
	if len(completed) != 1 {
		t.Fatalf("expected exactly one pipeline.completed event, got %d", len(completed))
	}
	started := mem.OfType(emit.EventNodeStarted)
	if len(started) != 3 {
		t.Fatalf("expected 3 node.started events, got %d", len(started))
	}
}

func TestRunnerLoopDetectionStopsRunaway(t *testing.T) {
	nodes := []*Node{
		{ID: "start", Shape: ShapeStart},
		{ID: "loopy", Shape: ShapeConditional},
		{ID: "exit", Shape: ShapeExit},
	}
	edges := []Edge{
		{Source: "start", Target: "loopy"},
		{Source: "loopy", Target: "loopy", Condition: "outcome = failure"},
		{Source: "loopy", Target: "exit"},
	}
	g, err := NewGraph("loopy", nil, nodes, edges)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	dispatch := HandlerFunc(func(ctx context.Context, req HandlerRequest) (Outcome, error) {
		if req.Node.ID == "loopy" {
			return Outcome{Status: StatusFailure}, nil
		}
		return Outcome{Status: StatusSuccess}, nil
	})

	runner, err := NewRunner(g,
		WithPipelinesDir(t.TempDir()),
		WithDispatch(dispatch),
		WithMaxNodeVisits(3),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	_, err = runner.Run(context.Background(), RunParams{PipelineID: "pipe-loop", DotPath: "g.dot"})
	if err == nil {
		t.Fatalf("expected a loop-detected error")
	}
	engErr, ok := err.(*EngineError)
	if !ok || engErr.Code != CodeLoopDetected {
		t.Fatalf("expected CodeLoopDetected, got %v", err)
	}
}

func TestRunnerWaitingOutcomeStopsWithoutSelectingEdge(t *testing.T) {
	g := buildLinearGraph(t)
	dispatch := echoStatusDispatch(map[string]OutcomeStatus{"work": StatusWaiting})

	runner, err := NewRunner(g, WithPipelinesDir(t.TempDir()), WithDispatch(dispatch))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	cp, err := runner.Run(context.Background(), RunParams{PipelineID: "pipe-wait", DotPath: "g.dot"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cp.CurrentNodeID != "work" {
		t.Fatalf("expected to stay at work while waiting, got %q", cp.CurrentNodeID)
	}
	if contains(cp.CompletedNodes, "work") {
		t.Fatalf("expected a waiting node to not be marked completed")
	}
	if len(cp.NodeRecords) != 2 {
		t.Fatalf("expected NodeRecords for start and for the waiting work node, got %d", len(cp.NodeRecords))
	}
	if last := cp.NodeRecords[1]; last.NodeID != "work" || last.Status != StatusWaiting {
		t.Fatalf("expected a NodeRecord to be appended even for a waiting outcome, got %+v", last)
	}
}

func TestRunnerResumesFromPersistedCheckpoint(t *testing.T) {
	g := buildLinearGraph(t)
	pipelinesDir := t.TempDir()

	waitingDispatch := echoStatusDispatch(map[string]OutcomeStatus{"work": StatusWaiting})
	runner1, err := NewRunner(g, WithPipelinesDir(pipelinesDir), WithDispatch(waitingDispatch))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	cp1, err := runner1.Run(context.Background(), RunParams{PipelineID: "pipe-resume", DotPath: "g.dot"})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	successDispatch := echoStatusDispatch(nil)
	runner2, err := NewRunner(g, WithPipelinesDir(pipelinesDir), WithDispatch(successDispatch))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	cp2, err := runner2.Run(context.Background(), RunParams{
		PipelineID:   "pipe-resume",
		DotPath:      "g.dot",
		ResumeRunDir: cp1.RunDir,
	})
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if cp2.CurrentNodeID != "exit" {
		t.Fatalf("expected resumed run to reach exit, got %q", cp2.CurrentNodeID)
	}
	if len(cp2.NodeRecords) <= len(cp1.NodeRecords) {
		t.Fatalf("expected resumed run to append further node records")
	}
}
