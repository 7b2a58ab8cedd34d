package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/signal"
	"github.com/attractorhq/pipeline-engine/graph/worker"
)

func failingQuery(ctx context.Context, systemPrompt, prompt string) (worker.Result, error) {
	return worker.Result{}, errors.New("sdk unavailable")
}

func TestCodegenInlineStrategySucceeds(t *testing.T) {
	h := NewCodegenHandler(nil, nil, func(ctx context.Context, prompt string) (string, error) {
		return "generated: " + prompt, nil
	})
	node := &graph.Node{ID: "n1", Shape: graph.ShapeCodegen, Attrs: map[string]string{
		"dispatch_strategy": "inline",
		"prompt":            "write a function",
	}}
	outcome, err := h.Execute(context.Background(), graph.HandlerRequest{Node: node, RunDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ContextUpdates["n1.output"] != "generated: write a function" {
		t.Fatalf("unexpected output: %+v", outcome.ContextUpdates)
	}
}

func TestCodegenTmuxStrategyPollsCompleteSignal(t *testing.T) {
	runDir := t.TempDir()
	node := &graph.Node{ID: "n1", Shape: graph.ShapeCodegen, Attrs: map[string]string{"prompt": "do work"}}

	h := NewCodegenHandler(func(ctx context.Context, req graph.HandlerRequest, promptPath string) error {
		return nil
	}, nil, nil)
	h.PollInterval = time.Millisecond
	h.HandlerTimeout = time.Second
	h.Sleep = func(ctx context.Context, d time.Duration) error {
		return signal.Write(runDir+"/nodes/n1/signals", "n1-complete.signal", signal.Payload{Type: "complete"})
	}

	outcome, err := h.Execute(context.Background(), graph.HandlerRequest{Node: node, RunDir: runDir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected success once the complete signal lands, got %+v", outcome)
	}
}

func TestCodegenTmuxStrategyTimesOut(t *testing.T) {
	runDir := t.TempDir()
	node := &graph.Node{ID: "n1", Shape: graph.ShapeCodegen, Attrs: map[string]string{"prompt": "do work"}}

	h := NewCodegenHandler(func(ctx context.Context, req graph.HandlerRequest, promptPath string) error {
		return nil
	}, nil, nil)
	h.PollInterval = time.Millisecond
	h.HandlerTimeout = 5 * time.Millisecond
	h.Sleep = func(ctx context.Context, d time.Duration) error {
		time.Sleep(time.Millisecond)
		return nil
	}

	outcome, err := h.Execute(context.Background(), graph.HandlerRequest{Node: node, RunDir: runDir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Status != graph.StatusFailure || outcome.Metadata["error_type"] != "TIMEOUT" {
		t.Fatalf("expected a TIMEOUT failure, got %+v", outcome)
	}
}

func TestCodegenSDKFallsBackToTmuxOnError(t *testing.T) {
	runDir := t.TempDir()
	node := &graph.Node{ID: "n1", Shape: graph.ShapeCodegen, Attrs: map[string]string{
		"dispatch_strategy": "sdk",
		"prompt":            "do work",
	}}

	spawnCalled := false
	h := NewCodegenHandler(func(ctx context.Context, req graph.HandlerRequest, promptPath string) error {
		spawnCalled = true
		return nil
	}, failingQuery, nil)
	h.PollInterval = time.Millisecond
	h.HandlerTimeout = time.Second
	h.Sleep = func(ctx context.Context, d time.Duration) error {
		return signal.Write(runDir+"/nodes/n1/signals", "n1-complete.signal", signal.Payload{Type: "complete"})
	}

	outcome, err := h.Execute(context.Background(), graph.HandlerRequest{Node: node, RunDir: runDir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !spawnCalled {
		t.Fatalf("expected the sdk failure to fall back to the tmux spawner")
	}
	if outcome.Status != graph.StatusSuccess {
		t.Fatalf("expected the tmux fallback to succeed, got %+v", outcome)
	}
}
