package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/attractorhq/pipeline-engine/graph"
)

func TestExitForOutcomeSucceedsOnExitNode(t *testing.T) {
	cmd := &cobra.Command{}
	cp := &graph.EngineCheckpoint{
		RunDir: "/tmp/run",
		NodeRecords: []graph.NodeRecord{
			{NodeID: "done", HandlerType: string(graph.ShapeExit), Status: graph.StatusSuccess},
		},
	}
	if err := exitForOutcome(cmd, cp); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestExitForOutcomeErrorsOnFailedExitNode(t *testing.T) {
	cmd := &cobra.Command{}
	cp := &graph.EngineCheckpoint{
		NodeRecords: []graph.NodeRecord{
			{NodeID: "done", HandlerType: string(graph.ShapeExit), Status: graph.StatusFailure},
		},
	}
	if err := exitForOutcome(cmd, cp); err == nil {
		t.Fatalf("expected an error for a failed exit node")
	}
}

func TestExitForOutcomeErrorsWithNoNodeRecords(t *testing.T) {
	cmd := &cobra.Command{}
	if err := exitForOutcome(cmd, &graph.EngineCheckpoint{}); err == nil {
		t.Fatalf("expected an error when no node ran")
	}
}

func TestLoadContextFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context.yaml")
	if err := os.WriteFile(path, []byte("feature_name: widgets\nmax_retries: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	values, err := loadContextFile(path)
	if err != nil {
		t.Fatalf("loadContextFile: %v", err)
	}
	if values["feature_name"] != "widgets" {
		t.Fatalf("expected feature_name to survive parsing, got %+v", values)
	}
}

func TestLoadContextFileReturnsNilForEmptyPath(t *testing.T) {
	values, err := loadContextFile("")
	if err != nil || values != nil {
		t.Fatalf("expected nil, nil for an empty path, got %+v, %v", values, err)
	}
}

func TestEnvSecondsParsesSeconds(t *testing.T) {
	t.Setenv("ATTRACTOR_TEST_TIMEOUT", "30")
	if got := envSeconds("ATTRACTOR_TEST_TIMEOUT"); got.Seconds() != 30 {
		t.Fatalf("expected 30s, got %v", got)
	}
}

func TestEnvSecondsReturnsZeroWhenUnset(t *testing.T) {
	if got := envSeconds("ATTRACTOR_TEST_TIMEOUT_UNSET"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
