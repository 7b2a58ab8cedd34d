package audit

import (
	"context"
	"testing"

	"github.com/attractorhq/pipeline-engine/graph"
)

func TestSQLiteWriterRoundTripsEntries(t *testing.T) {
	w, err := NewSQLiteWriter(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	entries := []graph.AuditEntry{
		{NodeID: "n1", FromStatus: "pending", ToStatus: "active", AgentID: "a1"},
		{NodeID: "n1", FromStatus: "active", ToStatus: "success", AgentID: "a1"},
	}
	for _, e := range entries {
		if err := w.WriteAuditEntry(ctx, "p1", e); err != nil {
			t.Fatalf("WriteAuditEntry: %v", err)
		}
	}

	got, err := w.Entries(ctx, "p1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ToStatus != "active" || got[1].ToStatus != "success" {
		t.Fatalf("unexpected ordering: %+v", got)
	}
}

func TestSQLiteWriterIsolatesPipelines(t *testing.T) {
	w, err := NewSQLiteWriter(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	if err := w.WriteAuditEntry(ctx, "p1", graph.AuditEntry{NodeID: "n1", ToStatus: "success"}); err != nil {
		t.Fatalf("WriteAuditEntry p1: %v", err)
	}
	if err := w.WriteAuditEntry(ctx, "p2", graph.AuditEntry{NodeID: "n1", ToStatus: "failure"}); err != nil {
		t.Fatalf("WriteAuditEntry p2: %v", err)
	}

	got, err := w.Entries(ctx, "p1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 1 || got[0].ToStatus != "success" {
		t.Fatalf("expected only p1's entry, got %+v", got)
	}
}

func TestSQLiteWriterErrorsAfterClose(t *testing.T) {
	w, err := NewSQLiteWriter(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.WriteAuditEntry(context.Background(), "p1", graph.AuditEntry{NodeID: "n1"}); err == nil {
		t.Fatalf("expected an error writing to a closed writer")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
