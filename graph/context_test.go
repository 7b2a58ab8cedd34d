package graph

import "testing"

func TestPipelineContextGetSetUpdate(t *testing.T) {
	c := NewPipelineContext(map[string]any{"seed": 1})
	if v, ok := c.Get("seed"); !ok || v != 1 {
		t.Fatalf("expected seeded value, got %v ok=%v", v, ok)
	}

	c.Set("added", "x")
	c.Update(map[string]any{"added": "y", "other": 2})

	if got := c.GetString("added"); got != "y" {
		t.Fatalf("expected Update to overwrite Set, got %q", got)
	}
	if v, _ := c.Get("other"); v != 2 {
		t.Fatalf("expected other=2, got %v", v)
	}
}

func TestPipelineContextSnapshotIsACopy(t *testing.T) {
	c := NewPipelineContext(map[string]any{"k": 1})
	snap := c.Snapshot()
	snap["k"] = 999
	if v, _ := c.Get("k"); v != 1 {
		t.Fatalf("expected mutating the snapshot to not affect the context, got %v", v)
	}
}

func TestPipelineContextSerializableSnapshotStripsGraphKey(t *testing.T) {
	c := NewPipelineContext(map[string]any{CtxKeyGraph: "unserializable", "keep": "me"})
	snap := c.SerializableSnapshot()
	if _, ok := snap[CtxKeyGraph]; ok {
		t.Fatalf("expected %q to be stripped from the serializable snapshot", CtxKeyGraph)
	}
	if snap["keep"] != "me" {
		t.Fatalf("expected other keys to survive, got %v", snap)
	}
}

func TestPipelineContextVisitCounts(t *testing.T) {
	c := NewPipelineContext(nil)
	if got := c.VisitCount("n1"); got != 0 {
		t.Fatalf("expected 0 visits before any increment, got %d", got)
	}
	c.IncrementVisit("n1")
	c.IncrementVisit("n1")
	c.IncrementVisit("n2")

	if got := c.VisitCount("n1"); got != 2 {
		t.Fatalf("expected 2 visits for n1, got %d", got)
	}
	counts := c.VisitCounts()
	if counts["n1"] != 2 || counts["n2"] != 1 {
		t.Fatalf("unexpected visit counts projection: %v", counts)
	}
}

func TestPipelineContextMergeFanOutResultsNamespacesKeys(t *testing.T) {
	c := NewPipelineContext(nil)
	c.MergeFanOutResults("branch-a", map[string]any{"status": "success", "count": 3})

	if v, _ := c.Get("branch-a.status"); v != "success" {
		t.Fatalf("expected namespaced key branch-a.status, got %v", v)
	}
	if v, _ := c.Get("branch-a.count"); v != 3 {
		t.Fatalf("expected namespaced key branch-a.count, got %v", v)
	}
}
