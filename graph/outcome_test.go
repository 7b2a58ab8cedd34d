package graph

import "testing"

func TestSuccessAndFailureConstructors(t *testing.T) {
	s := Success(map[string]any{"k": "v"})
	if s.Status != StatusSuccess || s.ContextUpdates["k"] != "v" {
		t.Fatalf("unexpected success outcome: %+v", s)
	}

	f := Failure(map[string]any{"k": "v"}, map[string]any{"error_type": "TIMEOUT"})
	if f.Status != StatusFailure || f.Metadata["error_type"] != "TIMEOUT" {
		t.Fatalf("unexpected failure outcome: %+v", f)
	}
}
