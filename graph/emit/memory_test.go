package emit

import "testing"

func TestMemoryEmitterPreservesOrderAndFiltersByType(t *testing.T) {
	m := NewMemoryEmitter()
	m.Emit(PipelineEvent{Type: EventPipelineStarted, Sequence: 1})
	m.Emit(PipelineEvent{Type: EventNodeStarted, Sequence: 2, NodeID: "n1"})
	m.Emit(PipelineEvent{Type: EventNodeCompleted, Sequence: 3, NodeID: "n1"})
	m.Emit(PipelineEvent{Type: EventNodeStarted, Sequence: 4, NodeID: "n2"})

	all := m.Events()
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Sequence != 1 || all[3].Sequence != 4 {
		t.Fatalf("expected events in arrival order, got sequences %d..%d", all[0].Sequence, all[3].Sequence)
	}

	started := m.OfType(EventNodeStarted)
	if len(started) != 2 {
		t.Fatalf("expected 2 node.started events, got %d", len(started))
	}
}
