package emit

import "sync"

// MemoryEmitter collects every event it receives, in arrival order. It
// exists for tests that need to assert on the exact event sequence a
// run produced without parsing a JSONL file or standing up a tracer.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []PipelineEvent
}

// NewMemoryEmitter returns an empty in-memory emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(event PipelineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *MemoryEmitter) Close() error { return nil }

// Events returns a copy of every event recorded so far, in order.
func (e *MemoryEmitter) Events() []PipelineEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PipelineEvent, len(e.events))
	copy(out, e.events)
	return out
}

// OfType filters recorded events down to a single EventType, preserving
// order.
func (e *MemoryEmitter) OfType(typ EventType) []PipelineEvent {
	var out []PipelineEvent
	for _, ev := range e.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
