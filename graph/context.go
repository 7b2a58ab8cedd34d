package graph

import (
	"fmt"
	"sync"
)

// Engine-reserved context keys. Handlers may read these but must not set
// them directly — the Runner owns their lifecycle.
const (
	CtxKeyGraph             = "$graph"
	CtxKeyPipelineID        = "$pipeline_id"
	CtxKeyCompletedNodes    = "$completed_nodes"
	CtxKeyLastStatus        = "$last_status"
	CtxKeyRetryCount        = "$retry_count"
	CtxKeyPipelineDurationS = "$pipeline_duration_s"
	CtxKeyTotalTokens       = "$total_tokens"
	CtxKeyNodeTokens        = "$node_tokens"
	nodeVisitsKeyPrefix     = "$node_visits."
)

// nonSerializableContextKeys are excluded when projecting the context into
// an EngineCheckpoint (the graph reference cannot round-trip through
// JSON).
var nonSerializableContextKeys = map[string]bool{
	CtxKeyGraph: true,
}

// PipelineContext is the process-local mutable key/value store shared by
// the runner, middlewares, and sequential handlers. All access is
// serialized under a mutex; parallel branches never see the live store,
// only a Snapshot.
type PipelineContext struct {
	mu     sync.Mutex
	values map[string]any
}

// NewPipelineContext creates a context seeded with the given initial
// values (may be nil).
func NewPipelineContext(initial map[string]any) *PipelineContext {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &PipelineContext{values: values}
}

// Get returns the value stored under key, and whether it was present.
func (c *PipelineContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value under key coerced to a string, or "" if
// absent or not a string.
func (c *PipelineContext) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set stores a single key/value pair.
func (c *PipelineContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Update merges a batch of key/value pairs into the context.
func (c *PipelineContext) Update(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range updates {
		c.values[k] = v
	}
}

// Snapshot returns a shallow copy of the context's current values. Shallow
// copying is sufficient because context values are primarily scalars and
// small strings; handlers must not mutate shared collections in place.
func (c *PipelineContext) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// SerializableSnapshot returns a Snapshot with engine-internal,
// non-JSON-serializable keys (currently just "$graph") stripped, for
// writing into an EngineCheckpoint.
func (c *PipelineContext) SerializableSnapshot() map[string]any {
	snap := c.Snapshot()
	for k := range nonSerializableContextKeys {
		delete(snap, k)
	}
	return snap
}

// IncrementVisit increments and returns the visit count for nodeID.
func (c *PipelineContext) IncrementVisit(nodeID string) int {
	key := nodeVisitsKeyPrefix + nodeID
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.values[key].(int)
	n++
	c.values[key] = n
	return n
}

// VisitCount returns the current visit count for nodeID (0 if never
// visited).
func (c *PipelineContext) VisitCount(nodeID string) int {
	key := nodeVisitsKeyPrefix + nodeID
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.values[key].(int)
	return n
}

// VisitCounts projects every "$node_visits.*" entry into a plain
// node-id → count map, for the checkpoint's visit_counts field.
func (c *PipelineContext) VisitCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for k, v := range c.values {
		if len(k) > len(nodeVisitsKeyPrefix) && k[:len(nodeVisitsKeyPrefix)] == nodeVisitsKeyPrefix {
			if n, ok := v.(int); ok {
				out[k[len(nodeVisitsKeyPrefix):]] = n
			}
		}
	}
	return out
}

// MergeFanOutResults merges a child branch's context updates into the
// parent context under the branch-id namespace: every key k becomes
// "<branchID>.k". This is how the parallel handler folds sibling
// branches' updates back into the shared context without letting them
// clobber each other.
func (c *PipelineContext) MergeFanOutResults(branchID string, updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	namespaced := make(map[string]any, len(updates))
	for k, v := range updates {
		namespaced[fmt.Sprintf("%s.%s", branchID, k)] = v
	}
	c.Update(namespaced)
}
