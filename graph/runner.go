package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/attractorhq/pipeline-engine/graph/emit"
)

// Runner drives a Graph to completion (or a fatal error), persisting an
// EngineCheckpoint before and after every node visit so the run can be
// resumed after a crash with no lost progress beyond the in-flight
// handler call.
type Runner struct {
	graph    *Graph
	cfg      *runnerConfig
	selector *EdgeSelector
	now      func() time.Time
}

// NewRunner builds a Runner over an already-parsed graph. dispatch (set
// via WithDispatch) must be supplied — a Runner with no dispatch
// function cannot execute any node.
func NewRunner(g *Graph, opts ...RunnerOption) (*Runner, error) {
	cfg := newRunnerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dispatch == nil {
		return nil, NewValidationError("runner requires WithDispatch")
	}
	return &Runner{
		graph:    g,
		cfg:      cfg,
		selector: NewEdgeSelector(cfg.conditionEval),
		now:      time.Now,
	}, nil
}

// RunParams are the per-invocation inputs to Run: identifiers and the
// resume location, as distinct from the Runner's static configuration.
type RunParams struct {
	PipelineID string
	DotPath    string
	// ResumeRunDir, when non-empty, loads and validates an existing run
	// directory instead of creating a fresh one.
	ResumeRunDir string
}

// Run executes RunParams.PipelineID's graph to completion, returning the
// final checkpoint. Engine conditions (unknown shape, no edge, loop
// detected, checkpoint validation) are returned as *EngineError; a
// failure to create the run directory and an error returned by dispatch
// are returned as they are, not as *EngineError. Handler-level failures
// are not errors — they are recorded as failure Outcomes and routed
// normally.
func (r *Runner) Run(ctx context.Context, params RunParams) (*EngineCheckpoint, error) {
	runDir := params.ResumeRunDir
	if runDir == "" {
		dir, err := CreateRunDir(r.cfg.pipelinesDir, params.PipelineID, r.now())
		if err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
		runDir = dir
	}

	mgr, err := NewCheckpointManager(runDir, nil)
	if err != nil {
		return nil, err
	}

	events := emit.NewEventBuilder(params.PipelineID, r.now)

	cp, err := mgr.LoadOrCreate(params.PipelineID, params.DotPath, r.graph.AllNodeIDs(), r.now())
	if err != nil {
		return nil, err
	}
	resuming := mgr.Exists()

	pctx := r.hydrateContext(cp)

	current, err := r.resolveStartNode(cp)
	if err != nil {
		return nil, err
	}

	if resuming {
		r.cfg.emitter.Emit(events.PipelineResumed(map[string]any{"run_dir": runDir}))
	} else {
		r.cfg.emitter.Emit(events.PipelineStarted(map[string]any{"run_dir": runDir}))
	}

	startedAt := r.now()

	for {
		node, ok := r.graph.Node(current)
		if !ok {
			return cp, NewValidationError(fmt.Sprintf("current node %q is not present in the graph", current))
		}

		visits := pctx.IncrementVisit(current)
		if visits > r.cfg.maxNodeVisits {
			r.cfg.metrics.LoopDetected(current)
			r.cfg.emitter.Emit(events.LoopDetected(current, map[string]any{"visits": visits, "max": r.cfg.maxNodeVisits}))
			return cp, NewLoopDetectedError(current, visits, r.cfg.maxNodeVisits)
		}

		pctx.Set(CtxKeyRetryCount, visits-1)
		pctx.Set(CtxKeyPipelineDurationS, r.now().Sub(startedAt).Seconds())

		cp.CurrentNodeID = current
		cp.Context = pctx.SerializableSnapshot()
		cp.VisitCounts = pctx.VisitCounts()
		mgr.Save(cp)
		r.cfg.emitter.Emit(events.CheckpointSaved(map[string]any{"node_id": current, "phase": "pre"}))

		req := HandlerRequest{
			Node:          node,
			Graph:         r.graph,
			Context:       pctx,
			Emitter:       r.cfg.emitter,
			PipelineID:    params.PipelineID,
			RunDir:        runDir,
			VisitCount:    visits,
			AttemptNumber: visits,
		}

		r.cfg.emitter.Emit(events.NodeStarted(current, map[string]any{"shape": node.Shape, "visit": visits}))
		nodeStartedAt := r.now()
		r.cfg.metrics.NodeStarted()

		outcome, execErr := r.cfg.dispatch(ctx, req)

		r.cfg.metrics.NodeFinished(node.Shape, outcome.Status, r.now().Sub(nodeStartedAt).Seconds())

		if execErr != nil {
			r.cfg.emitter.Emit(events.PipelineFailed(map[string]any{"node_id": current, "error": execErr.Error()}))
			return cp, execErr
		}

		pctx.Update(outcome.ContextUpdates)
		pctx.Set(CtxKeyLastStatus, string(outcome.Status))

		if outcome.Status == StatusFailure {
			r.cfg.emitter.Emit(events.NodeFailed(current, eventData(outcome, node.GoalGate())))
		} else {
			r.cfg.emitter.Emit(events.NodeCompleted(current, eventData(outcome, node.GoalGate())))
		}

		tokens := tokensUsed(outcome)
		cp.TotalTokensUsed += tokens
		cp.TotalNodeExecutions++
		cp.NodeRecords = append(cp.NodeRecords, NodeRecord{
			NodeID:         current,
			HandlerType:    string(node.Shape),
			Status:         outcome.Status,
			ContextUpdates: outcome.ContextUpdates,
			PreferredLabel: outcome.PreferredLabel,
			SuggestedNext:  outcome.SuggestedNext,
			Metadata:       outcome.Metadata,
			StartedAt:      nodeStartedAt,
			CompletedAt:    r.now(),
		})

		if outcome.Status != StatusWaiting {
			cp.CompletedNodes = appendUnique(cp.CompletedNodes, current)
			pctx.Set(CtxKeyCompletedNodes, cp.CompletedNodes)
		}

		cp.Context = pctx.SerializableSnapshot()
		cp.VisitCounts = pctx.VisitCounts()
		mgr.Save(cp)
		r.cfg.emitter.Emit(events.CheckpointSaved(map[string]any{"node_id": current, "phase": "post"}))

		if node.Shape == ShapeExit {
			if outcome.Status == StatusSuccess {
				r.cfg.emitter.Emit(events.PipelineCompleted(map[string]any{"run_dir": runDir}))
			} else {
				r.cfg.emitter.Emit(events.PipelineFailed(map[string]any{"run_dir": runDir, "status": outcome.Status}))
			}
			return cp, nil
		}

		if outcome.Status == StatusWaiting {
			// The caller is expected to re-invoke Run with ResumeRunDir
			// once the external signal arrives; there is no edge to
			// select yet.
			return cp, nil
		}

		edge, err := r.selector.Select(r.graph, node, outcome, pctx.Snapshot())
		if err != nil {
			r.cfg.emitter.Emit(events.PipelineFailed(map[string]any{"node_id": current, "error": err.Error()}))
			return cp, err
		}
		cp.LastEdgeID = edge.ID()
		r.cfg.emitter.Emit(events.EdgeSelected(current, map[string]any{"target": edge.Target, "label": edge.Label}))

		current = edge.Target
	}
}

func (r *Runner) hydrateContext(cp *EngineCheckpoint) *PipelineContext {
	values := make(map[string]any, len(r.cfg.initialContext)+len(cp.Context))
	for k, v := range r.cfg.initialContext {
		values[k] = v
	}
	for k, v := range cp.Context {
		// Visit counts are replayed below from cp.VisitCounts via
		// IncrementVisit, the authoritative source; copying the raw
		// "$node_visits.*" entries here too would double-count them.
		if len(k) >= len(nodeVisitsKeyPrefix) && k[:len(nodeVisitsKeyPrefix)] == nodeVisitsKeyPrefix {
			continue
		}
		values[k] = v
	}
	values[CtxKeyGraph] = r.graph
	values[CtxKeyPipelineID] = cp.PipelineID
	values[CtxKeyCompletedNodes] = cp.CompletedNodes

	pctx := NewPipelineContext(values)
	for id, n := range cp.VisitCounts {
		for i := 0; i < n; i++ {
			pctx.IncrementVisit(id)
		}
	}
	return pctx
}

func (r *Runner) resolveStartNode(cp *EngineCheckpoint) (string, error) {
	if cp.CurrentNodeID != "" && !contains(cp.CompletedNodes, cp.CurrentNodeID) && r.graph.Contains(cp.CurrentNodeID) {
		return cp.CurrentNodeID, nil
	}
	start, err := r.graph.StartNode()
	if err != nil {
		return "", err
	}
	return start.ID, nil
}

func contains(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func appendUnique(list []string, target string) []string {
	if contains(list, target) {
		return list
	}
	return append(list, target)
}

func tokensUsed(outcome Outcome) int {
	if outcome.Metadata == nil {
		return 0
	}
	switch v := outcome.Metadata["tokens_used"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func eventData(outcome Outcome, goalGate bool) map[string]any {
	data := map[string]any{"status": outcome.Status, "goal_gate": goalGate}
	for k, v := range outcome.Metadata {
		data[k] = v
	}
	return data
}
