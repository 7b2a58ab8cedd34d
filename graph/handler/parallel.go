package handler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/attractorhq/pipeline-engine/graph"
)

// ParallelHandler fans out to the direct graph successors of a parallel
// node, running each as an independent single-shot handler dispatch
// against its own snapshot of the context, then folds results back into
// the parent context under the child's node id as branch namespace.
//
// Dispatch is the same composed HandlerFunc the Runner drives the whole
// graph with (middleware chain plus registry), so a branch node runs
// through retry/span/audit exactly as it would at the top level.
type ParallelHandler struct {
	Dispatch graph.HandlerFunc
}

// NewParallelHandler returns a ParallelHandler that dispatches children
// through dispatch.
func NewParallelHandler(dispatch graph.HandlerFunc) *ParallelHandler {
	return &ParallelHandler{Dispatch: dispatch}
}

type branchResult struct {
	id      string
	outcome graph.Outcome
	err     error
}

func (h *ParallelHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	children := req.Graph.EdgesFrom(req.Node.ID)
	if len(children) == 0 {
		return graph.Success(nil), nil
	}

	if req.Node.JoinPolicy() == graph.JoinFirstSuccess {
		return h.runFirstSuccess(ctx, req, children)
	}
	return h.runWaitAll(ctx, req, children)
}

func (h *ParallelHandler) runBranch(ctx context.Context, req graph.HandlerRequest, nodeID string) branchResult {
	node, ok := req.Graph.Node(nodeID)
	if !ok {
		return branchResult{id: nodeID, err: fmt.Errorf("parallel handler: unknown child node %q", nodeID)}
	}
	childReq := graph.HandlerRequest{
		Node:          node,
		Graph:         req.Graph,
		Context:       graph.NewPipelineContext(req.Context.Snapshot()),
		Emitter:       req.Emitter,
		PipelineID:    req.PipelineID,
		RunDir:        req.RunDir,
		VisitCount:    1,
		AttemptNumber: 1,
	}
	outcome, err := h.Dispatch(ctx, childReq)
	return branchResult{id: nodeID, outcome: outcome, err: err}
}

// runWaitAll dispatches every child through an errgroup so a genuine
// dispatch error in one branch cancels the shared group context for the
// others; Wait then returns that error and the parallel node fails with
// it, without a join. With no dispatch error, every branch's result is
// collected for the join once the group drains.
func (h *ParallelHandler) runWaitAll(ctx context.Context, req graph.HandlerRequest, children []graph.Edge) (graph.Outcome, error) {
	results := make([]branchResult, len(children))
	g, gctx := errgroup.WithContext(ctx)
	for i, edge := range children {
		i, target := i, edge.Target
		g.Go(func() error {
			r := h.runBranch(gctx, req, target)
			results[i] = r
			if r.err != nil {
				return fmt.Errorf("branch %s: %w", r.id, r.err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return graph.Outcome{}, fmt.Errorf("parallel handler: %w", err)
	}

	statuses := make(map[string]any, len(results))
	succeeded := 0
	for _, r := range results {
		req.Context.MergeFanOutResults(r.id, r.outcome.ContextUpdates)
		statuses[r.id] = string(r.outcome.Status)
		if r.outcome.Status == graph.StatusSuccess {
			succeeded++
		}
	}
	req.Context.Set(fanInResultsKey(req.Node.ID), statuses)

	if succeeded == len(results) || (req.Node.AllowPartial() && succeeded > 0) {
		return graph.Success(nil), nil
	}
	return graph.Failure(nil, map[string]any{"error_type": "PARALLEL_JOIN_FAILED"}), nil
}

// runFirstSuccess races every child, returning as soon as one succeeds
// and cancelling the rest. An errgroup manages the goroutines (Wait
// blocks for all of them to actually return, same as the wait_all path)
// but its own first-error-wins semantics don't fit here — this join
// wants first-success-wins, so results flow through resultCh and the
// cancellation decision is made by the caller once a winner is seen,
// not by the group itself.
func (h *ParallelHandler) runFirstSuccess(ctx context.Context, req graph.HandlerRequest, children []graph.Edge) (graph.Outcome, error) {
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan branchResult, len(children))
	var g errgroup.Group
	for _, edge := range children {
		target := edge.Target
		g.Go(func() error {
			resultCh <- h.runBranch(branchCtx, req, target)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(resultCh)
	}()

	var winner *branchResult
	statuses := make(map[string]any, len(children))
	for r := range resultCh {
		// A cancelled sibling's error is expected once a winner is found;
		// it carries no information and is dropped rather than failing
		// the whole parallel node.
		if r.err != nil {
			if winner != nil {
				continue
			}
			return graph.Outcome{}, fmt.Errorf("parallel handler: branch %s: %w", r.id, r.err)
		}
		statuses[r.id] = string(r.outcome.Status)
		if winner == nil && r.outcome.Status == graph.StatusSuccess {
			w := r
			winner = &w
			cancel()
		}
	}
	req.Context.Set(fanInResultsKey(req.Node.ID), statuses)

	if winner == nil {
		return graph.Failure(nil, map[string]any{"error_type": "PARALLEL_JOIN_FAILED"}), nil
	}
	req.Context.MergeFanOutResults(winner.id, winner.outcome.ContextUpdates)
	return graph.Success(nil), nil
}

func fanInResultsKey(nodeID string) string {
	return fmt.Sprintf("$fan_in.%s.results", nodeID)
}
