package handler

import (
	"context"
	"strings"

	"github.com/attractorhq/pipeline-engine/graph"
)

// FanInHandler is the rendezvous point downstream of a parallel node's
// branches. It reads the branch_id → status map a
// ParallelHandler wrote under its own node id (fanInResultsKey), looked
// up via this node's incoming edges rather than its own id — the
// producer is upstream, so the consumer must ask each predecessor for
// its results rather than look under its own name.
type FanInHandler struct{}

func (FanInHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	for _, edge := range req.Graph.EdgesTo(req.Node.ID) {
		if v, ok := req.Context.Get(fanInResultsKey(edge.Source)); ok {
			if statuses, ok := v.(map[string]any); ok && len(statuses) > 0 {
				return aggregateFanIn(req, statuses)
			}
		}
	}

	// Fall back to scanning namespaced context keys for any predecessor
	// branch that ran — presence without an explicit status is treated as
	// success, since MergeFanOutResults carries context_updates, not a
	// status value, into the namespace.
	snapshot := req.Context.Snapshot()
	statuses := map[string]any{}
	for _, edge := range req.Graph.EdgesTo(req.Node.ID) {
		prefix := edge.Source + "."
		for k := range snapshot {
			if strings.HasPrefix(k, prefix) {
				statuses[edge.Source] = string(graph.StatusSuccess)
				break
			}
		}
	}
	if len(statuses) == 0 {
		return graph.Success(nil), nil
	}
	return aggregateFanIn(req, statuses)
}

func aggregateFanIn(req graph.HandlerRequest, statuses map[string]any) (graph.Outcome, error) {
	succeeded := 0
	for _, v := range statuses {
		if s, ok := v.(string); ok && s == string(graph.StatusSuccess) {
			succeeded++
		}
	}

	updates := map[string]any{"$fan_in_results": statuses}
	if req.Node.JoinPolicy() == graph.JoinFirstSuccess {
		if succeeded > 0 {
			return graph.Success(updates), nil
		}
		return graph.Failure(updates, map[string]any{"error_type": "FAN_IN_JOIN_FAILED"}), nil
	}

	if succeeded == len(statuses) || (req.Node.AllowPartial() && succeeded > 0) {
		return graph.Success(updates), nil
	}
	return graph.Failure(updates, map[string]any{"error_type": "FAN_IN_JOIN_FAILED"}), nil
}
