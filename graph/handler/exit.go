package handler

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/signal"
)

// ExitHandler reports the pipeline's terminal outcome: every goal-gate
// node (goal_gate=true on a codegen, human-wait, or parallel node) must
// appear in $completed_nodes for the run to count as a success.
type ExitHandler struct {
	Now func() time.Time
}

// NewExitHandler returns an ExitHandler using time.Now.
func NewExitHandler() *ExitHandler {
	return &ExitHandler{Now: time.Now}
}

func (h *ExitHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	now := h.Now
	if now == nil {
		now = time.Now
	}

	required := req.Graph.GoalGateNodeIDs()
	completedSet := make(map[string]bool)
	if completed, ok := req.Context.Get(graph.CtxKeyCompletedNodes); ok {
		if ids, ok := completed.([]string); ok {
			for _, id := range ids {
				completedSet[id] = true
			}
		}
	}

	var missing []string
	for _, id := range required {
		if !completedSet[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	if len(missing) == 0 {
		writeSignalBestEffort(req, now)
		return graph.Success(map[string]any{"$pipeline_outcome": "success"}), nil
	}
	return graph.Failure(map[string]any{"$missing_goal_gates": missing}, map[string]any{
		"error_type": "MISSING_GOAL_GATES",
	}), nil
}

func writeSignalBestEffort(req graph.HandlerRequest, now func() time.Time) {
	dir := filepath.Join(req.RunDir, "signals")
	err := signal.Write(dir, "pipeline_complete.signal", signal.Payload{
		Source:    req.Node.ID,
		Type:      "pipeline_complete",
		Timestamp: now().UTC(),
	})
	if err != nil {
		slog.Warn("exit handler: failed to write pipeline_complete.signal", "error", err)
	}
}
