package handler

import (
	"context"

	"github.com/attractorhq/pipeline-engine/graph"
)

// ManagerLoopHandler is a stub reserved for recursive sub-pipeline
// execution in a spawned subprocess. It is not implemented; every call
// fails fast so a graph that reaches a manager-loop node gets a clear
// error rather than a silent no-op.
type ManagerLoopHandler struct{}

func (ManagerLoopHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	return graph.Outcome{}, graph.NewHandlerError(req.Node.ID, "manager-loop is not implemented: reserved for recursive sub-pipeline execution", nil)
}
