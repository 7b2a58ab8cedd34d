// Package handler implements the nine concrete node handlers a default
// HandlerRegistry pre-registers: start, exit, codegen, conditional,
// human-wait, parallel, fan-in, tool, and a manager-loop stub.
package handler

import (
	"context"

	"github.com/attractorhq/pipeline-engine/graph"
)

// StartHandler is the no-op entry point every graph begins at. It never
// fails and never updates the context.
type StartHandler struct{}

func (StartHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	return graph.Outcome{Status: graph.StatusSkipped}, nil
}
