package handler

import (
	"context"

	"github.com/attractorhq/pipeline-engine/graph"
)

// ConditionalHandler is a pure routing marker: it never fails and never
// updates the context. Branching happens entirely in the edge selector,
// driven by the edges' own condition/label/weight metadata.
type ConditionalHandler struct{}

func (ConditionalHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	return graph.Success(nil), nil
}
