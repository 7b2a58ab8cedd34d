package middleware

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/attractorhq/pipeline-engine/graph"
)

// Span opens a tracing span named "handler.<node_id>" around next,
// records handler_type/visit_count/outcome_status/duration_ms/
// tokens_used/goal_gate as span attributes, and records the error (if
// any) on the span before re-raising it. Tracing failures never
// propagate: if tracer is nil, next is called directly.
//
// Node lifecycle (node.started/node.completed/node.failed) is emitted by
// the Runner itself rather than by this middleware, so that those events
// fire even for a dispatch chain with no Span middleware installed. Using
// Span together with graph/emit's OTelEmitter backend produces two
// independent span trees; pick one.
func Span(tracer trace.Tracer) Middleware {
	return func(next graph.HandlerFunc) graph.HandlerFunc {
		if tracer == nil {
			return next
		}
		return func(ctx context.Context, req graph.HandlerRequest) (outcome graph.Outcome, err error) {
			spanCtx, span := tracer.Start(ctx, fmt.Sprintf("handler.%s", req.Node.ID))
			defer span.End()

			started := time.Now()
			outcome, err = next(spanCtx, req)
			duration := time.Since(started)

			span.SetAttributes(
				attribute.String("handler_type", string(req.Node.Shape)),
				attribute.Int("visit_count", req.VisitCount),
				attribute.Int64("duration_ms", duration.Milliseconds()),
				attribute.Bool("goal_gate", req.Node.GoalGate()),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return outcome, err
			}
			span.SetAttributes(attribute.String("outcome_status", string(outcome.Status)))
			if tokens, ok := outcome.Metadata["tokens_used"]; ok {
				span.SetAttributes(attribute.String("tokens_used", fmt.Sprint(tokens)))
			}
			if outcome.Status == graph.StatusFailure {
				span.SetStatus(codes.Error, "handler returned a failure outcome")
			}
			return outcome, nil
		}
	}
}
