package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/emit"
)

// usageShape duck-types any JSON-marshalable message carrying a
// ".usage.input_tokens" / ".usage.output_tokens" pair — the shape shared
// by the Anthropic, OpenAI, and Gemini message SDKs. Round-tripping
// through JSON rather than a type switch lets this middleware sum tokens
// from any handler's RawMessages without importing a specific SDK's
// types.
type usageShape struct {
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// TokenCount sums input+output tokens out of outcome.RawMessages after
// next returns, accumulating into the $node_tokens (per-visit) and
// $total_tokens (run-cumulative) context keys. It emits context.updated
// only when a message actually carried usage data. A handler's error
// return or an empty RawMessages list is a no-op.
func TokenCount(emitter emit.Emitter, now func() time.Time) Middleware {
	return func(next graph.HandlerFunc) graph.HandlerFunc {
		return func(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
			outcome, err := next(ctx, req)
			if err != nil || len(outcome.RawMessages) == 0 {
				return outcome, err
			}

			var nodeTokens int64
			for _, raw := range outcome.RawMessages {
				blob, marshalErr := json.Marshal(raw)
				if marshalErr != nil {
					continue
				}
				var shape usageShape
				if jsonErr := json.Unmarshal(blob, &shape); jsonErr != nil {
					continue
				}
				nodeTokens += shape.Usage.InputTokens + shape.Usage.OutputTokens
			}
			if nodeTokens == 0 {
				return outcome, nil
			}

			total, _ := req.Context.Get(graph.CtxKeyTotalTokens)
			var totalTokens int64
			switch v := total.(type) {
			case int64:
				totalTokens = v
			case float64: // restored from checkpoint JSON on resume
				totalTokens = int64(v)
			}
			totalTokens += nodeTokens

			req.Context.Update(map[string]any{
				graph.CtxKeyNodeTokens:  nodeTokens,
				graph.CtxKeyTotalTokens: totalTokens,
			})

			events := emit.NewEventBuilder(req.PipelineID, now)
			emitter.Emit(events.ContextUpdated(req.Node.ID, map[string]any{
				graph.CtxKeyNodeTokens:  nodeTokens,
				graph.CtxKeyTotalTokens: totalTokens,
			}))

			return outcome, nil
		}
	}
}
