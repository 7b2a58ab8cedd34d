// Package worker provides the in-process query callable the codegen
// handler's "sdk" dispatch strategy calls synchronously, bypassing the
// tmux-orchestrator/signal-file round trip entirely.
package worker

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Result is what a Query call hands back to the codegen handler: the
// model's text output plus the raw response message, kept opaque so the
// token-count middleware can duck-type its usage fields without this
// package or graph/handler needing to agree on a shared schema.
type Result struct {
	Text       string
	RawMessage any
	StopReason string
}

// Query synchronously sends prompt (with an optional system prompt) to an
// LLM and returns its response. The codegen handler's sdk strategy calls
// this directly instead of spawning an orchestrator subprocess; on error
// it is expected to fall back to the tmux strategy with a warning, per
// the handler's own contract.
type Query func(ctx context.Context, systemPrompt, prompt string) (Result, error)

const defaultMaxTokens = 4096

// AnthropicQuery builds a Query backed by the Anthropic Messages API.
// modelName defaults to "claude-sonnet-4-5-20250929" when empty.
func AnthropicQuery(apiKey, modelName string) Query {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(apiKey))

	return func(ctx context.Context, systemPrompt, prompt string) (Result, error) {
		if apiKey == "" {
			return Result{}, fmt.Errorf("worker: ANTHROPIC_API_KEY is required for the sdk dispatch strategy")
		}

		params := anthropicsdk.MessageNewParams{
			Model:     anthropicsdk.Model(modelName),
			MaxTokens: defaultMaxTokens,
			Messages: []anthropicsdk.MessageParam{
				anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
			},
		}
		if systemPrompt != "" {
			params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
		}

		resp, err := client.Messages.New(ctx, params)
		if err != nil {
			return Result{}, fmt.Errorf("worker: anthropic query failed: %w", err)
		}

		var text string
		for _, block := range resp.Content {
			if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
				if text != "" {
					text += "\n"
				}
				text += tb.Text
			}
		}

		return Result{
			Text:       text,
			RawMessage: resp,
			StopReason: string(resp.StopReason),
		}, nil
	}
}
