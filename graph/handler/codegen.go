package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/signal"
	"github.com/attractorhq/pipeline-engine/graph/worker"
)

const (
	defaultSignalPollInterval = 10 * time.Second
	defaultCodegenTimeout     = 3600 * time.Second
)

// Spawner launches the external orchestrator process for a codegen
// node's tmux dispatch strategy (typically a tmux new-session invocation
// running an agent CLI). Implementations receive the path to the prompt
// file the handler has already written.
type Spawner func(ctx context.Context, req graph.HandlerRequest, promptPath string) error

// InlineQuery is the func(ctx, prompt) (string, error) an inline-strategy
// codegen node calls directly, bypassing both tmux and the Anthropic SDK
// client entirely. Tests inject this to exercise the handler without a
// real orchestrator or API key.
type InlineQuery func(ctx context.Context, prompt string) (string, error)

// CodegenHandler dispatches a codegen node to an external orchestrator
// (tmux strategy, the default) or an in-process LLM query (sdk strategy),
// per node.DispatchStrategy().
type CodegenHandler struct {
	Spawner        Spawner
	Query          worker.Query
	Inline         InlineQuery
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	Sleep          func(context.Context, time.Duration) error
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewCodegenHandler returns a CodegenHandler with a 10s poll interval and
// a 3600s handler timeout. Pass a nil spawner/query/inline for any
// strategy the caller does not intend to exercise.
func NewCodegenHandler(spawner Spawner, query worker.Query, inline InlineQuery) *CodegenHandler {
	return &CodegenHandler{
		Spawner:        spawner,
		Query:          query,
		Inline:         inline,
		PollInterval:   defaultSignalPollInterval,
		HandlerTimeout: defaultCodegenTimeout,
		Sleep:          contextAwareSleep,
		Now:            time.Now,
		Logger:         slog.Default(),
	}
}

func (h *CodegenHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	switch req.Node.DispatchStrategy() {
	case graph.DispatchSDK:
		outcome, err := h.executeSDK(ctx, req)
		if err == nil {
			return outcome, nil
		}
		h.logger().Warn("codegen sdk strategy failed, falling back to tmux", "node_id", req.Node.ID, "error", err)
		return h.executeTmux(ctx, req)
	case graph.DispatchInline:
		return h.executeInline(ctx, req)
	default:
		return h.executeTmux(ctx, req)
	}
}

func (h *CodegenHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *CodegenHandler) executeSDK(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	if h.Query == nil {
		return graph.Outcome{}, fmt.Errorf("codegen handler: sdk strategy requires a worker.Query")
	}
	result, err := h.Query(ctx, "", req.Node.Prompt())
	if err != nil {
		return graph.Outcome{}, err
	}
	return graph.Outcome{
		Status:         graph.StatusSuccess,
		ContextUpdates: map[string]any{req.Node.ID + ".output": result.Text},
		Metadata:       map[string]any{"dispatch_strategy": "sdk", "stop_reason": result.StopReason},
		RawMessages:    []any{result.RawMessage},
	}, nil
}

func (h *CodegenHandler) executeInline(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	if h.Inline == nil {
		return graph.Failure(nil, map[string]any{"error_type": "NO_INLINE_QUERY"}), nil
	}
	text, err := h.Inline(ctx, req.Node.Prompt())
	if err != nil {
		return graph.Failure(map[string]any{"error": err.Error()}, map[string]any{"error_type": "INLINE_ERROR"}), nil
	}
	return graph.Outcome{
		Status:         graph.StatusSuccess,
		ContextUpdates: map[string]any{req.Node.ID + ".output": text},
		Metadata:       map[string]any{"dispatch_strategy": "inline"},
	}, nil
}

func (h *CodegenHandler) executeTmux(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	nodeDir := filepath.Join(req.RunDir, "nodes", req.Node.ID)
	signalsDir := filepath.Join(nodeDir, "signals")
	promptPath := filepath.Join(nodeDir, "prompt.md")

	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		return graph.Outcome{}, fmt.Errorf("codegen handler: create node dir: %w", err)
	}
	if err := os.WriteFile(promptPath, []byte(req.Node.Prompt()), 0o644); err != nil {
		return graph.Outcome{}, fmt.Errorf("codegen handler: write prompt: %w", err)
	}

	if h.Spawner != nil {
		if err := h.Spawner(ctx, req, promptPath); err != nil {
			return graph.Outcome{}, fmt.Errorf("codegen handler: spawn orchestrator: %w", err)
		}
	}

	completeName := req.Node.ID + "-complete.signal"
	failedName := req.Node.ID + "-failed.signal"
	reviewName := req.Node.ID + "-needs-review.signal"

	pollInterval := h.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultSignalPollInterval
	}
	timeout := h.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultCodegenTimeout
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	sleep := h.Sleep
	if sleep == nil {
		sleep = contextAwareSleep
	}

	deadline := now().Add(timeout)
	for {
		name, payload, ok, err := signal.Poll(signalsDir, completeName, failedName, reviewName)
		if err != nil {
			return graph.Outcome{}, fmt.Errorf("codegen handler: read signal: %w", err)
		}
		if ok {
			outcome := h.outcomeForSignal(name, completeName, failedName, reviewName, payload)
			writeNodeOutcomeBestEffort(nodeDir, outcome, h.logger())
			return outcome, nil
		}
		if now().After(deadline) {
			outcome := graph.Failure(nil, map[string]any{"error_type": "TIMEOUT"})
			writeNodeOutcomeBestEffort(nodeDir, outcome, h.logger())
			return outcome, nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return graph.Outcome{}, err
		}
	}
}

func (h *CodegenHandler) outcomeForSignal(name, completeName, failedName, reviewName string, payload signal.Payload) graph.Outcome {
	switch name {
	case completeName:
		return graph.Success(nil)
	case failedName:
		meta := map[string]any{}
		if feedback, ok := payload.Data["feedback"]; ok {
			meta["feedback"] = feedback
		}
		return graph.Failure(nil, meta)
	case reviewName:
		return graph.Outcome{Status: graph.StatusPartialSuccess, Metadata: payload.Data}
	default:
		return graph.Failure(nil, map[string]any{"error_type": "UNKNOWN_SIGNAL"})
	}
}

func writeNodeOutcomeBestEffort(nodeDir string, outcome graph.Outcome, logger *slog.Logger) {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		logger.Warn("codegen handler: failed to marshal outcome.json", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(nodeDir, "outcome.json"), data, 0o644); err != nil {
		logger.Warn("codegen handler: failed to write outcome.json", "error", err)
	}
}

func contextAwareSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
