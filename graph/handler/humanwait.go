package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/signal"
)

const humanInputSignalFile = "INPUT_RESPONSE.signal"

// HumanWaitHandler polls for an external reviewer's decision, returning
// waiting (never an error) until a response signal arrives or Timeout
// elapses. The Runner checkpoints and yields control on every waiting
// outcome; a subsequent Run with ResumeRunDir re-enters Execute to poll
// again.
type HumanWaitHandler struct {
	// Timeout is the absolute wait bound from the node's first visit. Zero
	// means wait indefinitely.
	Timeout time.Duration
	Now     func() time.Time
}

// NewHumanWaitHandler returns a HumanWaitHandler with no timeout.
func NewHumanWaitHandler() *HumanWaitHandler {
	return &HumanWaitHandler{Now: time.Now}
}

func (h *HumanWaitHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	now := h.Now
	if now == nil {
		now = time.Now
	}

	startedKey := fmt.Sprintf("$human_wait_started.%s", req.Node.ID)
	startedAt, ok := req.Context.Get(startedKey)
	if !ok {
		req.Context.Set(startedKey, now())
		startedAt = now()
	}

	dir := filepath.Join(req.RunDir, "nodes", req.Node.ID, "signals")
	_, payload, ok, err := signal.Poll(dir, humanInputSignalFile)
	if err != nil {
		return graph.Outcome{}, err
	}
	if ok {
		response, _ := payload.Data["response"].(string)
		switch response {
		case "approve":
			return graph.Success(map[string]any{"human_response": response}), nil
		case "reject":
			return graph.Failure(map[string]any{"human_response": response}, nil), nil
		}
	}

	if h.Timeout > 0 {
		started, ok := startedAt.(time.Time)
		if s, isString := startedAt.(string); isString {
			// A resumed run reads the start time back from checkpoint JSON.
			parsed, err := time.Parse(time.RFC3339Nano, s)
			started, ok = parsed, err == nil
		}
		if ok && now().Sub(started) >= h.Timeout {
			return graph.Failure(nil, map[string]any{"error_type": "TIMEOUT"}), nil
		}
	}

	return graph.Outcome{Status: graph.StatusWaiting}, nil
}
