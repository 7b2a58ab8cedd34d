package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
)

const (
	envToolTimeout     = "ATTRACTOR_TOOL_TIMEOUT"
	defaultToolTimeout = 300 * time.Second
)

// ToolHandler runs node.tool_command as a shell subprocess in RunDir,
// capturing stdout/stderr/exit_code into the context.
type ToolHandler struct {
	Timeout time.Duration
}

// NewToolHandler returns a ToolHandler using ATTRACTOR_TOOL_TIMEOUT (or
// the 300s default) when Timeout is left zero.
func NewToolHandler() *ToolHandler {
	return &ToolHandler{Timeout: toolTimeoutFromEnv()}
}

func toolTimeoutFromEnv() time.Duration {
	if v := os.Getenv(envToolTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultToolTimeout
}

func (h *ToolHandler) Execute(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	command := req.Node.ToolCommand()
	if command == "" {
		return graph.Outcome{}, fmt.Errorf("tool handler: node %q has no tool_command", req.Node.ID)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = req.RunDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	updates := map[string]any{
		req.Node.ID + ".stdout": stdout.String(),
		req.Node.ID + ".stderr": stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		updates[req.Node.ID+".exit_code"] = 0
		return graph.Success(updates), nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return graph.Failure(updates, map[string]any{"error_type": "TIMEOUT"}), nil
	case errors.As(runErr, &exitErr):
		updates[req.Node.ID+".exit_code"] = exitErr.ExitCode()
		return graph.Failure(updates, map[string]any{"error_type": "NONZERO_EXIT"}), nil
	default:
		// Spawn failure: command not found, permission denied, etc. This is
		// not a retryable outcome — the node is misconfigured.
		return graph.Outcome{}, fmt.Errorf("tool handler: spawn %q in %s: %w", command, filepath.Clean(req.RunDir), runErr)
	}
}
