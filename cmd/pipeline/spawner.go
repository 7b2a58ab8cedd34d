package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
)

const envCodegenAgentCmd = "ATTRACTOR_CODEGEN_AGENT_CMD"

// tmuxSpawner launches the external coding-agent process for a codegen
// node's tmux dispatch strategy: a detached tmux session running
// ATTRACTOR_CODEGEN_AGENT_CMD (or a plain `cat`, for dry-running graphs
// with no agent configured) against the prompt file the handler has
// already written.
type tmuxSpawner struct {
	agentCmd string
}

func newTmuxSpawner() *tmuxSpawner {
	cmd := os.Getenv(envCodegenAgentCmd)
	if cmd == "" {
		cmd = "cat"
	}
	return &tmuxSpawner{agentCmd: cmd}
}

func (s *tmuxSpawner) spawn(ctx context.Context, req graph.HandlerRequest, promptPath string) error {
	session := "pipeline-" + req.Node.ID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	shellCmd := fmt.Sprintf("%s %q", s.agentCmd, promptPath)
	cmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", session, shellCmd)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("spawn tmux session for node %s: %w", req.Node.ID, err)
	}
	return nil
}
