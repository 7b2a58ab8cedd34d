package middleware

import (
	"context"
	"log/slog"

	"github.com/attractorhq/pipeline-engine/graph"
)

// Audit writes a before/after status-transition pair to writer around
// every handler call: (pending → active) before next, then
// (active → outcome.status) after. Write failures are logged through
// logger, never raised — an audit sink must never be able to fail a
// pipeline run. A nil writer defaults to graph.NullAuditWriter.
func Audit(writer graph.AuditWriter, logger *slog.Logger) Middleware {
	if writer == nil {
		writer = graph.NullAuditWriter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next graph.HandlerFunc) graph.HandlerFunc {
		return func(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
			agentID := req.Context.GetString("$agent_id")

			if err := writer.WriteAuditEntry(ctx, req.PipelineID, graph.AuditEntry{
				NodeID:     req.Node.ID,
				FromStatus: "pending",
				ToStatus:   "active",
				AgentID:    agentID,
			}); err != nil {
				logger.Warn("audit write failed", "node_id", req.Node.ID, "error", err)
			}

			outcome, err := next(ctx, req)

			toStatus := string(outcome.Status)
			if err != nil {
				toStatus = "error"
			}
			if auditErr := writer.WriteAuditEntry(ctx, req.PipelineID, graph.AuditEntry{
				NodeID:     req.Node.ID,
				FromStatus: "active",
				ToStatus:   toStatus,
				AgentID:    agentID,
			}); auditErr != nil {
				logger.Warn("audit write failed", "node_id", req.Node.ID, "error", auditErr)
			}

			return outcome, err
		}
	}
}
