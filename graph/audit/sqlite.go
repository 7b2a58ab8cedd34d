// Package audit provides a SQLite-backed graph.AuditWriter: a durable
// log of every node's status transitions, independent of the
// checkpoint file a run resumes from.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/attractorhq/pipeline-engine/graph"
)

// SQLiteWriter persists AuditEntry rows to a single-file SQLite
// database. It is safe for concurrent use: the underlying connection
// pool is capped at one writer, matching SQLite's own single-writer
// model.
type SQLiteWriter struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteWriter opens (and migrates, if needed) a SQLite database at
// path. Pass ":memory:" for a throwaway writer in tests.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}

	w := &SQLiteWriter{db: db}
	if err := w.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pipeline_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMP NOT NULL
		)
	`
	if _, err := w.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("audit: create audit_entries: %w", err)
	}
	const index = `CREATE INDEX IF NOT EXISTS idx_audit_pipeline ON audit_entries(pipeline_id, recorded_at)`
	if _, err := w.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("audit: create idx_audit_pipeline: %w", err)
	}
	return nil
}

// WriteAuditEntry implements graph.AuditWriter.
func (w *SQLiteWriter) WriteAuditEntry(ctx context.Context, pipelineID string, entry graph.AuditEntry) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return fmt.Errorf("audit: writer is closed")
	}

	const stmt = `
		INSERT INTO audit_entries (pipeline_id, node_id, from_status, to_status, agent_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := w.db.ExecContext(ctx, stmt, pipelineID, entry.NodeID, entry.FromStatus, entry.ToStatus, entry.AgentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Entries returns every recorded transition for pipelineID, oldest
// first. It is a read-side helper; nothing on the hot path calls it.
func (w *SQLiteWriter) Entries(ctx context.Context, pipelineID string) ([]graph.AuditEntry, error) {
	const query = `
		SELECT node_id, from_status, to_status, agent_id
		FROM audit_entries
		WHERE pipeline_id = ?
		ORDER BY id ASC
	`
	rows, err := w.db.QueryContext(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []graph.AuditEntry
	for rows.Next() {
		var e graph.AuditEntry
		if err := rows.Scan(&e.NodeID, &e.FromStatus, &e.ToStatus, &e.AgentID); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle. Safe to call more
// than once.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}
