package graph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

// EngineCheckpointVersion is the exact schema_version string this engine
// writes and requires on load. There are no migrations: a checkpoint
// written by a different version is refused, never upgraded in place.
const EngineCheckpointVersion = "1.0.0"

const (
	checkpointFilename    = "checkpoint.json"
	checkpointTmpFilename = "checkpoint.json.tmp"
	manifestFilename      = "manifest.json"
	runTimestampFormat    = "20060102T150405Z"
)

// NodeRecord is one entry in a checkpoint's execution log — one per
// completed handler invocation, not per node: a revisited node appears
// multiple times.
type NodeRecord struct {
	NodeID         string         `json:"node_id"`
	HandlerType    string         `json:"handler_type"`
	Status         OutcomeStatus  `json:"status"`
	ContextUpdates map[string]any `json:"context_updates,omitempty"`
	PreferredLabel string         `json:"preferred_label,omitempty"`
	SuggestedNext  string         `json:"suggested_next,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// EngineCheckpoint is the single source of truth for crash recovery. It is
// owned by the CheckpointManager and replaced wholesale (copy-on-write) at
// each save — there is no fine-grained locking because every save is a
// full-record overwrite via atomic rename.
type EngineCheckpoint struct {
	SchemaVersion       string         `json:"schema_version"`
	PipelineID          string         `json:"pipeline_id"`
	DotPath             string         `json:"dot_path"`
	RunDir              string         `json:"run_dir"`
	StartedAt           time.Time      `json:"started_at"`
	LastUpdatedAt       time.Time      `json:"last_updated_at"`
	CompletedNodes      []string       `json:"completed_nodes"`
	NodeRecords         []NodeRecord   `json:"node_records"`
	CurrentNodeID       string         `json:"current_node_id,omitempty"`
	LastEdgeID          string         `json:"last_edge_id,omitempty"`
	Context             map[string]any `json:"context"`
	VisitCounts         map[string]int `json:"visit_counts"`
	TotalNodeExecutions int            `json:"total_node_executions"`
	TotalTokensUsed     int            `json:"total_tokens_used"`
}

// manifest is written once at run start and never modified again.
type manifest struct {
	PipelineID    string    `json:"pipeline_id"`
	DotPath       string    `json:"dot_path"`
	StartedAt     time.Time `json:"started_at"`
	SchemaVersion string    `json:"schema_version"`
}

// CheckpointManager owns the on-disk representation of one run directory:
// checkpoint.json (authoritative), checkpoint.json.tmp (staging),
// manifest.json (immutable), and nodes/<id>/ (per-node artefacts).
type CheckpointManager struct {
	RunDir string
	logger *slog.Logger
}

// NewCheckpointManager returns a manager bound to runDir. The directory is
// created if absent.
func NewCheckpointManager(runDir string, logger *slog.Logger) (*CheckpointManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &CheckpointManager{RunDir: runDir, logger: logger}, nil
}

// CreateRunDir builds a fresh, timestamped run directory under
// pipelinesDir and returns its path:
// "{pipelinesDir}/{pipelineID}-run-{UTC-timestamp}".
func CreateRunDir(pipelinesDir, pipelineID string, now time.Time) (string, error) {
	stamp := now.UTC().Format(runTimestampFormat)
	dir := filepath.Join(pipelinesDir, fmt.Sprintf("%s-run-%s", pipelineID, stamp))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// NewPipelineID generates a lexically-sortable run identifier. A ULID
// embeds its creation timestamp, so run directories naturally sort
// chronologically without parsing the timestamp suffix.
func NewPipelineID(now time.Time, entropy *ulid.MonotonicEntropy) string {
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	return id.String()
}

func (m *CheckpointManager) checkpointPath() string {
	return filepath.Join(m.RunDir, checkpointFilename)
}

func (m *CheckpointManager) tmpPath() string {
	return filepath.Join(m.RunDir, checkpointTmpFilename)
}

func (m *CheckpointManager) manifestPath() string {
	return filepath.Join(m.RunDir, manifestFilename)
}

// NodeDir returns the per-node artefact directory for nodeID, creating it
// if absent.
func (m *CheckpointManager) NodeDir(nodeID string) (string, error) {
	dir := filepath.Join(m.RunDir, "nodes", nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create node dir: %w", err)
	}
	return dir, nil
}

// Exists reports whether an authoritative checkpoint.json is present.
func (m *CheckpointManager) Exists() bool {
	_, err := os.Stat(m.checkpointPath())
	return err == nil
}

// Save refreshes LastUpdatedAt, serializes the checkpoint to the tmp
// path, and atomically renames it onto the authoritative path. A same-
// filesystem POSIX rename is atomic, so a crash mid-save leaves either
// the old checkpoint or the new one intact, never a half-written file.
//
// Save never returns a fatal error to the caller: a write or rename
// failure is logged and swallowed. A lost save is recoverable on the
// next successful one; a mid-handler crash is recovered from the last
// successful checkpoint regardless.
func (m *CheckpointManager) Save(cp *EngineCheckpoint) {
	cp.LastUpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		m.logger.Warn("checkpoint marshal failed", "error", err)
		return
	}

	if err := os.WriteFile(m.tmpPath(), data, 0o644); err != nil {
		m.logger.Warn("checkpoint tmp write failed", "error", err)
		return
	}

	if err := os.Rename(m.tmpPath(), m.checkpointPath()); err != nil {
		m.logger.Warn("checkpoint rename failed", "error", err)
	}
}

// LoadOrCreate loads and validates the existing checkpoint.json if
// present, otherwise constructs a fresh one in memory without saving it
// (writing manifest.json idempotently either way); the first Save
// persists it.
//
// Validation failures are fatal: a schema_version mismatch yields
// *EngineError with CodeCheckpointVersion; a completed node id absent
// from graphNodeIDs (when non-nil) yields CodeCheckpointGraphMismatch.
// Adding new nodes to the graph between runs is safe; removing a
// completed node is not.
func (m *CheckpointManager) LoadOrCreate(pipelineID, dotPath string, graphNodeIDs []string, now time.Time) (*EngineCheckpoint, error) {
	if err := m.writeManifestIfAbsent(pipelineID, dotPath, now); err != nil {
		return nil, err
	}

	if m.Exists() {
		cp, err := m.loadAndValidate(graphNodeIDs)
		if err != nil {
			return nil, err
		}
		return cp, nil
	}

	cp := &EngineCheckpoint{
		SchemaVersion:  EngineCheckpointVersion,
		PipelineID:     pipelineID,
		DotPath:        dotPath,
		RunDir:         m.RunDir,
		StartedAt:      now.UTC(),
		LastUpdatedAt:  now.UTC(),
		CompletedNodes: []string{},
		NodeRecords:    []NodeRecord{},
		Context:        map[string]any{},
		VisitCounts:    map[string]int{},
	}
	return cp, nil
}

func (m *CheckpointManager) loadAndValidate(graphNodeIDs []string) (*EngineCheckpoint, error) {
	data, err := os.ReadFile(m.checkpointPath())
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp EngineCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, NewParseError("checkpoint.json is not valid JSON", err)
	}
	if cp.SchemaVersion != EngineCheckpointVersion {
		return nil, NewCheckpointVersionError(cp.SchemaVersion, EngineCheckpointVersion)
	}
	if graphNodeIDs != nil {
		known := make(map[string]bool, len(graphNodeIDs))
		for _, id := range graphNodeIDs {
			known[id] = true
		}
		for _, id := range cp.CompletedNodes {
			if !known[id] {
				return nil, NewCheckpointGraphMismatchError(id)
			}
		}
	}
	return &cp, nil
}

func (m *CheckpointManager) writeManifestIfAbsent(pipelineID, dotPath string, now time.Time) error {
	if _, err := os.Stat(m.manifestPath()); err == nil {
		return nil
	}
	man := manifest{
		PipelineID:    pipelineID,
		DotPath:       dotPath,
		StartedAt:     now.UTC(),
		SchemaVersion: EngineCheckpointVersion,
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(m.manifestPath(), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
