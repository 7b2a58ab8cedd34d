// Package signal implements the filesystem rendezvous protocol the
// codegen and human-wait handlers use to synchronize with external
// processes (a tmux-spawned orchestrator, a human reviewer, a wrapping
// orchestrator polling for crash/violation signals): a signal is a JSON
// file written atomically (write to a temp path, then rename) so a
// poller never observes a partially written file.
package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Payload is the JSON body written to a signal file.
type Payload struct {
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Type      string         `json:"signal_type"`
	Data      map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Write atomically creates "{dir}/{filename}" containing payload. dir is
// created if absent. The temp file is written in the same directory so
// the final rename is a same-filesystem, atomic operation.
func Write(dir, filename string, payload Payload) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create signal dir: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}

	final := filepath.Join(dir, filename)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write signal tmp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename signal file: %w", err)
	}
	return nil
}

// Exists reports whether "{dir}/{filename}" is present.
func Exists(dir, filename string) bool {
	_, err := os.Stat(filepath.Join(dir, filename))
	return err == nil
}

// Read parses "{dir}/{filename}" into a Payload. Callers typically poll
// Exists first; Read itself does not retry on a missing file.
func Read(dir, filename string) (Payload, error) {
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return Payload{}, fmt.Errorf("read signal file: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("parse signal file: %w", err)
	}
	return p, nil
}

// Poll scans dir for the first of candidateFilenames that exists,
// returning its filename and parsed payload. ok is false when none of
// the candidates are present yet.
func Poll(dir string, candidateFilenames ...string) (filename string, payload Payload, ok bool, err error) {
	for _, name := range candidateFilenames {
		if !Exists(dir, name) {
			continue
		}
		p, readErr := Read(dir, name)
		if readErr != nil {
			return name, Payload{}, false, readErr
		}
		return name, p, true, nil
	}
	return "", Payload{}, false, nil
}

// Bridge adapts the filesystem protocol to emit.SignalWriter, the
// interface the event bus's signal-bridge backend consumes. Signals
// written through the bridge always land in baseDir, one directory per
// run rather than per node — they announce run-level lifecycle events,
// not individual handler completions.
type Bridge struct {
	BaseDir string
}

// NewBridge returns a Bridge rooted at baseDir (typically
// "{run_dir}/signals").
func NewBridge(baseDir string) *Bridge {
	return &Bridge{BaseDir: baseDir}
}

// WriteSignal implements emit.SignalWriter. The filename is derived from
// signalType so repeated signals of the same kind overwrite rather than
// accumulate.
func (b *Bridge) WriteSignal(signalType, source, target string, data map[string]any) error {
	filename := signalType + ".signal"
	return Write(b.BaseDir, filename, Payload{
		Source:    source,
		Target:    target,
		Type:      signalType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
