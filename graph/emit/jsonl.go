package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLEmitter appends one JSON object per line to a file, the primary
// durable event trail for inspecting what happened before a crash (a
// resumed run restores its state from checkpoint.json, not from this
// file). Write errors are dropped silently. The file is opened append-only and never
// truncated: resuming a pipeline extends the same trail rather than
// starting a new one.
type JSONLEmitter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLEmitter opens (creating if absent) the file at path in
// append mode.
func NewJSONLEmitter(path string) (*JSONLEmitter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl event log: %w", err)
	}
	return &JSONLEmitter{file: f, enc: json.NewEncoder(f)}, nil
}

func (e *JSONLEmitter) Emit(event PipelineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(event)
}

func (e *JSONLEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}
