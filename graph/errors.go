package graph

import "fmt"

// ErrorCode identifies the kind of engine error.
type ErrorCode string

const (
	CodeParse                   ErrorCode = "PARSE_ERROR"
	CodeValidation              ErrorCode = "VALIDATION_ERROR"
	CodeUnknownShape            ErrorCode = "UNKNOWN_SHAPE"
	CodeNoEdge                  ErrorCode = "NO_EDGE"
	CodeCheckpointVersion       ErrorCode = "CHECKPOINT_VERSION_MISMATCH"
	CodeCheckpointGraphMismatch ErrorCode = "CHECKPOINT_GRAPH_MISMATCH"
	CodeLoopDetected            ErrorCode = "LOOP_DETECTED"
	CodeHandlerError            ErrorCode = "HANDLER_ERROR"
)

// EngineError is the single root of the engine's error taxonomy. Every
// fatal condition the engine raises is an *EngineError carrying a typed
// Code, a human-readable Message, the NodeID involved (if any), and an
// optional wrapped Cause.
type EngineError struct {
	Code    ErrorCode
	Message string
	NodeID  string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *EngineError with the same Code, so
// callers can write errors.Is(err, &EngineError{Code: CodeNoEdge}).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewParseError wraps an upstream graph-parsing failure.
func NewParseError(message string, cause error) *EngineError {
	return &EngineError{Code: CodeParse, Message: message, Cause: cause}
}

// NewValidationError reports a graph or input validation failure.
func NewValidationError(message string) *EngineError {
	return &EngineError{Code: CodeValidation, Message: message}
}

// NewUnknownShapeError reports a node shape with no registered handler.
func NewUnknownShapeError(nodeID string, shape NodeShape) *EngineError {
	return &EngineError{
		Code:    CodeUnknownShape,
		Message: fmt.Sprintf("no handler registered for shape %q", shape),
		NodeID:  nodeID,
	}
}

// NewNoEdgeError reports a node with no outgoing edge the selector can
// choose.
func NewNoEdgeError(nodeID string) *EngineError {
	return &EngineError{
		Code:    CodeNoEdge,
		Message: "node has no outgoing edges",
		NodeID:  nodeID,
	}
}

// NewCheckpointVersionError reports a schema_version mismatch between a
// loaded checkpoint and the engine's current version constant.
func NewCheckpointVersionError(found, want string) *EngineError {
	return &EngineError{
		Code:    CodeCheckpointVersion,
		Message: fmt.Sprintf("checkpoint schema_version %q does not match engine version %q", found, want),
	}
}

// NewCheckpointGraphMismatchError reports a completed node id absent from
// the current graph — removing a completed node is not a safe graph edit.
func NewCheckpointGraphMismatchError(nodeID string) *EngineError {
	return &EngineError{
		Code:    CodeCheckpointGraphMismatch,
		Message: "completed node is absent from the current graph",
		NodeID:  nodeID,
	}
}

// NewLoopDetectedError reports a node's visit count exceeding the
// configured max-node-visits bound.
func NewLoopDetectedError(nodeID string, visits, max int) *EngineError {
	return &EngineError{
		Code:    CodeLoopDetected,
		Message: fmt.Sprintf("node visited %d times, exceeding max_node_visits=%d", visits, max),
		NodeID:  nodeID,
	}
}

// NewHandlerError reports a handler that could not start its work at all
// (not a failure outcome — those are not errors).
func NewHandlerError(nodeID, message string, cause error) *EngineError {
	return &EngineError{
		Code:    CodeHandlerError,
		Message: message,
		NodeID:  nodeID,
		Cause:   cause,
	}
}
