// Package middleware implements the engine's handler middleware chain:
// Span, Retry, TokenCount, and Audit, composed right-to-left around a
// graph.HandlerFunc.
//
// This package lives outside graph (rather than inside it) because it
// imports graph for HandlerFunc, HandlerRequest and AuditWriter; graph
// itself imports only graph/emit among its subpackages.
package middleware

import "github.com/attractorhq/pipeline-engine/graph"

// Middleware wraps a graph.HandlerFunc with before/after behavior around
// the call to next.
type Middleware func(next graph.HandlerFunc) graph.HandlerFunc

// Chain composes mws right-to-left: the first middleware in the list is
// the outermost wrapper, seeing a request before any other and the
// outcome after all others. An empty chain returns final unwrapped.
func Chain(mws ...Middleware) Middleware {
	return func(final graph.HandlerFunc) graph.HandlerFunc {
		wrapped := final
		for i := len(mws) - 1; i >= 0; i-- {
			wrapped = mws[i](wrapped)
		}
		return wrapped
	}
}
