package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/attractorhq/pipeline-engine/graph"
	"github.com/attractorhq/pipeline-engine/graph/worker"
)

// Config bundles the external integrations and environment-driven
// timeouts the registry's handlers need at construction time. A zero
// duration leaves the handler's own built-in default in place.
type Config struct {
	Spawner     Spawner
	Query       worker.Query
	InlineQuery InlineQuery

	CodegenPollInterval time.Duration
	CodegenTimeout      time.Duration
	HumanGateTimeout    time.Duration
}

// dispatchRef is a late-bound indirection around the Runner's fully
// composed HandlerFunc. The parallel handler needs to dispatch its
// children through that same chain (so a branch node gets retry/span/
// audit like any other), but the chain itself is built by wrapping
// middleware around this registry's AsHandlerFunc — a direct reference
// would be a construction-order cycle. Binding it after the fact breaks
// the cycle at the cost of one indirection call per branch dispatch.
type dispatchRef struct {
	fn graph.HandlerFunc
}

func (r *dispatchRef) call(ctx context.Context, req graph.HandlerRequest) (graph.Outcome, error) {
	if r.fn == nil {
		return graph.Outcome{}, fmt.Errorf("handler: parallel dispatch used before BindDispatch was called")
	}
	return r.fn(ctx, req)
}

// NewDefaultRegistry builds a HandlerRegistry with all nine shapes bound.
// The returned bind func must be called with the Runner's composed
// dispatch (e.g. middleware.Chain(...)(registry.AsHandlerFunc())) before
// any parallel node is reached.
func NewDefaultRegistry(cfg Config) (registry *graph.HandlerRegistry, bindDispatch func(graph.HandlerFunc)) {
	ref := &dispatchRef{}
	reg := graph.NewHandlerRegistry()
	codegen := NewCodegenHandler(cfg.Spawner, cfg.Query, cfg.InlineQuery)
	if cfg.CodegenPollInterval > 0 {
		codegen.PollInterval = cfg.CodegenPollInterval
	}
	if cfg.CodegenTimeout > 0 {
		codegen.HandlerTimeout = cfg.CodegenTimeout
	}
	humanWait := NewHumanWaitHandler()
	humanWait.Timeout = cfg.HumanGateTimeout

	reg.Register(graph.ShapeStart, StartHandler{})
	reg.Register(graph.ShapeExit, NewExitHandler())
	reg.Register(graph.ShapeCodegen, codegen)
	reg.Register(graph.ShapeConditional, ConditionalHandler{})
	reg.Register(graph.ShapeHumanWait, humanWait)
	reg.Register(graph.ShapeParallel, NewParallelHandler(ref.call))
	reg.Register(graph.ShapeFanIn, FanInHandler{})
	reg.Register(graph.ShapeTool, NewToolHandler())
	reg.Register(graph.ShapeManagerLoop, ManagerLoopHandler{})
	return reg, func(fn graph.HandlerFunc) { ref.fn = fn }
}
