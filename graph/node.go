// Package graph provides the core pipeline execution engine: the graph
// model, edge selection, checkpointing, the handler/middleware contracts,
// and the Runner that drives a graph to completion.
package graph

import "strconv"

// NodeShape identifies a node's kind and selects the handler that executes
// it. The shape is the sole input to handler dispatch (see HandlerRegistry).
type NodeShape string

// The nine node shapes the engine knows how to dispatch. These correspond
// 1:1 to the DOT shape attributes listed in the external-interface
// contract (Mdiamond, Msquare, box, diamond, hexagon, component,
// tripleoctagon, parallelogram, house).
const (
	ShapeStart       NodeShape = "start"
	ShapeExit        NodeShape = "exit"
	ShapeCodegen     NodeShape = "codegen"
	ShapeConditional NodeShape = "conditional"
	ShapeHumanWait   NodeShape = "human-wait"
	ShapeParallel    NodeShape = "parallel"
	ShapeFanIn       NodeShape = "fan-in"
	ShapeTool        NodeShape = "tool"
	ShapeManagerLoop NodeShape = "manager-loop"
)

// DispatchStrategy selects how a codegen node reaches its worker.
type DispatchStrategy string

const (
	// DispatchTmux spawns an orchestrator process and polls signal files.
	// This is the default when a node does not set dispatch_strategy.
	DispatchTmux DispatchStrategy = "tmux"
	// DispatchSDK calls an in-process query callable synchronously.
	DispatchSDK DispatchStrategy = "sdk"
	// DispatchInline calls an injected func(ctx, prompt) (string, error)
	// directly, bypassing both tmux and the SDK client. Used by tests.
	DispatchInline DispatchStrategy = "inline"
)

// JoinPolicy controls how a parallel node aggregates its children's
// outcomes.
type JoinPolicy string

const (
	// JoinWaitAll awaits every child; success requires every child to
	// succeed. This is the default.
	JoinWaitAll JoinPolicy = "wait_all"
	// JoinFirstSuccess returns as soon as one child succeeds and cancels
	// the rest.
	JoinFirstSuccess JoinPolicy = "first_success"
)

const (
	defaultMaxRetries  = 3
	defaultJoinPolicy  = JoinWaitAll
	defaultDispatch    = DispatchTmux
	attrToolCommand    = "tool_command"
	attrToolCommandAlt = "command"
)

// Node is one work item in the pipeline graph. It is read-only after
// construction; handlers and the runner never mutate a Node.
//
// Attrs is the free-form string bag carried over from the DOT source (or
// any other parser producing this model). Typed accessors below project
// specific attrs into the types handlers expect, applying the defaults
// and fallbacks the engine contract requires.
type Node struct {
	ID    string
	Shape NodeShape
	Label string
	Attrs map[string]string
}

func (n *Node) attr(key string) (string, bool) {
	if n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[key]
	return v, ok && v != ""
}

// Prompt returns the codegen prompt text, empty if unset.
func (n *Node) Prompt() string {
	v, _ := n.attr("prompt")
	return v
}

// GoalGate reports whether this node is required for pipeline success.
func (n *Node) GoalGate() bool {
	v, ok := n.attr("goal_gate")
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// ToolCommand returns the shell command for a tool node. It falls back to
// the bare "command" attribute when "tool_command" is absent, matching the
// two spellings used interchangeably in DOT authoring.
func (n *Node) ToolCommand() string {
	if v, ok := n.attr(attrToolCommand); ok {
		return v
	}
	v, _ := n.attr(attrToolCommandAlt)
	return v
}

// DispatchStrategy returns the codegen dispatch strategy, defaulting to
// DispatchTmux when unset or unrecognized.
func (n *Node) DispatchStrategy() DispatchStrategy {
	v, ok := n.attr("dispatch_strategy")
	if !ok {
		return defaultDispatch
	}
	switch DispatchStrategy(v) {
	case DispatchTmux, DispatchSDK, DispatchInline:
		return DispatchStrategy(v)
	default:
		return defaultDispatch
	}
}

// MaxRetries returns the node's configured retry ceiling and whether it
// was explicitly set. When max_retries is absent or not an integer it
// returns the engine default (3) with ok=false.
func (n *Node) MaxRetries() (int, bool) {
	v, ok := n.attr("max_retries")
	if !ok {
		return defaultMaxRetries, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultMaxRetries, false
	}
	return i, true
}

// RetryTarget returns the node-level id to route to on exhausted retries,
// empty if unset.
func (n *Node) RetryTarget() string {
	v, _ := n.attr("retry_target")
	return v
}

// JoinPolicy returns the parallel-node aggregation policy, defaulting to
// JoinWaitAll.
func (n *Node) JoinPolicy() JoinPolicy {
	v, ok := n.attr("join_policy")
	if !ok {
		return defaultJoinPolicy
	}
	switch JoinPolicy(v) {
	case JoinWaitAll, JoinFirstSuccess:
		return JoinPolicy(v)
	default:
		return defaultJoinPolicy
	}
}

// AllowPartial reports whether a parallel/fan-in node tolerates a subset
// of children succeeding.
func (n *Node) AllowPartial() bool {
	v, ok := n.attr("allow_partial")
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// WorkerType returns the worker_type attribute passed through to the
// spawner, empty if unset.
func (n *Node) WorkerType() string {
	v, _ := n.attr("worker_type")
	return v
}

// Acceptance returns the acceptance-criteria text attribute.
func (n *Node) Acceptance() string {
	v, _ := n.attr("acceptance")
	return v
}

// FilePath returns the file_path attribute.
func (n *Node) FilePath() string {
	v, _ := n.attr("file_path")
	return v
}

// FolderPath returns the folder_path attribute.
func (n *Node) FolderPath() string {
	v, _ := n.attr("folder_path")
	return v
}

// BeadID returns the bead_id attribute, an opaque work-unit identifier
// passed through to the spawner.
func (n *Node) BeadID() string {
	v, _ := n.attr("bead_id")
	return v
}

// PRDRef returns the node-level prd_ref override, empty if unset (in which
// case callers fall back to Graph.PRDRef).
func (n *Node) PRDRef() string {
	v, _ := n.attr("prd_ref")
	return v
}

// ModelStylesheet returns the model_stylesheet attribute, an opaque string
// forwarded to codegen prompts.
func (n *Node) ModelStylesheet() string {
	v, _ := n.attr("model_stylesheet")
	return v
}

// SolutionDesign returns the solution_design attribute.
func (n *Node) SolutionDesign() string {
	v, _ := n.attr("solution_design")
	return v
}

// isGoalGateShape reports whether a shape is eligible to count as a goal
// gate (codegen, human-wait, parallel — per the exit handler's contract).
func (s NodeShape) isGoalGateShape() bool {
	switch s {
	case ShapeCodegen, ShapeHumanWait, ShapeParallel:
		return true
	default:
		return false
	}
}
