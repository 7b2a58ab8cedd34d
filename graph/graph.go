package graph

import (
	"fmt"
	"sort"
)

const defaultGraphMaxRetry = 50

// Graph is the immutable, parsed pipeline definition: nodes, edges, and a
// forward/reverse adjacency index built once at construction time.
//
// Graph enforces the data-model invariants at construction: exactly one
// start node, at least one exit node, and every non-exit node has at
// least one outgoing edge. A Graph that fails these checks is never
// returned — NewGraph reports a *EngineError instead.
type Graph struct {
	Name  string
	Attrs map[string]string

	nodes     map[string]*Node
	nodeOrder []string
	edges     []Edge

	forward map[string][]Edge
	reverse map[string][]Edge
}

// NewGraph constructs a Graph from a node list (in declaration order) and
// an edge list (in declaration order), validating structural invariants:
// unique node ids, edges referencing known nodes, exactly one start node.
func NewGraph(name string, attrs map[string]string, nodes []*Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		Name:      name,
		Attrs:     attrs,
		nodes:     make(map[string]*Node, len(nodes)),
		nodeOrder: make([]string, 0, len(nodes)),
		edges:     edges,
		forward:   make(map[string][]Edge),
		reverse:   make(map[string][]Edge),
	}

	for _, n := range nodes {
		if _, exists := g.nodes[n.ID]; exists {
			return nil, NewValidationError(fmt.Sprintf("duplicate node id %q", n.ID))
		}
		g.nodes[n.ID] = n
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}

	for _, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, NewValidationError(fmt.Sprintf("edge %s references unknown source node", e.ID()))
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, NewValidationError(fmt.Sprintf("edge %s references unknown target node", e.ID()))
		}
		g.forward[e.Source] = append(g.forward[e.Source], e)
		g.reverse[e.Target] = append(g.reverse[e.Target], e)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validate() error {
	starts := g.nodesByShape(ShapeStart)
	if len(starts) != 1 {
		return NewValidationError(fmt.Sprintf("graph must have exactly one start node, found %d", len(starts)))
	}
	if len(g.nodesByShape(ShapeExit)) < 1 {
		return NewValidationError("graph must have at least one exit node")
	}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.Shape == ShapeExit {
			continue
		}
		if len(g.forward[id]) == 0 {
			return NewValidationError(fmt.Sprintf("non-exit node %q has no outgoing edges", id))
		}
	}
	return nil
}

func (g *Graph) nodesByShape(shape NodeShape) []*Node {
	var out []*Node
	for _, id := range g.nodeOrder {
		if g.nodes[id].Shape == shape {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Contains reports whether the graph has a node with the given id.
func (g *Graph) Contains(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodeOrder)
}

// AllNodeIDs returns every node id in declaration order.
func (g *Graph) AllNodeIDs() []string {
	out := make([]string, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// EdgesFrom returns the outgoing edges of a node, in declaration order.
func (g *Graph) EdgesFrom(id string) []Edge {
	return g.forward[id]
}

// EdgesTo returns the incoming edges of a node, in declaration order.
func (g *Graph) EdgesTo(id string) []Edge {
	return g.reverse[id]
}

// StartNode returns the graph's unique start node.
func (g *Graph) StartNode() (*Node, error) {
	starts := g.nodesByShape(ShapeStart)
	if len(starts) != 1 {
		return nil, NewValidationError(fmt.Sprintf("graph must have exactly one start node, found %d", len(starts)))
	}
	return starts[0], nil
}

// ExitNodes returns every exit-shaped node, in declaration order.
func (g *Graph) ExitNodes() []*Node {
	return g.nodesByShape(ShapeExit)
}

// GoalGateNodes returns every node marked goal_gate=true whose shape is
// eligible to be a goal gate (codegen, human-wait, parallel).
func (g *Graph) GoalGateNodes() []*Node {
	var out []*Node
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.GoalGate() && n.Shape.isGoalGateShape() {
			out = append(out, n)
		}
	}
	return out
}

// GoalGateNodeIDs returns GoalGateNodes' ids, sorted for deterministic
// reporting (used by the exit handler's failure metadata).
func (g *Graph) GoalGateNodeIDs() []string {
	nodes := g.GoalGateNodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)
	return ids
}

// PRDRef returns the graph-level prd_ref attribute.
func (g *Graph) PRDRef() string {
	return g.Attrs["prd_ref"]
}

// PromiseID returns the graph-level promise_id attribute.
func (g *Graph) PromiseID() string {
	return g.Attrs["promise_id"]
}

// DefaultMaxRetry returns the graph-level default_max_retry attribute.
// Defaults to 50. The retry middleware does not read it: a node without
// max_retries gets the middleware's own configured default.
func (g *Graph) DefaultMaxRetry() int {
	v, ok := g.Attrs["default_max_retry"]
	if !ok {
		return defaultGraphMaxRetry
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultGraphMaxRetry
	}
	return n
}

// RetryTarget returns the graph-level fallback routing target consulted
// by the edge selector's step 5.5 when a failure outcome has no matching
// edge.
func (g *Graph) RetryTarget() string {
	return g.Attrs["retry_target"]
}

// FallbackRetryTarget returns the secondary graph-level routing target,
// consulted when RetryTarget is unset or does not name an existing node.
func (g *Graph) FallbackRetryTarget() string {
	return g.Attrs["fallback_retry_target"]
}
