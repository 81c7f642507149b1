// Package hierarchy models the evaluation and test-case trees requirements
// link into: assessments grouped in assessment groups, scenarios grouped in
// scenario groups, and scenarios carrying their own variant scenarios.
// It supports recursive group expansion and transitive closure queries.
package hierarchy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Sentinel errors. Each wraps the apierr category it belongs to.
var (
	// ErrNodeNotFound is returned when an operation references a non-existent node.
	ErrNodeNotFound = fmt.Errorf("%w: hierarchy node", apierr.ErrNotFound)
	// ErrDuplicateNode is returned when adding a node that already exists.
	ErrDuplicateNode = fmt.Errorf("%w: duplicate hierarchy node", apierr.ErrConstraint)
	// ErrCycle is returned when an edge would make a node its own ancestor.
	ErrCycle = fmt.Errorf("%w: cycle detected", apierr.ErrConstraint)
	// ErrIllegalChild is returned when the child kind cannot live under the parent kind.
	ErrIllegalChild = fmt.Errorf("%w: illegal child", apierr.ErrConstraint)
	// ErrHasParent is returned when a node already has a parent.
	ErrHasParent = fmt.Errorf("%w: node already has a parent", apierr.ErrConstraint)
)

// Kind distinguishes leaves from groups in both trees.
type Kind int

const (
	Assessment Kind = iota + 1
	AssessmentGroup
	Scenario
	ScenarioGroup
)

var kindNames = map[Kind]string{
	Assessment:      "assessment",
	AssessmentGroup: "assessment_group",
	Scenario:        "scenario",
	ScenarioGroup:   "scenario_group",
}

// String returns the snake_case kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsGroup reports whether k is a group kind.
func (k Kind) IsGroup() bool {
	return k == AssessmentGroup || k == ScenarioGroup
}

// Leaf returns the leaf kind of k's tree: Assessment for assessment kinds,
// Scenario for scenario kinds.
func (k Kind) Leaf() Kind {
	switch k {
	case Assessment, AssessmentGroup:
		return Assessment
	case Scenario, ScenarioGroup:
		return Scenario
	}
	return 0
}

// canContain reports whether a node of kind parent may hold a child of kind
// child. Groups hold their own tree's nodes; scenarios hold variants.
func canContain(parent, child Kind) bool {
	switch parent {
	case AssessmentGroup:
		return child == Assessment || child == AssessmentGroup
	case ScenarioGroup:
		return child == Scenario || child == ScenarioGroup
	case Scenario:
		return child == Scenario
	}
	return false
}

// Ref addresses a node together with the project scope it belongs to.
type Ref struct {
	Scope string
	ID    string
}

// String returns "scope/id".
func (r Ref) String() string { return r.Scope + "/" + r.ID }

// Node is a snapshot of one tree node.
type Node struct {
	ID     string
	Kind   Kind
	Scope  string
	Parent string // empty for roots
}

// Ref returns the node's scoped reference.
func (n Node) Ref() Ref { return Ref{Scope: n.Scope, ID: n.ID} }

// Graph holds assessment and scenario trees. Edges point from a parent to
// its children; each node has at most one parent. Safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	// children maps nodeID → set of child IDs (forward edges).
	children map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string]map[string]bool),
	}
}

// AddNode adds a root node. Nodes normally carry the scope of the project
// that owns the graph; a different scope marks an element borrowed from
// another project.
func (g *Graph) AddNode(id string, kind Kind, scope string) error {
	if id == "" {
		return apierr.Constraint("hierarchy: empty node id")
	}
	if kind.Leaf() == 0 {
		return apierr.Constraint("hierarchy: unknown node kind %d", int(kind))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	g.nodes[id] = &Node{ID: id, Kind: kind, Scope: scope}
	g.children[id] = make(map[string]bool)
	return nil
}

// AddChild attaches child under parent. Both must exist, the child must be
// a root, the kinds must be compatible and the edge must not create a cycle.
func (g *Graph) AddChild(parent, child string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, parent)
	}
	c, ok := g.nodes[child]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, child)
	}
	if parent == child {
		return fmt.Errorf("%w: %s under itself", ErrCycle, parent)
	}
	if !canContain(p.Kind, c.Kind) {
		return fmt.Errorf("%w: %s %s under %s %s", ErrIllegalChild, c.Kind, child, p.Kind, parent)
	}
	if c.Parent == parent {
		return nil
	}
	if c.Parent != "" {
		return fmt.Errorf("%w: %s is under %s", ErrHasParent, child, c.Parent)
	}
	// Adding parent→child closes a cycle if parent is already below child.
	if g.reachable(child, parent) {
		return fmt.Errorf("%w: %s → %s", ErrCycle, parent, child)
	}
	g.children[parent][child] = true
	c.Parent = parent
	return nil
}

// Remove deletes a node and its whole subtree, returning the removed IDs
// sorted alphabetically.
func (g *Graph) Remove(id string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.Parent != "" {
		delete(g.children[n.Parent], id)
	}
	removed := append([]string{id}, g.collect(id)...)
	for _, r := range removed {
		delete(g.nodes, r)
		delete(g.children, r)
	}
	sort.Strings(removed)
	return removed, nil
}

// Node returns a snapshot of the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Children returns the direct children of id, sorted alphabetically.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.children[id]))
	for c := range g.children[id] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Leaves expands id into every node of leaf kind in its subtree, including
// id itself when it is a leaf. Results are sorted by ID.
func (g *Graph) Leaves(id string) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	leaf := n.Kind.Leaf()
	var out []Node
	for _, cid := range append([]string{id}, g.collect(id)...) {
		if c := g.nodes[cid]; c.Kind == leaf {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Descendants returns every node transitively below id, sorted
// alphabetically. Returns nil if id has no children or does not exist.
func (g *Graph) Descendants(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	out := g.collect(id)
	sort.Strings(out)
	return out
}

// Ancestors returns the parent chain of id from its parent up to the root.
func (g *Graph) Ancestors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	n, ok := g.nodes[id]
	for ok && n.Parent != "" {
		out = append(out, n.Parent)
		n, ok = g.nodes[n.Parent]
	}
	return out
}

// collect gathers the subtree below id breadth-first. Caller holds mu.
func (g *Graph) collect(id string) []string {
	var out []string
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for c := range g.children[cur] {
			if !visited[c] {
				visited[c] = true
				out = append(out, c)
				queue = append(queue, c)
			}
		}
	}
	return out
}

// reachable reports whether dst lies in the subtree of src. Caller holds mu.
func (g *Graph) reachable(src, dst string) bool {
	for _, id := range g.collect(src) {
		if id == dst {
			return true
		}
	}
	return false
}
