// Package linkgraph stores the links between requirements and the
// assessment and scenario nodes that verify them. Every link is kept in
// both directions under one lock, so the two views never disagree.
package linkgraph

import (
	"sort"
	"sync"

	"github.com/papapumpkin/tptmodel/internal/registry"
)

// Family selects which tree a link points into.
type Family int

const (
	Assessments Family = iota + 1
	Scenarios
)

func (f Family) String() string {
	switch f {
	case Assessments:
		return "assessments"
	case Scenarios:
		return "scenarios"
	}
	return "unknown"
}

// Change reports one link added or removed.
type Change struct {
	Requirement registry.ID
	Family      Family
	Node        string
	Linked      bool // false for removals
}

// Graph is the symmetric link store. The zero value is not usable; call New.
type Graph struct {
	mu       sync.RWMutex
	forward  map[registry.ID]map[Family]map[string]bool
	reverse  map[string]map[registry.ID]bool
	onChange func(Change)
}

// New creates an empty graph. onChange, if non-nil, is called for every
// link added or removed, after the graph lock is released.
func New(onChange func(Change)) *Graph {
	return &Graph{
		forward:  make(map[registry.ID]map[Family]map[string]bool),
		reverse:  make(map[string]map[registry.ID]bool),
		onChange: onChange,
	}
}

// LinkAll links req to every node in one critical section. Callers validate
// the whole batch first; LinkAll itself cannot fail. Existing links are
// kept. It returns the number of new links.
func (g *Graph) LinkAll(req registry.ID, fam Family, nodes []string) int {
	var added []Change
	g.mu.Lock()
	for _, n := range nodes {
		fams, ok := g.forward[req]
		if !ok {
			fams = make(map[Family]map[string]bool)
			g.forward[req] = fams
		}
		set, ok := fams[fam]
		if !ok {
			set = make(map[string]bool)
			fams[fam] = set
		}
		if set[n] {
			continue
		}
		set[n] = true
		back, ok := g.reverse[n]
		if !ok {
			back = make(map[registry.ID]bool)
			g.reverse[n] = back
		}
		back[req] = true
		added = append(added, Change{Requirement: req, Family: fam, Node: n, Linked: true})
	}
	g.mu.Unlock()
	g.notify(added)
	return len(added)
}

// Unlink removes the link between req and node in both directions. It
// reports whether the link existed.
func (g *Graph) Unlink(req registry.ID, fam Family, node string) bool {
	g.mu.Lock()
	ok := g.unlinkLocked(req, fam, node)
	g.mu.Unlock()
	if ok {
		g.notify([]Change{{Requirement: req, Family: fam, Node: node}})
	}
	return ok
}

func (g *Graph) unlinkLocked(req registry.ID, fam Family, node string) bool {
	set := g.forward[req][fam]
	if !set[node] {
		return false
	}
	delete(set, node)
	if len(set) == 0 {
		delete(g.forward[req], fam)
		if len(g.forward[req]) == 0 {
			delete(g.forward, req)
		}
	}
	delete(g.reverse[node], req)
	if len(g.reverse[node]) == 0 {
		delete(g.reverse, node)
	}
	return true
}

// Linked returns the nodes req links to in fam, sorted.
func (g *Graph) Linked(req registry.ID, fam Family) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.forward[req][fam]))
	for n := range g.forward[req][fam] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// IsLinked reports whether req links to node in fam.
func (g *Graph) IsLinked(req registry.ID, fam Family, node string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.forward[req][fam][node]
}

// Requirements returns the requirements linked to node, sorted by id.
func (g *Graph) Requirements(node string) []registry.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]registry.ID, 0, len(g.reverse[node]))
	for id := range g.reverse[node] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DropRequirement removes every link of req.
func (g *Graph) DropRequirement(req registry.ID) int {
	var removed []Change
	g.mu.Lock()
	for fam, set := range g.forward[req] {
		for n := range set {
			removed = append(removed, Change{Requirement: req, Family: fam, Node: n})
		}
	}
	for _, c := range removed {
		g.unlinkLocked(c.Requirement, c.Family, c.Node)
	}
	g.mu.Unlock()
	g.notify(removed)
	return len(removed)
}

// DropNodes removes every link pointing at any of nodes.
func (g *Graph) DropNodes(nodes ...string) int {
	var removed []Change
	g.mu.Lock()
	for _, n := range nodes {
		for req := range g.reverse[n] {
			for fam, set := range g.forward[req] {
				if set[n] {
					removed = append(removed, Change{Requirement: req, Family: fam, Node: n})
				}
			}
		}
	}
	for _, c := range removed {
		g.unlinkLocked(c.Requirement, c.Family, c.Node)
	}
	g.mu.Unlock()
	g.notify(removed)
	return len(removed)
}

// Len returns the total number of links.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, fams := range g.forward {
		for _, set := range fams {
			n += len(set)
		}
	}
	return n
}

func (g *Graph) notify(changes []Change) {
	if g.onChange == nil {
		return
	}
	for _, c := range changes {
		g.onChange(c)
	}
}
