package project

import (
	"context"
	"sort"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/hierarchy"
	"github.com/papapumpkin/tptmodel/internal/linkgraph"
	"github.com/papapumpkin/tptmodel/internal/registry"
	"github.com/papapumpkin/tptmodel/internal/requirement"
)

// AddNode adds a root assessment or scenario node in the project's scope.
func (p *Project) AddNode(id string, kind hierarchy.Kind) (hierarchy.Ref, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpen(); err != nil {
		return hierarchy.Ref{}, err
	}
	if err := p.tree.AddNode(id, kind, p.scope); err != nil {
		return hierarchy.Ref{}, err
	}
	return hierarchy.Ref{Scope: p.scope, ID: id}, nil
}

// RemoveNode removes a node with its subtree and drops every link into it.
func (p *Project) RemoveNode(id string) error {
	p.nodes.Lock()
	defer p.nodes.Unlock()
	removed, err := p.tree.Remove(id)
	if err != nil {
		return err
	}
	p.links.DropNodes(removed...)
	return nil
}

// LinkAssessment links the requirement to an assessment, or to every
// assessment below an assessment group. Either every link is created or,
// on error, none is.
func (p *Project) LinkAssessment(ctx context.Context, reqID registry.ID, target hierarchy.Ref) error {
	err := p.link(ctx, reqID, target, linkgraph.Assessments)
	p.observe("link_assessment", err)
	return err
}

// LinkScenario links the requirement to a scenario, or to every scenario
// below a scenario group. Either every link is created or, on error, none
// is.
func (p *Project) LinkScenario(ctx context.Context, reqID registry.ID, target hierarchy.Ref) error {
	err := p.link(ctx, reqID, target, linkgraph.Scenarios)
	p.observe("link_scenario", err)
	return err
}

// link validates the whole expansion before writing anything. The write
// happens while the requirement's type is pinned by WhileLinkable and the
// expanded nodes are pinned by the node lock.
func (p *Project) link(ctx context.Context, reqID registry.ID, target hierarchy.Ref, fam linkgraph.Family) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := p.Requirement(reqID)
	if err != nil {
		return err
	}
	if target.Scope != p.scope {
		return apierr.InvalidLinkTarget("%s belongs to project %q, not %q", target, target.Scope, p.scope)
	}

	p.nodes.RLock()
	defer p.nodes.RUnlock()
	node, ok := p.tree.Node(target.ID)
	if !ok {
		return apierr.NotFound("project: node %s", target)
	}
	if node.Scope != p.scope {
		return apierr.InvalidLinkTarget("%s was borrowed from project %q", target, node.Scope)
	}
	want := hierarchy.Assessment
	if fam == linkgraph.Scenarios {
		want = hierarchy.Scenario
	}
	if node.Kind.Leaf() != want {
		return apierr.InvalidLinkTarget("%s is a %s, not in the %s tree", target, node.Kind, fam)
	}

	leaves, err := p.tree.Leaves(target.ID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.Scope != p.scope {
			return apierr.InvalidLinkTarget("%s expands to %s from project %q", target, leaf.ID, leaf.Scope)
		}
		ids = append(ids, leaf.ID)
	}

	return r.WhileLinkable(func() error {
		p.links.LinkAll(reqID, fam, ids)
		return nil
	})
}

// LinkedAssessments returns the live collection of assessments linked to
// the requirement.
func (p *Project) LinkedAssessments(reqID registry.ID) (*linkgraph.Collection, error) {
	return p.collection(reqID, linkgraph.Assessments)
}

// LinkedScenarios returns the live collection of scenarios linked to the
// requirement.
func (p *Project) LinkedScenarios(reqID registry.ID) (*linkgraph.Collection, error) {
	return p.collection(reqID, linkgraph.Scenarios)
}

func (p *Project) collection(reqID registry.ID, fam linkgraph.Family) (*linkgraph.Collection, error) {
	if _, err := p.Requirement(reqID); err != nil {
		return nil, err
	}
	return linkgraph.NewCollection(p.links, reqID, fam, func() error {
		_, err := p.Requirement(reqID)
		return err
	}), nil
}

// LinkedTestCases returns every scenario linked to the requirement plus
// every scenario nested below a linked one, at any depth. The result is
// sorted and has no duplicates.
func (p *Project) LinkedTestCases(reqID registry.ID) ([]string, error) {
	if _, err := p.Requirement(reqID); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, id := range p.links.Linked(reqID, linkgraph.Scenarios) {
		set[id] = struct{}{}
		for _, d := range p.tree.Descendants(id) {
			if n, ok := p.tree.Node(d); ok && n.Kind == hierarchy.Scenario {
				set[d] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// RequirementsLinkedTo returns the live requirements linked to node.
func (p *Project) RequirementsLinkedTo(node string) []*requirement.Requirement {
	var out []*requirement.Requirement
	for _, id := range p.links.Requirements(node) {
		if r, err := p.Requirement(id); err == nil {
			out = append(out, r)
		}
	}
	return out
}
