package linkgraph

import "github.com/papapumpkin/tptmodel/internal/registry"

// Collection is the live view of one requirement's links in one family.
// Removing a node from it is the only way to unlink.
type Collection struct {
	g     *Graph
	req   registry.ID
	fam   Family
	check func() error
}

// NewCollection returns a view of req's links in fam. check, if non-nil,
// runs before every call and aborts it on error; callers use it to reject
// access once the requirement is disposed.
func NewCollection(g *Graph, req registry.ID, fam Family, check func() error) *Collection {
	return &Collection{g: g, req: req, fam: fam, check: check}
}

func (c *Collection) guard() error {
	if c.check == nil {
		return nil
	}
	return c.check()
}

// Requirement returns the id of the requirement the collection belongs to.
func (c *Collection) Requirement() registry.ID { return c.req }

// Family returns the link family of the collection.
func (c *Collection) Family() Family { return c.fam }

// Items returns the linked node ids, sorted.
func (c *Collection) Items() ([]string, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	return c.g.Linked(c.req, c.fam), nil
}

// Len returns the number of linked nodes.
func (c *Collection) Len() (int, error) {
	items, err := c.Items()
	return len(items), err
}

// Contains reports whether node is linked.
func (c *Collection) Contains(node string) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	return c.g.IsLinked(c.req, c.fam, node), nil
}

// Remove unlinks node from the requirement in both directions and reports
// whether it was linked.
func (c *Collection) Remove(node string) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	return c.g.Unlink(c.req, c.fam, node), nil
}
