// Package project is the shared project document: the registry of every
// entity, the type and variable tables, the assessment and scenario trees,
// and the links between requirements and those trees. All remote callers
// of one project share one *Project.
//
// Locks are always taken in this order: project, node lock, declaration
// set, type table, registry, entity, hierarchy, link graph. Entity
// operations never call back into the project while holding their own
// lock.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/attachment"
	"github.com/papapumpkin/tptmodel/internal/coverage"
	"github.com/papapumpkin/tptmodel/internal/declaration"
	"github.com/papapumpkin/tptmodel/internal/hierarchy"
	"github.com/papapumpkin/tptmodel/internal/linkgraph"
	"github.com/papapumpkin/tptmodel/internal/metrics"
	"github.com/papapumpkin/tptmodel/internal/registry"
	"github.com/papapumpkin/tptmodel/internal/requirement"
	"github.com/papapumpkin/tptmodel/internal/telemetry"
	"github.com/papapumpkin/tptmodel/internal/typesys"
)

// Options configures a project. Every field is optional.
type Options struct {
	// Scope names the project; links never cross scopes. Defaults to a
	// random UUID.
	Scope string
	// Blobs keeps attachment content. Defaults to an in-memory store.
	Blobs attachment.Store
	// Telemetry receives one event per change. nil disables it.
	Telemetry *telemetry.Emitter
	// Metrics counts operations. nil disables it.
	Metrics *metrics.Metrics
	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
}

// Project is one shared project document.
type Project struct {
	mu         sync.Mutex
	closed     bool
	byExternal map[string]*requirement.Requirement
	runs       map[string]*coverage.Run

	// nodes is held shared by link from the leaf expansion to the link
	// write, and exclusively by RemoveNode, so no link outlives its node.
	nodes sync.RWMutex

	scope string
	reg   *registry.Registry
	blobs attachment.Store
	types *typesys.Table
	vars  *declaration.Set
	tree  *hierarchy.Graph
	links *linkgraph.Graph

	tel    *telemetry.Emitter
	met    *metrics.Metrics
	logger *slog.Logger
}

// New creates an empty project seeded with the predefined types.
func New(opts Options) (*Project, error) {
	p := &Project{
		byExternal: make(map[string]*requirement.Requirement),
		runs:       make(map[string]*coverage.Run),
		scope:      opts.Scope,
		reg:        registry.New(),
		blobs:      opts.Blobs,
		tree:       hierarchy.New(),
		tel:        opts.Telemetry,
		met:        opts.Metrics,
		logger:     opts.Logger,
	}
	if p.scope == "" {
		p.scope = uuid.NewString()
	}
	if p.blobs == nil {
		p.blobs = attachment.NewMemoryStore()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With("project", p.scope)
	p.links = linkgraph.New(p.onLinkChange)

	types, err := typesys.NewTable(p.reg, func(c typesys.Change) {
		p.entityChanged(c.ID, c.Op, c.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("project: seed types: %w", err)
	}
	p.types = types
	p.vars = declaration.NewSet(p.reg, types, func(c declaration.Change) {
		p.entityChanged(c.ID, c.Op, c.Name)
	})
	p.refreshLive()
	return p, nil
}

// Scope returns the project scope.
func (p *Project) Scope() string { return p.scope }

// Types returns the project's type table.
func (p *Project) Types() *typesys.Table { return p.types }

// Variables returns the project's assessment variables.
func (p *Project) Variables() *declaration.Set { return p.vars }

// Hierarchy returns the assessment and scenario trees.
func (p *Project) Hierarchy() *hierarchy.Graph { return p.tree }

// Resolve returns the live entity behind id.
func (p *Project) Resolve(id registry.ID) (registry.Entity, error) {
	return p.reg.Resolve(id)
}

// Counts returns the number of live entities per kind.
func (p *Project) Counts() map[registry.Kind]int { return p.reg.Count() }

func (p *Project) checkOpen() error {
	if p.closed {
		return apierr.Disposed("project %s is closed", p.scope)
	}
	return nil
}

// CreateRequirement adds a requirement. External ids are unique within the
// project.
func (p *Project) CreateRequirement(spec requirement.Spec) (r *requirement.Requirement, err error) {
	defer func() { p.observe("create_requirement", err) }()

	r, err = requirement.New(spec, requirement.Options{
		Blobs: p.blobs,
		OnChange: func(c requirement.Change) {
			p.entityChanged(c.ID, c.Op, c.Name)
		},
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if _, taken := p.byExternal[spec.ExternalID]; taken {
		return nil, apierr.Constraint("project: requirement %q already exists", spec.ExternalID)
	}
	id, err := p.reg.Register(r)
	if err != nil {
		return nil, err
	}
	p.byExternal[spec.ExternalID] = r
	p.refreshLive()
	p.emit(telemetry.KindEntityCreated, id, "create_requirement", map[string]string{"external_id": spec.ExternalID})
	p.logger.Debug("requirement created", "id", id, "external_id", spec.ExternalID)
	return r, nil
}

// Requirement returns the live requirement behind id.
func (p *Project) Requirement(id registry.ID) (*requirement.Requirement, error) {
	return registry.Lookup[*requirement.Requirement](p.reg, id)
}

// RequirementByExternalID returns the requirement with the given external id.
func (p *Project) RequirementByExternalID(externalID string) (*requirement.Requirement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.byExternal[externalID]
	if !ok {
		return nil, apierr.NotFound("project: requirement %q", externalID)
	}
	return r, nil
}

// ExternalIDs returns the external id of every requirement, sorted.
func (p *Project) ExternalIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byExternal))
	for id := range p.byExternal {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeleteRequirement disposes the requirement, drops its links and deletes
// its attachment content. A blob backend failure is reported after the
// requirement is already gone.
func (p *Project) DeleteRequirement(ctx context.Context, id registry.ID) (err error) {
	defer func() { p.observe("delete_requirement", err) }()

	p.mu.Lock()
	r, err := registry.Lookup[*requirement.Requirement](p.reg, id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if err := p.reg.Dispose(id); err != nil {
		p.mu.Unlock()
		return err
	}
	for ext, cur := range p.byExternal {
		if cur == r {
			delete(p.byExternal, ext)
		}
	}
	p.mu.Unlock()

	dropped := p.links.DropRequirement(id)
	p.emit(telemetry.KindEntityDisposed, id, "delete_requirement", nil)
	p.refreshLive()
	p.logger.Info("requirement deleted", "id", id, "links_dropped", dropped)

	if ids := r.ReleasedAttachments(); len(ids) > 0 {
		if err := p.blobs.Delete(ctx, ids...); err != nil {
			p.logger.Warn("attachment cleanup failed", "id", id, "error", err)
			return fmt.Errorf("project: delete attachments of %s: %w", id, err)
		}
	}
	return nil
}

// Close disposes every live entity and coverage run, and makes every later
// create, in the project or its type and variable tables, fail with
// ErrDisposed. The attachment store is left open; its owner closes it.
func (p *Project) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	runs := p.runs
	p.runs = make(map[string]*coverage.Run)
	p.byExternal = make(map[string]*requirement.Requirement)
	p.mu.Unlock()
	p.vars.Close()
	p.types.Close()

	for _, run := range runs {
		if err := run.Dispose(); err != nil {
			return fmt.Errorf("project: close run %s: %w", run.Name(), err)
		}
	}
	for _, kind := range []registry.Kind{
		registry.KindRequirement,
		registry.KindStep,
		registry.KindAssessmentVariable,
		registry.KindType,
		registry.KindCoverageGoal,
	} {
		for _, e := range p.reg.Live(kind) {
			// A concurrent delete may win the race; that is fine here.
			if err := p.reg.Dispose(e.ID()); err != nil && !errors.Is(err, apierr.ErrDisposed) {
				return fmt.Errorf("project: close: %w", err)
			}
		}
	}
	p.refreshLive()
	p.logger.Info("project closed")
	return nil
}

// RecordImport notes one applied import: an import_applied event carrying
// the per-outcome counts, and the import counters.
func (p *Project) RecordImport(source string, outcomes map[string]int) {
	for outcome, n := range outcomes {
		p.met.AddImported(outcome, n)
	}
	evt := telemetry.Event{
		Kind:    telemetry.KindImportApplied,
		Project: p.scope,
		Op:      "import",
		Data:    map[string]any{"source": source, "outcomes": outcomes},
	}
	if err := p.tel.Emit(evt); err != nil {
		p.logger.Warn("telemetry emit failed", "kind", evt.Kind, "error", err)
	}
	p.logger.Info("import applied", "source", source, "outcomes", outcomes)
}

func (p *Project) observe(op string, err error) {
	p.met.Observe(op, err)
	if err != nil {
		p.logger.Debug("operation failed", "op", op, "kind", apierr.KindOf(err), "error", err)
	}
}

func (p *Project) entityChanged(id registry.ID, op, name string) {
	p.met.Observe(op, nil)
	var data any
	if name != "" {
		data = map[string]string{"name": name}
	}
	p.emit(telemetry.KindEntityMutated, id, op, data)
	switch op {
	case "create", "create_anonymous", "copy_anonymous", "delete", "release_copy":
		p.refreshLive()
	}
}

func (p *Project) onLinkChange(c linkgraph.Change) {
	kind, op := telemetry.KindLinkCreated, "link"
	if !c.Linked {
		kind, op = telemetry.KindLinkRemoved, "unlink"
	}
	p.emit(kind, c.Requirement, op, map[string]string{"family": c.Family.String(), "node": c.Node})
}

func (p *Project) emit(kind string, id registry.ID, op string, data any) {
	evt := telemetry.Event{Kind: kind, Project: p.scope, Entity: id.String(), Op: op, Data: data}
	if err := p.tel.Emit(evt); err != nil {
		p.logger.Warn("telemetry emit failed", "kind", kind, "error", err)
	}
}

func (p *Project) refreshLive() {
	if p.met != nil {
		p.met.SetLive(p.reg.Count())
	}
}
