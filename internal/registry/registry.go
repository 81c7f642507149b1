// Package registry allocates and resolves the identifiers behind remote
// handles. Each entity embeds Base, which carries its identifier, its
// live/disposed state and the lock that serializes operations on it.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Kind tags the entity type an identifier refers to.
type Kind string

// Entity kinds known to the registry.
const (
	KindRequirement        Kind = "requirement"
	KindType               Kind = "type"
	KindAssessmentVariable Kind = "assessment_variable"
	KindStep               Kind = "step"
	KindCoverageGoal       Kind = "coverage_goal"
)

func (k Kind) valid() bool {
	switch k {
	case KindRequirement, KindType, KindAssessmentVariable, KindStep, KindCoverageGoal:
		return true
	}
	return false
}

// ID is a typed entity identifier. The zero ID identifies nothing.
type ID struct {
	Kind Kind
	UUID uuid.UUID
}

// String returns the "kind:uuid" form of the identifier.
func (id ID) String() string {
	return fmt.Sprintf("%s:%s", id.Kind, id.UUID)
}

// IsZero reports whether id is the zero identifier.
func (id ID) IsZero() bool {
	return id.Kind == "" && id.UUID == uuid.Nil
}

// ParseID parses the "kind:uuid" form produced by ID.String.
func ParseID(s string) (ID, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, apierr.Constraint("invalid entity id %q", s)
	}
	k := Kind(kind)
	if !k.valid() {
		return ID{}, apierr.Constraint("unknown entity kind %q", kind)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return ID{}, apierr.Constraint("invalid entity id %q: %v", s, err)
	}
	return ID{Kind: k, UUID: u}, nil
}

// Entity is anything the registry can hand out identifiers for. Concrete
// entity types satisfy it by embedding Base and declaring their Kind.
type Entity interface {
	ID() ID
	Kind() Kind
	base() *Base
}

// Finalizer is implemented by entities that release resources when they
// are disposed. Finalize runs once, under the entity's exclusive lock,
// right after the entity is marked disposed. It must not call back into
// the registry.
type Finalizer interface {
	Finalize()
}

// Registry maps identifiers to entities. Disposed entities stay in the map
// as tombstones, so their identifiers are never handed out again and later
// lookups report ErrDisposed instead of ErrNotFound.
type Registry struct {
	mu       sync.RWMutex
	entities map[ID]Entity
	newUUID  func() uuid.UUID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entities: make(map[ID]Entity),
		newUUID:  uuid.New,
	}
}

// Register allocates a fresh identifier for e and makes it resolvable.
// An entity can be registered only once.
func (r *Registry) Register(e Entity) (ID, error) {
	kind := e.Kind()
	if !kind.valid() {
		return ID{}, apierr.Constraint("registry: unknown entity kind %q", kind)
	}
	b := e.base()

	r.mu.Lock()
	defer r.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.id.IsZero() {
		return ID{}, apierr.Constraint("registry: entity already registered as %s", b.id)
	}

	id := ID{Kind: kind, UUID: r.newUUID()}
	for {
		if _, taken := r.entities[id]; !taken {
			break
		}
		id.UUID = r.newUUID()
	}
	b.id = id
	r.entities[id] = e
	return id, nil
}

// Resolve returns the live entity for id.
func (r *Registry) Resolve(id ID) (Entity, error) {
	r.mu.RLock()
	e, ok := r.entities[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.NotFound("registry: %s", id)
	}
	if e.base().Disposed() {
		return nil, apierr.Disposed("registry: %s", id)
	}
	return e, nil
}

// Lookup resolves id and asserts the entity's concrete type.
func Lookup[T Entity](r *Registry, id ID) (T, error) {
	var zero T
	e, err := r.Resolve(id)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, apierr.NotFound("registry: %s has kind %s", id, e.Kind())
	}
	return t, nil
}

// Dispose marks the entity behind id as disposed. It waits for operations
// currently holding the entity's lock to finish; every later operation and
// resolve fails with ErrDisposed. Disposing twice reports ErrDisposed.
func (r *Registry) Dispose(id ID) error {
	r.mu.RLock()
	e, ok := r.entities[id]
	r.mu.RUnlock()
	if !ok {
		return apierr.NotFound("registry: %s", id)
	}

	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return apierr.Disposed("registry: %s", id)
	}
	b.disposed = true
	if f, ok := e.(Finalizer); ok {
		f.Finalize()
	}
	return nil
}

// Live returns the live entities of the given kind, ordered by identifier.
func (r *Registry) Live(kind Kind) []Entity {
	var out []Entity
	for _, e := range r.snapshot() {
		if e.Kind() == kind && !e.base().Disposed() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].base().ID().String() < out[j].base().ID().String()
	})
	return out
}

// Count returns the number of live entities per kind.
func (r *Registry) Count() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range r.snapshot() {
		if !e.base().Disposed() {
			counts[e.Kind()]++
		}
	}
	return counts
}

// snapshot copies the entity table so entity locks are never taken while
// the registry lock is held.
func (r *Registry) snapshot() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}
