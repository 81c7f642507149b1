// Package typesys holds the data types declarations are typed with.
//
// A type is named, anonymous or predefined. Every type carries an identity
// token. Named types compare equal when name and definition match; an
// anonymous type is only ever equal to itself, even when another anonymous
// type has the same definition. Assigning an anonymous type to a
// declaration stores a copy with a fresh token.
package typesys

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

// Predefined type names seeded into every table.
var predefinedNames = []string{"boolean", "int", "float", "string"}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is a legal type or declaration name.
func ValidIdentifier(s string) bool { return identifier.MatchString(s) }

// Change reports a completed mutation of the table or of one of its types.
type Change struct {
	ID   registry.ID
	Op   string
	Name string
}

// Type is a data-type descriptor.
type Type struct {
	registry.Base

	token      uuid.UUID
	name       string
	definition string
	predefined bool
	anonymous  bool
	owned      bool
	table      *Table
}

// Kind implements registry.Entity.
func (t *Type) Kind() registry.Kind { return registry.KindType }

// Token returns the identity token.
func (t *Type) Token() uuid.UUID { return t.token }

// Name returns the type name. Anonymous types have an empty name.
func (t *Type) Name() (string, error) {
	release, err := t.AcquireRead("type: name")
	if err != nil {
		return "", err
	}
	defer release()
	return t.name, nil
}

// TypeString returns the textual type definition, e.g. "float[]".
func (t *Type) TypeString() (string, error) {
	release, err := t.AcquireRead("type: type string")
	if err != nil {
		return "", err
	}
	defer release()
	return t.definition, nil
}

// IsPredefined reports whether the type is built in.
func (t *Type) IsPredefined() (bool, error) {
	release, err := t.AcquireRead("type: is predefined")
	if err != nil {
		return false, err
	}
	defer release()
	return t.predefined, nil
}

// IsAnonymous reports whether the type has no name.
func (t *Type) IsAnonymous() (bool, error) {
	release, err := t.AcquireRead("type: is anonymous")
	if err != nil {
		return false, err
	}
	defer release()
	return t.anonymous, nil
}

// SetName renames the type. The name must be a legal identifier not used
// by another named type; predefined and anonymous types cannot be renamed.
func (t *Type) SetName(name string) error {
	return t.table.rename(t, name)
}

// Equal reports whether t and o denote the same type. Anonymous types are
// equal only by identity token. A disposed type equals nothing.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.token == o.token {
		return !t.Disposed()
	}
	a, err := t.snapshot()
	if err != nil {
		return false
	}
	b, err := o.snapshot()
	if err != nil {
		return false
	}
	if a.anonymous || b.anonymous {
		return false
	}
	return a.name == b.name && a.definition == b.definition
}

type typeFields struct {
	name       string
	definition string
	anonymous  bool
}

func (t *Type) snapshot() (typeFields, error) {
	release, err := t.AcquireRead("type: equal")
	if err != nil {
		return typeFields{}, err
	}
	defer release()
	return typeFields{name: t.name, definition: t.definition, anonymous: t.anonymous}, nil
}

// Table is the per-project set of types. Names are unique among named and
// predefined types.
type Table struct {
	mu       sync.Mutex
	closed   bool
	reg      *registry.Registry
	byName   map[string]*Type
	onChange func(Change)
}

// NewTable creates a table seeded with the predefined types. onChange, if
// non-nil, observes every successful mutation.
func NewTable(reg *registry.Registry, onChange func(Change)) (*Table, error) {
	tb := &Table{
		reg:      reg,
		byName:   make(map[string]*Type),
		onChange: onChange,
	}
	for _, name := range predefinedNames {
		t := &Type{token: uuid.New(), name: name, definition: name, predefined: true, table: tb}
		if _, err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("typesys: seed %s: %w", name, err)
		}
		tb.byName[name] = t
	}
	return tb, nil
}

// Create adds a type. An empty name creates an anonymous type.
func (tb *Table) Create(name, definition string) (*Type, error) {
	if definition == "" {
		return nil, apierr.Constraint("typesys: empty type definition")
	}
	if name == "" {
		return tb.register(&Type{token: uuid.New(), definition: definition, anonymous: true, table: tb}, "create_anonymous")
	}
	if !ValidIdentifier(name) {
		return nil, apierr.Constraint("typesys: %q is not a legal identifier", name)
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.closed {
		return nil, errClosed()
	}
	if _, taken := tb.byName[name]; taken {
		return nil, apierr.Constraint("typesys: type %q already exists", name)
	}
	t := &Type{token: uuid.New(), name: name, definition: definition, table: tb}
	id, err := tb.reg.Register(t)
	if err != nil {
		return nil, err
	}
	tb.byName[name] = t
	tb.notify(Change{ID: id, Op: "create", Name: name})
	return t, nil
}

// CopyForAssignment returns the type a declaration should store when
// assigned t: anonymous types are copied with a fresh identity token,
// every other type is shared. The caller owns a returned copy and must
// hand it to ReleaseCopy once it no longer stores it.
func (tb *Table) CopyForAssignment(t *Type) (*Type, error) {
	if t == nil {
		return nil, apierr.Constraint("typesys: nil type")
	}
	f, err := t.snapshot()
	if err != nil {
		return nil, err
	}
	if !f.anonymous {
		return t, nil
	}
	return tb.register(&Type{token: uuid.New(), definition: f.definition, anonymous: true, owned: true, table: tb}, "copy_anonymous")
}

// ReleaseCopy disposes t if it is a copy made by CopyForAssignment. Shared
// types and already disposed copies are left alone.
func (tb *Table) ReleaseCopy(t *Type) error {
	if t == nil || !t.owned {
		return nil
	}
	id := t.ID()
	if err := tb.reg.Dispose(id); err != nil {
		if errors.Is(err, apierr.ErrDisposed) {
			return nil
		}
		return err
	}
	tb.notify(Change{ID: id, Op: "release_copy"})
	return nil
}

// Close makes every later Create and CopyForAssignment fail with
// ErrDisposed. Existing types are untouched.
func (tb *Table) Close() {
	tb.mu.Lock()
	tb.closed = true
	tb.mu.Unlock()
}

func (tb *Table) register(t *Type, op string) (*Type, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.closed {
		return nil, errClosed()
	}
	id, err := tb.reg.Register(t)
	if err != nil {
		return nil, err
	}
	tb.notify(Change{ID: id, Op: op})
	return t, nil
}

func errClosed() error { return apierr.Disposed("typesys: table is closed") }

// Lookup returns the named or predefined type called name.
func (tb *Table) Lookup(name string) (*Type, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.byName[name]
	if !ok {
		return nil, apierr.NotFound("typesys: type %q", name)
	}
	return t, nil
}

// Names returns every named and predefined type name, sorted.
func (tb *Table) Names() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := make([]string, 0, len(tb.byName))
	for n := range tb.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Delete disposes a type. Predefined types cannot be deleted.
func (tb *Table) Delete(t *Type) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	release, err := t.AcquireRead("typesys: delete")
	if err != nil {
		return err
	}
	predefined, name := t.predefined, t.name
	release()
	if predefined {
		return apierr.Constraint("typesys: predefined type %q cannot be deleted", name)
	}

	id := t.ID()
	if err := tb.reg.Dispose(id); err != nil {
		return err
	}
	if name != "" && tb.byName[name] == t {
		delete(tb.byName, name)
	}
	tb.notify(Change{ID: id, Op: "delete", Name: name})
	return nil
}

// rename holds the table lock across the uniqueness check and the write,
// so two concurrent renames cannot claim the same name.
func (tb *Table) rename(t *Type, name string) error {
	if !ValidIdentifier(name) {
		return apierr.Constraint("typesys: %q is not a legal identifier", name)
	}

	id := t.ID()
	tb.mu.Lock()
	defer tb.mu.Unlock()

	release, err := t.Acquire("type: set name")
	if err != nil {
		return err
	}
	if t.predefined || t.anonymous {
		release()
		return apierr.Constraint("typesys: cannot rename predefined or anonymous type %s", id)
	}
	if t.name == name {
		release()
		return nil
	}
	if _, taken := tb.byName[name]; taken {
		release()
		return apierr.Constraint("typesys: type %q already exists", name)
	}
	old := t.name
	t.name = name
	release()

	delete(tb.byName, old)
	tb.byName[name] = t
	tb.notify(Change{ID: id, Op: "rename", Name: name})
	return nil
}

func (tb *Table) notify(c Change) {
	if tb.onChange != nil {
		tb.onChange(c)
	}
}
