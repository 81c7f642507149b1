// Package declaration holds assessment variables: named, typed slots used
// to evaluate tests, each with a flag saying whether its value is recorded
// during execution.
package declaration

import (
	"sort"
	"sync"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
	"github.com/papapumpkin/tptmodel/internal/typesys"
)

// Change reports a completed mutation.
type Change struct {
	ID   registry.ID
	Op   string
	Name string
}

// AssessmentVariable is a declaration evaluated by assessments.
type AssessmentVariable struct {
	registry.Base

	set         *Set
	name        string
	typ         *typesys.Type
	description string
	record      bool
}

// Kind implements registry.Entity.
func (v *AssessmentVariable) Kind() registry.Kind { return registry.KindAssessmentVariable }

// Name returns the variable name.
func (v *AssessmentVariable) Name() (string, error) {
	release, err := v.AcquireRead("assessment variable: name")
	if err != nil {
		return "", err
	}
	defer release()
	return v.name, nil
}

// SetName renames the variable; the name must be a legal identifier not
// used by another variable of the project.
func (v *AssessmentVariable) SetName(name string) error {
	return v.set.rename(v, name)
}

// Type returns the declared type.
func (v *AssessmentVariable) Type() (*typesys.Type, error) {
	release, err := v.AcquireRead("assessment variable: type")
	if err != nil {
		return nil, err
	}
	defer release()
	return v.typ, nil
}

// SetType assigns a type. Anonymous types are copied, so the stored type
// is never Equal to an anonymous argument. A copy the variable held before
// is released.
func (v *AssessmentVariable) SetType(t *typesys.Type) error {
	release, err := v.AcquireRead("assessment variable: set type")
	if err != nil {
		return err
	}
	release()

	types := v.set.types
	stored, err := types.CopyForAssignment(t)
	if err != nil {
		return err
	}
	release, err = v.Acquire("assessment variable: set type")
	if err != nil {
		_ = types.ReleaseCopy(stored)
		return err
	}
	old := v.typ
	v.typ = stored
	release()

	if old != stored {
		_ = types.ReleaseCopy(old)
	}
	v.set.notify(Change{ID: v.ID(), Op: "set_type"})
	return nil
}

// Description returns the free-text description.
func (v *AssessmentVariable) Description() (string, error) {
	release, err := v.AcquireRead("assessment variable: description")
	if err != nil {
		return "", err
	}
	defer release()
	return v.description, nil
}

// SetDescription replaces the description.
func (v *AssessmentVariable) SetDescription(d string) error {
	release, err := v.Acquire("assessment variable: set description")
	if err != nil {
		return err
	}
	v.description = d
	release()
	v.set.notify(Change{ID: v.ID(), Op: "set_description"})
	return nil
}

// IsRecord reports whether the variable is recorded during execution.
func (v *AssessmentVariable) IsRecord() (bool, error) {
	release, err := v.AcquireRead("assessment variable: is record")
	if err != nil {
		return false, err
	}
	defer release()
	return v.record, nil
}

// SetRecord switches recording on or off.
func (v *AssessmentVariable) SetRecord(on bool) error {
	release, err := v.Acquire("assessment variable: set record")
	if err != nil {
		return err
	}
	v.record = on
	release()
	v.set.notify(Change{ID: v.ID(), Op: "set_record"})
	return nil
}

// Set is the per-project collection of assessment variables; names are
// unique within it.
type Set struct {
	mu       sync.Mutex
	closed   bool
	reg      *registry.Registry
	types    *typesys.Table
	byName   map[string]*AssessmentVariable
	onChange func(Change)
}

// NewSet creates an empty set whose variables are typed from types.
func NewSet(reg *registry.Registry, types *typesys.Table, onChange func(Change)) *Set {
	return &Set{
		reg:      reg,
		types:    types,
		byName:   make(map[string]*AssessmentVariable),
		onChange: onChange,
	}
}

// Create adds a recorded variable of type t. The name is checked before
// an anonymous t is copied, so a rejected call leaves no copy behind.
func (s *Set) Create(name string, t *typesys.Type) (*AssessmentVariable, error) {
	if !typesys.ValidIdentifier(name) {
		return nil, apierr.Constraint("declaration: %q is not a legal identifier", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apierr.Disposed("declaration: set is closed")
	}
	if _, taken := s.byName[name]; taken {
		return nil, apierr.Constraint("declaration: %q already exists", name)
	}
	stored, err := s.types.CopyForAssignment(t)
	if err != nil {
		return nil, err
	}
	v := &AssessmentVariable{set: s, name: name, typ: stored, record: true}
	id, err := s.reg.Register(v)
	if err != nil {
		_ = s.types.ReleaseCopy(stored)
		return nil, err
	}
	s.byName[name] = v
	s.notify(Change{ID: id, Op: "create", Name: name})
	return v, nil
}

// Close makes every later Create fail with ErrDisposed.
func (s *Set) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Lookup returns the variable called name.
func (s *Set) Lookup(name string) (*AssessmentVariable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byName[name]
	if !ok {
		return nil, apierr.NotFound("declaration: %q", name)
	}
	return v, nil
}

// Names returns every variable name, sorted.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Delete disposes the variable, releases its copy of an anonymous type
// and frees its name.
func (s *Set) Delete(v *AssessmentVariable) error {
	id := v.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reg.Dispose(id); err != nil {
		return err
	}
	// Disposed: SetType can no longer swap v.typ.
	if err := s.types.ReleaseCopy(v.typ); err != nil {
		return err
	}
	for name, cur := range s.byName {
		if cur == v {
			delete(s.byName, name)
		}
	}
	s.notify(Change{ID: id, Op: "delete"})
	return nil
}

func (s *Set) rename(v *AssessmentVariable, name string) error {
	if !typesys.ValidIdentifier(name) {
		return apierr.Constraint("declaration: %q is not a legal identifier", name)
	}
	id := v.ID()
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := v.Acquire("assessment variable: set name")
	if err != nil {
		return err
	}
	old := v.name
	if old == name {
		release()
		return nil
	}
	if _, taken := s.byName[name]; taken {
		release()
		return apierr.Constraint("declaration: %q already exists", name)
	}
	v.name = name
	release()

	delete(s.byName, old)
	s.byName[name] = v
	s.notify(Change{ID: id, Op: "rename", Name: name})
	return nil
}

func (s *Set) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}
