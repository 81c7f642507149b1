package declaration

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
	"github.com/papapumpkin/tptmodel/internal/typesys"
)

func newSet(t *testing.T) (*Set, *typesys.Table, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	types, err := typesys.NewTable(reg, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return NewSet(reg, types, nil), types, reg
}

func mustLookupType(t *testing.T, types *typesys.Table, name string) *typesys.Type {
	t.Helper()
	typ, err := types.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return typ
}

func TestCreate(t *testing.T) {
	t.Parallel()

	s, types, _ := newSet(t)
	v, err := s.Create("brake_ok", mustLookupType(t, types, "boolean"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec, _ := v.IsRecord(); !rec {
		t.Error("new variable not recorded")
	}
	name, _ := v.Name()
	if name != "brake_ok" {
		t.Errorf("Name = %q", name)
	}

	tests := []struct {
		name string
		typ  *typesys.Type
	}{
		{"brake_ok", mustLookupType(t, types, "int")},
		{"2fast", mustLookupType(t, types, "int")},
		{"", mustLookupType(t, types, "int")},
		{"speed", nil},
	}
	for _, tt := range tests {
		if _, err := s.Create(tt.name, tt.typ); !errors.Is(err, apierr.ErrConstraint) {
			t.Errorf("Create(%q) err = %v, want ErrConstraint", tt.name, err)
		}
	}
	if diff := cmp.Diff([]string{"brake_ok"}, s.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymousTypeIsCopied(t *testing.T) {
	t.Parallel()

	s, types, _ := newSet(t)
	anon, err := types.Create("", "float[]")
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Create("trace", anon)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := v.Type()
	if got.Equal(anon) {
		t.Error("stored anonymous type equals the assigned one")
	}

	named, err := types.Create("Speed", "float")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.SetType(named); err != nil {
		t.Fatal(err)
	}
	got, _ = v.Type()
	if !got.Equal(named) {
		t.Error("stored named type differs from the assigned one")
	}
}

func TestMutators(t *testing.T) {
	t.Parallel()

	s, types, reg := newSet(t)
	v, err := s.Create("a", mustLookupType(t, types, "int"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("b", mustLookupType(t, types, "int")); err != nil {
		t.Fatal(err)
	}

	if err := v.SetRecord(false); err != nil {
		t.Fatal(err)
	}
	if rec, _ := v.IsRecord(); rec {
		t.Error("SetRecord(false) ignored")
	}
	if err := v.SetDescription("pedal angle"); err != nil {
		t.Fatal(err)
	}
	if d, _ := v.Description(); d != "pedal angle" {
		t.Errorf("Description = %q", d)
	}
	if err := v.SetName("b"); !errors.Is(err, apierr.ErrConstraint) {
		t.Errorf("rename to taken err = %v", err)
	}
	if err := v.SetName("c"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if got, err := s.Lookup("c"); err != nil || got != v {
		t.Errorf("Lookup(c) = %v, %v", got, err)
	}

	if err := s.Delete(v); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.IsRecord(); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("IsRecord after delete err = %v, want ErrDisposed", err)
	}
	if err := v.SetRecord(true); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("SetRecord after delete err = %v, want ErrDisposed", err)
	}
	if _, err := s.Lookup("c"); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("Lookup after delete err = %v", err)
	}
	if _, err := reg.Resolve(v.ID()); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Resolve after delete err = %v", err)
	}
}

func TestAnonymousCopiesDoNotLeak(t *testing.T) {
	t.Parallel()

	s, types, reg := newSet(t)
	anon, err := types.Create("", "float[]")
	if err != nil {
		t.Fatal(err)
	}
	liveTypes := func() int { return reg.Count()[registry.KindType] }

	v, err := s.Create("x", anon)
	if err != nil {
		t.Fatal(err)
	}
	base := liveTypes()

	if _, err := s.Create("x", anon); !errors.Is(err, apierr.ErrConstraint) {
		t.Fatalf("duplicate Create err = %v, want ErrConstraint", err)
	}
	if got := liveTypes(); got != base {
		t.Errorf("live types after rejected Create = %d, want %d", got, base)
	}

	// Replacing one copy with another keeps the count.
	if err := v.SetType(anon); err != nil {
		t.Fatal(err)
	}
	if got := liveTypes(); got != base {
		t.Errorf("live types after SetType(anonymous) = %d, want %d", got, base)
	}
	if err := v.SetType(mustLookupType(t, types, "int")); err != nil {
		t.Fatal(err)
	}
	if got := liveTypes(); got != base-1 {
		t.Errorf("live types after SetType(int) = %d, want %d", got, base-1)
	}

	if err := v.SetType(anon); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(v); err != nil {
		t.Fatal(err)
	}
	if got := liveTypes(); got != base-1 {
		t.Errorf("live types after Delete = %d, want %d", got, base-1)
	}
	if err := v.SetType(anon); !errors.Is(err, apierr.ErrDisposed) {
		t.Fatalf("SetType on deleted err = %v, want ErrDisposed", err)
	}
	if got := liveTypes(); got != base-1 {
		t.Errorf("live types after rejected SetType = %d, want %d", got, base-1)
	}
}

func TestClosedSetRejectsCreate(t *testing.T) {
	t.Parallel()

	s, types, reg := newSet(t)
	anon, err := types.Create("", "int[]")
	if err != nil {
		t.Fatal(err)
	}
	before := reg.Count()[registry.KindType]
	s.Close()
	if _, err := s.Create("x", anon); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Create after Close err = %v, want ErrDisposed", err)
	}
	if got := reg.Count()[registry.KindType]; got != before {
		t.Errorf("live types = %d, want %d", got, before)
	}
	if diff := cmp.Diff([]string{}, s.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}
