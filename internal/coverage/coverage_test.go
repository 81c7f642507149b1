package coverage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

func newRun(t *testing.T) (*Run, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	r := NewRun(reg, "nightly")
	for i, c := range []Criterion{CriterionDecision, CriterionMCDC, CriterionBoundary} {
		_, err := r.AddGoal(GoalSpec{
			Number:      i + 1,
			Criterion:   c,
			Context:     "ctrl/brake/Switch",
			ContextType: "block",
			Formula:     "u1 > 0",
		})
		if err != nil {
			t.Fatalf("AddGoal: %v", err)
		}
	}
	return r, reg
}

func TestGoals(t *testing.T) {
	t.Parallel()

	r, reg := newRun(t)
	goals, err := r.Goals()
	if err != nil {
		t.Fatalf("Goals: %v", err)
	}
	var numbers []int
	for _, g := range goals {
		n, _ := g.Number()
		numbers = append(numbers, n)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, numbers); diff != "" {
		t.Errorf("numbers mismatch (-want +got):\n%s", diff)
	}

	g, err := r.Goal(2)
	if err != nil {
		t.Fatal(err)
	}
	crit, _ := g.Criterion()
	ctx, _ := g.Context()
	ctxType, _ := g.ContextType()
	formula, _ := g.Formula()
	st, _ := g.Status()
	if crit != CriterionMCDC || ctx != "ctrl/brake/Switch" || ctxType != "block" || formula != "u1 > 0" || st != GoalOpen {
		t.Errorf("goal 2 = %v %q %q %q %v", crit, ctx, ctxType, formula, st)
	}
	if got := reg.Count()[registry.KindCoverageGoal]; got != 3 {
		t.Errorf("registered goals = %d, want 3", got)
	}

	if _, err := r.AddGoal(GoalSpec{Number: 1, Criterion: CriterionStatement}); !errors.Is(err, apierr.ErrConstraint) {
		t.Errorf("duplicate AddGoal err = %v", err)
	}
	if _, err := r.AddGoal(GoalSpec{Number: 9}); !errors.Is(err, apierr.ErrConstraint) {
		t.Errorf("AddGoal without criterion err = %v", err)
	}
	if _, err := r.Goal(42); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("Goal(42) err = %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	r, _ := newRun(t)
	if err := r.SetStatus(1, GoalCovered); err != nil {
		t.Fatal(err)
	}
	if err := r.SetStatus(2, GoalUnreachable); err != nil {
		t.Fatal(err)
	}
	if err := r.SetStatus(3, 0); !errors.Is(err, apierr.ErrConstraint) {
		t.Errorf("SetStatus(0) err = %v", err)
	}
	if err := r.SetStatus(7, GoalCovered); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("SetStatus(unknown) err = %v", err)
	}

	sum, err := r.Summary()
	if err != nil {
		t.Fatal(err)
	}
	want := map[GoalStatus]int{GoalCovered: 1, GoalUnreachable: 1, GoalOpen: 1}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
}

func TestDisposeRun(t *testing.T) {
	t.Parallel()

	r, reg := newRun(t)
	g, _ := r.Goal(1)
	if err := r.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	if _, err := g.Status(); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Status after dispose err = %v", err)
	}
	if _, err := g.Formula(); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Formula after dispose err = %v", err)
	}
	if _, err := reg.Resolve(g.ID()); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Resolve after dispose err = %v", err)
	}
	if _, err := r.Goals(); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("Goals after dispose err = %v", err)
	}
	if err := r.SetStatus(1, GoalCovered); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("SetStatus after dispose err = %v", err)
	}
	if err := r.Dispose(); !errors.Is(err, apierr.ErrDisposed) {
		t.Errorf("second Dispose err = %v", err)
	}
	if !r.Disposed() {
		t.Error("Disposed = false")
	}
	if got := reg.Count()[registry.KindCoverageGoal]; got != 0 {
		t.Errorf("live goals = %d, want 0", got)
	}
}
