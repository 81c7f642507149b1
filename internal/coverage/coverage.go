// Package coverage holds the coverage goals produced by an automatic test
// data generation run. Goals are read-only to everyone but their Run;
// disposing the run disposes every goal it produced.
package coverage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

// Criterion is the coverage criterion a goal belongs to.
type Criterion int

const (
	CriterionStatement Criterion = iota + 1
	CriterionDecision
	CriterionCondition
	CriterionMCDC
	CriterionFunctionCall
	CriterionBoundary
)

var criterionNames = map[Criterion]string{
	CriterionStatement:    "statement",
	CriterionDecision:     "decision",
	CriterionCondition:    "condition",
	CriterionMCDC:         "mcdc",
	CriterionFunctionCall: "function_call",
	CriterionBoundary:     "boundary",
}

func (c Criterion) String() string {
	if s, ok := criterionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("criterion(%d)", int(c))
}

// GoalStatus is the generation state of a goal.
type GoalStatus int

const (
	GoalOpen GoalStatus = iota + 1
	GoalCovered
	GoalUnreachable
	GoalTimeout
)

var statusNames = map[GoalStatus]string{
	GoalOpen:        "open",
	GoalCovered:     "covered",
	GoalUnreachable: "unreachable",
	GoalTimeout:     "timeout",
}

func (s GoalStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// GoalSpec describes a goal as the generator reports it.
type GoalSpec struct {
	Number      int
	Criterion   Criterion
	Context     string // block path for models, file and function for C code
	ContextType string
	Formula     string
}

// Goal is one coverage goal. It has no mutators.
type Goal struct {
	registry.Base

	spec   GoalSpec
	status GoalStatus
}

// Kind implements registry.Entity.
func (g *Goal) Kind() registry.Kind { return registry.KindCoverageGoal }

func (g *Goal) read(op string, fn func()) error {
	release, err := g.AcquireRead("coverage goal: " + op)
	if err != nil {
		return err
	}
	defer release()
	fn()
	return nil
}

// Number returns the generator's identification number for the goal.
func (g *Goal) Number() (int, error) {
	var v int
	err := g.read("number", func() { v = g.spec.Number })
	return v, err
}

// Criterion returns the coverage criterion.
func (g *Goal) Criterion() (Criterion, error) {
	var v Criterion
	err := g.read("criterion", func() { v = g.spec.Criterion })
	return v, err
}

// Context returns the location the goal refers to.
func (g *Goal) Context() (string, error) {
	var v string
	err := g.read("context", func() { v = g.spec.Context })
	return v, err
}

// ContextType returns the kind of location Context names.
func (g *Goal) ContextType() (string, error) {
	var v string
	err := g.read("context type", func() { v = g.spec.ContextType })
	return v, err
}

// Formula returns the goal's condition formula.
func (g *Goal) Formula() (string, error) {
	var v string
	err := g.read("formula", func() { v = g.spec.Formula })
	return v, err
}

// Status returns the current generation status.
func (g *Goal) Status() (GoalStatus, error) {
	var v GoalStatus
	err := g.read("status", func() { v = g.status })
	return v, err
}

// Run is a test data generation run and the sole owner of its goals.
type Run struct {
	mu       sync.Mutex
	reg      *registry.Registry
	name     string
	goals    map[int]*Goal
	disposed bool
}

// NewRun creates an empty run whose goals are registered in reg.
func NewRun(reg *registry.Registry, name string) *Run {
	return &Run{reg: reg, name: name, goals: make(map[int]*Goal)}
}

// Name returns the run name.
func (r *Run) Name() string { return r.name }

func (r *Run) errDisposed() error {
	return apierr.Disposed("coverage: run %q", r.name)
}

// AddGoal registers a new open goal. Goal numbers are unique per run.
func (r *Run) AddGoal(spec GoalSpec) (*Goal, error) {
	if _, ok := criterionNames[spec.Criterion]; !ok {
		return nil, apierr.Constraint("coverage: invalid criterion %d", int(spec.Criterion))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, r.errDisposed()
	}
	if _, taken := r.goals[spec.Number]; taken {
		return nil, apierr.Constraint("coverage: goal %d already exists in run %q", spec.Number, r.name)
	}
	g := &Goal{spec: spec, status: GoalOpen}
	if _, err := r.reg.Register(g); err != nil {
		return nil, err
	}
	r.goals[spec.Number] = g
	return g, nil
}

// SetStatus records the generator's progress on goal number.
func (r *Run) SetStatus(number int, status GoalStatus) error {
	if _, ok := statusNames[status]; !ok {
		return apierr.Constraint("coverage: invalid status %d", int(status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return r.errDisposed()
	}
	g, ok := r.goals[number]
	if !ok {
		return apierr.NotFound("coverage: goal %d in run %q", number, r.name)
	}
	release, err := g.Acquire("coverage goal: set status")
	if err != nil {
		return err
	}
	g.status = status
	release()
	return nil
}

// Goal returns goal number.
func (r *Run) Goal(number int) (*Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, r.errDisposed()
	}
	g, ok := r.goals[number]
	if !ok {
		return nil, apierr.NotFound("coverage: goal %d in run %q", number, r.name)
	}
	return g, nil
}

// Goals returns every goal ordered by number.
func (r *Run) Goals() ([]*Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, r.errDisposed()
	}
	numbers := make([]int, 0, len(r.goals))
	for n := range r.goals {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	out := make([]*Goal, len(numbers))
	for i, n := range numbers {
		out[i] = r.goals[n]
	}
	return out, nil
}

// Summary counts goals per status.
func (r *Run) Summary() (map[GoalStatus]int, error) {
	goals, err := r.Goals()
	if err != nil {
		return nil, err
	}
	out := make(map[GoalStatus]int)
	for _, g := range goals {
		st, err := g.Status()
		if err != nil {
			return nil, err
		}
		out[st]++
	}
	return out, nil
}

// Dispose tears the run down. Every goal is disposed; later calls on the
// run or its goals fail with apierr.ErrDisposed.
func (r *Run) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return r.errDisposed()
	}
	r.disposed = true
	for _, g := range r.goals {
		if err := r.reg.Dispose(g.ID()); err != nil {
			return fmt.Errorf("coverage: dispose goal: %w", err)
		}
	}
	return nil
}

// Disposed reports whether the run has been torn down.
func (r *Run) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}
