// Package steplist implements the signal-import step: a step that loads
// several signals from a data file into declarations.
package steplist

import (
	"github.com/papapumpkin/tptmodel/internal/registry"
)

// Assignment maps one declaration to the signal name in the data file.
type Assignment struct {
	Declaration string `json:"declaration" yaml:"declaration" toml:"declaration"`
	Signal      string `json:"signal" yaml:"signal" toml:"signal"`
}

// Interpolation selects how imported samples are resampled.
type Interpolation int

const (
	InterpolationLastValue Interpolation = iota
	InterpolationLinear
)

func (i Interpolation) String() string {
	if i == InterpolationLinear {
		return "linear"
	}
	return "last_value"
}

// Change reports a completed mutation.
type Change struct {
	ID registry.ID
	Op string
}

// ImportSignalStep imports signals from File. Its assignment list is never
// empty. Expressions and names are stored verbatim; evaluating them is the
// job of the execution engine.
type ImportSignalStep struct {
	registry.Base

	onChange      func(Change)
	assignments   []Assignment
	file          string
	timeAxisName  string
	timeShift     string
	interpolation Interpolation
}

// New creates an unregistered step holding one empty assignment row and
// last-value interpolation.
func New(onChange func(Change)) *ImportSignalStep {
	return &ImportSignalStep{
		onChange:    onChange,
		assignments: []Assignment{{}},
	}
}

// Kind implements registry.Entity.
func (s *ImportSignalStep) Kind() registry.Kind { return registry.KindStep }

func (s *ImportSignalStep) get(op string, fn func()) error {
	release, err := s.AcquireRead("import signal step: " + op)
	if err != nil {
		return err
	}
	defer release()
	fn()
	return nil
}

func (s *ImportSignalStep) set(op string, fn func()) error {
	release, err := s.Acquire("import signal step: " + op)
	if err != nil {
		return err
	}
	fn()
	release()
	if s.onChange != nil {
		s.onChange(Change{ID: s.ID(), Op: op})
	}
	return nil
}

// DeclarationAssignment returns a copy of the assignment rows.
func (s *ImportSignalStep) DeclarationAssignment() ([]Assignment, error) {
	var out []Assignment
	err := s.get("declaration assignment", func() {
		out = make([]Assignment, len(s.assignments))
		copy(out, s.assignments)
	})
	return out, err
}

// SetDeclarationAssignment replaces the rows. An empty list stores a
// single row of empty strings. Duplicate declarations are kept as given.
func (s *ImportSignalStep) SetDeclarationAssignment(rows []Assignment) error {
	stored := make([]Assignment, len(rows))
	copy(stored, rows)
	if len(stored) == 0 {
		stored = []Assignment{{}}
	}
	return s.set("set_declaration_assignment", func() { s.assignments = stored })
}

// File returns the data file path.
func (s *ImportSignalStep) File() (string, error) {
	var v string
	err := s.get("file", func() { v = s.file })
	return v, err
}

// SetFile sets the data file path.
func (s *ImportSignalStep) SetFile(file string) error {
	return s.set("set_file", func() { s.file = file })
}

// TimeAxisName returns the optional time axis name; empty means none.
func (s *ImportSignalStep) TimeAxisName() (string, error) {
	var v string
	err := s.get("time axis name", func() { v = s.timeAxisName })
	return v, err
}

// SetTimeAxisName sets the time axis name.
func (s *ImportSignalStep) SetTimeAxisName(name string) error {
	return s.set("set_time_axis_name", func() { s.timeAxisName = name })
}

// TimeShift returns the time shift expression.
func (s *ImportSignalStep) TimeShift() (string, error) {
	var v string
	err := s.get("time shift", func() { v = s.timeShift })
	return v, err
}

// SetTimeShift sets the time shift expression.
func (s *ImportSignalStep) SetTimeShift(shift string) error {
	return s.set("set_time_shift", func() { s.timeShift = shift })
}

// IsLinearInterpolation reports whether linear interpolation is on; false
// means last-value mode.
func (s *ImportSignalStep) IsLinearInterpolation() (bool, error) {
	var v bool
	err := s.get("interpolation", func() { v = s.interpolation == InterpolationLinear })
	return v, err
}

// SetLinearInterpolation switches between linear and last-value mode.
func (s *ImportSignalStep) SetLinearInterpolation(on bool) error {
	mode := InterpolationLastValue
	if on {
		mode = InterpolationLinear
	}
	return s.set("set_interpolation", func() { s.interpolation = mode })
}
