package project

import (
	"github.com/papapumpkin/tptmodel/internal/requirement"
)

// RequirementView is a requirement snapshot together with its links.
type RequirementView struct {
	requirement.View `yaml:",inline"`

	LinkedAssessments []string `json:"linked_assessments,omitempty" yaml:"linked_assessments,omitempty" toml:"linked_assessments,omitempty"`
	LinkedScenarios   []string `json:"linked_scenarios,omitempty" yaml:"linked_scenarios,omitempty" toml:"linked_scenarios,omitempty"`
	TestCases         []string `json:"test_cases,omitempty" yaml:"test_cases,omitempty" toml:"test_cases,omitempty"`
}

// View is a point-in-time dump of a project, shaped for output.
type View struct {
	Scope        string            `json:"scope" yaml:"scope" toml:"scope"`
	Entities     map[string]int    `json:"entities" yaml:"entities" toml:"entities"`
	Types        []string          `json:"types" yaml:"types" toml:"types"`
	Variables    []string          `json:"variables,omitempty" yaml:"variables,omitempty" toml:"variables,omitempty"`
	Requirements []RequirementView `json:"requirements,omitempty" yaml:"requirements,omitempty" toml:"requirements,omitempty"`
}

// Snapshot dumps the project. Each requirement is read consistently on its
// own; the project as a whole is not frozen while the dump runs, so
// requirements deleted concurrently are skipped.
func (p *Project) Snapshot() (View, error) {
	v := View{
		Scope:     p.scope,
		Entities:  make(map[string]int),
		Types:     p.types.Names(),
		Variables: p.vars.Names(),
	}
	for kind, n := range p.reg.Count() {
		v.Entities[string(kind)] = n
	}

	for _, ext := range p.ExternalIDs() {
		r, err := p.RequirementByExternalID(ext)
		if err != nil {
			continue
		}
		snap, err := r.Snapshot()
		if err != nil {
			continue
		}
		id := r.ID()
		rv := RequirementView{View: snap}
		if c, err := p.LinkedAssessments(id); err == nil {
			rv.LinkedAssessments, _ = c.Items()
		}
		if c, err := p.LinkedScenarios(id); err == nil {
			rv.LinkedScenarios, _ = c.Items()
		}
		rv.TestCases, _ = p.LinkedTestCases(id)
		v.Requirements = append(v.Requirements, rv)
	}
	return v, nil
}
