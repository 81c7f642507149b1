package project

import (
	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/coverage"
	"github.com/papapumpkin/tptmodel/internal/registry"
	"github.com/papapumpkin/tptmodel/internal/steplist"
	"github.com/papapumpkin/tptmodel/internal/telemetry"
)

// CreateStep adds a signal-import step with one empty assignment row.
func (p *Project) CreateStep() (s *steplist.ImportSignalStep, err error) {
	defer func() { p.observe("create_step", err) }()

	s = steplist.New(func(c steplist.Change) { p.entityChanged(c.ID, c.Op, "") })
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	id, err := p.reg.Register(s)
	if err != nil {
		return nil, err
	}
	p.refreshLive()
	p.emit(telemetry.KindEntityCreated, id, "create_step", nil)
	return s, nil
}

// Step returns the live step behind id.
func (p *Project) Step(id registry.ID) (*steplist.ImportSignalStep, error) {
	return registry.Lookup[*steplist.ImportSignalStep](p.reg, id)
}

// DeleteStep disposes a step.
func (p *Project) DeleteStep(id registry.ID) (err error) {
	defer func() { p.observe("delete_step", err) }()
	if _, err := p.Step(id); err != nil {
		return err
	}
	if err := p.reg.Dispose(id); err != nil {
		return err
	}
	p.emit(telemetry.KindEntityDisposed, id, "delete_step", nil)
	p.refreshLive()
	return nil
}

// StartCoverageRun creates a coverage generation run. Run names are unique
// among the project's active runs.
func (p *Project) StartCoverageRun(name string) (*coverage.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apierr.Constraint("project: empty coverage run name")
	}
	if _, taken := p.runs[name]; taken {
		return nil, apierr.Constraint("project: coverage run %q already active", name)
	}
	run := coverage.NewRun(p.reg, name)
	p.runs[name] = run
	p.logger.Debug("coverage run started", "run", name)
	return run, nil
}

// EndCoverageRun disposes the run and every goal it produced.
func (p *Project) EndCoverageRun(name string) (err error) {
	defer func() { p.observe("end_coverage_run", err) }()

	p.mu.Lock()
	run, ok := p.runs[name]
	delete(p.runs, name)
	p.mu.Unlock()
	if !ok {
		return apierr.NotFound("project: coverage run %q", name)
	}
	if err := run.Dispose(); err != nil {
		return err
	}
	p.refreshLive()
	p.logger.Debug("coverage run ended", "run", name)
	return nil
}
