// Package metrics counts project-model operations by outcome and tracks the
// number of live entities per kind. Metrics live on a private Prometheus
// registry so several projects in one process never collide.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/papapumpkin/tptmodel/internal/apierr"
	"github.com/papapumpkin/tptmodel/internal/registry"
)

const namespace = "tptmodel"

// ResultOK labels successful operations; failures use the apierr kind name.
const ResultOK = "ok"

// Metrics holds the collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg     *prometheus.Registry
	ops     *prometheus.CounterVec
	live    *prometheus.GaugeVec
	imports *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Project-model operations by name and result.",
		}, []string{"op", "result"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_entities",
			Help:      "Live (registered, not disposed) entities by kind.",
		}, []string{"kind"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_requirements_total",
			Help:      "Requirements touched by imports, by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(m.ops, m.live, m.imports)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Observe counts one operation. The result label is ResultOK for a nil
// error and the apierr kind name otherwise.
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = apierr.KindOf(err).String()
	}
	m.ops.WithLabelValues(op, result).Inc()
}

// SetLive replaces the live-entity gauges with counts. Kinds missing from
// counts are reported as zero.
func (m *Metrics) SetLive(counts map[registry.Kind]int) {
	if m == nil {
		return
	}
	for _, k := range []registry.Kind{
		registry.KindRequirement,
		registry.KindType,
		registry.KindAssessmentVariable,
		registry.KindStep,
		registry.KindCoverageGoal,
	} {
		m.live.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
}

// AddImported adds n to the import counter for outcome, e.g. "created".
func (m *Metrics) AddImported(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.imports.WithLabelValues(outcome).Add(float64(n))
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
