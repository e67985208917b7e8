// Package telemetry records run metrics with prometheus and run traces with
// OpenTelemetry. Both sinks are files; nothing is served over the network.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "browser_agent"

// Metrics holds the run's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal    *prometheus.CounterVec
	actionsTotal  *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	runSuccess    prometheus.Gauge
	runDuration   prometheus.Gauge
	sessionsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Agent steps by outcome",
			},
			[]string{"outcome"},
		),
		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Executed browser actions by type and outcome",
			},
			[]string{"action", "outcome"},
		),
		stepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Wall time of one agent step",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		runSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_success",
				Help:      "1 when the last run completed without a fatal error",
			},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last run",
			},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_sessions_total",
				Help:      "Browser sessions acquired by requested and actual mode",
			},
			[]string{"requested", "mode"},
		),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordAction counts one executed action.
func (m *Metrics) RecordAction(action string, ok bool) {
	m.actionsTotal.WithLabelValues(action, outcome(ok)).Inc()
}

// RecordStep counts one finished step and observes its duration.
func (m *Metrics) RecordStep(d time.Duration, ok bool) {
	m.stepsTotal.WithLabelValues(outcome(ok)).Inc()
	m.stepDuration.Observe(d.Seconds())
}

// RecordSession counts an acquired browser session.
func (m *Metrics) RecordSession(requested, mode string) {
	m.sessionsTotal.WithLabelValues(requested, mode).Inc()
}

// RecordRun sets the run outcome gauges.
func (m *Metrics) RecordRun(d time.Duration, ok bool) {
	if ok {
		m.runSuccess.Set(1)
	} else {
		m.runSuccess.Set(0)
	}
	m.runDuration.Set(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes the registry in text exposition format to path.
func (m *Metrics) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
