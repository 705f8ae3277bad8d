package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build results used as metric labels.
const (
	ResultBuilt   = "built"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Metrics provides Prometheus metrics for builds.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec

	// Action metrics
	actions        *prometheus.CounterVec
	actionDuration prometheus.Histogram
	activeActions  prometheus.Gauge

	// Lock metrics
	lockWaits    prometheus.Counter
	lockWaitTime prometheus.Histogram

	// Ledger metrics
	ledgerMarks *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of project builds by result",
			},
			[]string{"result"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of project builds, dependencies included, in seconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),

		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of build actions run by outcome",
			},
			[]string{"outcome"},
		),
		actionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of build actions in seconds",
				Buckets:   buckets,
			},
		),
		activeActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_actions",
				Help:      "Number of build actions currently running",
			},
		),

		lockWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_waits_total",
				Help:      "Total number of lock acquisitions that had to wait",
			},
		),
		lockWaitTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for project locks in seconds",
				Buckets:   buckets,
			},
		),

		ledgerMarks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_marks_total",
				Help:      "Total number of ledger entries written by category",
			},
			[]string{"category"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.builds,
		m.buildDuration,
		m.actions,
		m.actionDuration,
		m.activeActions,
		m.lockWaits,
		m.lockWaitTime,
		m.ledgerMarks,
	)

	return m, nil
}

// Build Metrics

// RecordBuild records a finished project build with its result and duration.
func (m *Metrics) RecordBuild(result string, duration time.Duration) {
	if m == nil || m.builds == nil {
		return
	}
	m.builds.WithLabelValues(result).Inc()
	m.buildDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Action Metrics

// ActionStarted marks a build action as running.
func (m *Metrics) ActionStarted() {
	if m == nil || m.activeActions == nil {
		return
	}
	m.activeActions.Inc()
}

// ActionFinished records a finished build action. Outcome is "success",
// "failure" or "error".
func (m *Metrics) ActionFinished(outcome string, duration time.Duration) {
	if m == nil || m.actions == nil {
		return
	}
	m.activeActions.Dec()
	m.actions.WithLabelValues(outcome).Inc()
	m.actionDuration.Observe(duration.Seconds())
}

// Lock Metrics

// RecordLockWait records time spent acquiring a project lock. Acquisitions
// that did not wait only count towards the histogram.
func (m *Metrics) RecordLockWait(waited bool, duration time.Duration) {
	if m == nil || m.lockWaitTime == nil {
		return
	}
	if waited {
		m.lockWaits.Inc()
	}
	m.lockWaitTime.Observe(duration.Seconds())
}

// Ledger Metrics

// RecordLedgerMark records a ledger write.
func (m *Metrics) RecordLedgerMark(category string) {
	if m == nil || m.ledgerMarks == nil {
		return
	}
	m.ledgerMarks.WithLabelValues(category).Inc()
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// It does nothing when metrics are disabled or path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || m.registry == nil || path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
