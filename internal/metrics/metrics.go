// Package metrics exposes pool gauges and chain outcome counters over a small
// Prometheus endpoint. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var chainDurationBuckets = []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400, 43200, 86400}

// Metrics holds the Prometheus instruments for the pool supervisor.
type Metrics struct {
	PoolRunning   prometheus.Gauge
	PoolCapacity  prometheus.Gauge
	ChainsClaimed prometheus.Counter
	ChainOutcomes *prometheus.CounterVec
	ChainDuration *prometheus.HistogramVec
	ServiceUp     *prometheus.GaugeVec
	CleanupErrors prometheus.Counter
	QueueErrors   prometheus.Counter
	ConfigReloads *prometheus.CounterVec
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowpool_pool_running",
			Help: "Workflow chains currently running.",
		}),
		PoolCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowpool_pool_capacity",
			Help: "Configured maximum pool size.",
		}),
		ChainsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowpool_chains_claimed_total",
			Help: "Chains claimed from the queue.",
		}),
		ChainOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpool_chain_outcomes_total",
			Help: "Finished chains by outcome.",
		}, []string{"outcome"}),
		ChainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowpool_chain_duration_seconds",
			Help:    "Wall time from spawn to exit.",
			Buckets: chainDurationBuckets,
		}, []string{"outcome"}),
		ServiceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowpool_service_up",
			Help: "Whether a dependent service is running (1) or not (0).",
		}, []string{"service"}),
		CleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowpool_cleanup_errors_total",
			Help: "Best-effort cleanup steps that failed.",
		}),
		QueueErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowpool_queue_errors_total",
			Help: "Queue operations that failed.",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpool_config_reloads_total",
			Help: "Configuration reloads by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.PoolRunning,
		m.PoolCapacity,
		m.ChainsClaimed,
		m.ChainOutcomes,
		m.ChainDuration,
		m.ServiceUp,
		m.CleanupErrors,
		m.QueueErrors,
		m.ConfigReloads,
	)
	return m
}

// SetPool records the current pool occupancy and size.
func (m *Metrics) SetPool(running, capacity int) {
	if m == nil {
		return
	}
	m.PoolRunning.Set(float64(running))
	m.PoolCapacity.Set(float64(capacity))
}

// Claimed counts chains handed out by the queue.
func (m *Metrics) Claimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChainsClaimed.Add(float64(n))
}

// Finished records a chain outcome. A zero elapsed means the chain never ran.
func (m *Metrics) Finished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChainOutcomes.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.ChainDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

// SetServiceUp records a dependent service's state.
func (m *Metrics) SetServiceUp(service string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.ServiceUp.WithLabelValues(service).Set(value)
}

// CleanupFailed counts a failed best-effort cleanup step.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.CleanupErrors.Inc()
}

// QueueFailed counts a failed queue operation.
func (m *Metrics) QueueFailed() {
	if m == nil {
		return
	}
	m.QueueErrors.Inc()
}

// Reloaded counts a configuration reload attempt.
func (m *Metrics) Reloaded(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ConfigReloads.WithLabelValues(result).Inc()
}
