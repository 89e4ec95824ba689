// Package metrics exposes Prometheus collectors for the scheduler and probes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetpulse"

// Metrics holds the collectors on a private registry.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskSkipped  *prometheus.CounterVec
	probes       *prometheus.CounterVec
	probeLatency *prometheus.HistogramVec
	hostsOnline  prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.taskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task executions by task and final status",
		},
		[]string{"task", "status"},
	)
	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution time in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"task"},
	)
	m.taskSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_skipped_total",
			Help:      "Ticks skipped because the previous run was still in flight",
		},
		[]string{"task"},
	)
	m.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Probes performed by method and outcome",
		},
		[]string{"method", "online"},
	)
	m.probeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_ms",
			Help:      "Latency of answered probes in milliseconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 3000},
		},
		[]string{"method"},
	)
	m.hostsOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hosts_online",
		Help:      "Hosts online after the last check cycle",
	})

	m.registry.MustRegister(
		m.taskRuns, m.taskDuration, m.taskSkipped,
		m.probes, m.probeLatency, m.hostsOnline,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskRun records one finished execution of task.
func (m *Metrics) TaskRun(task, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, status).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// TaskSkipped records a tick that found task still running.
func (m *Metrics) TaskSkipped(task string) {
	if m == nil {
		return
	}
	m.taskSkipped.WithLabelValues(task).Inc()
}

// Probe records one probe outcome. Negative latencies are not observed.
func (m *Metrics) Probe(method string, online bool, latencyMs float64) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(method, strconv.FormatBool(online)).Inc()
	if latencyMs >= 0 && online {
		m.probeLatency.WithLabelValues(method).Observe(latencyMs)
	}
}

// SetHostsOnline sets the online hosts gauge.
func (m *Metrics) SetHostsOnline(n int) {
	if m == nil {
		return
	}
	m.hostsOnline.Set(float64(n))
}
