// Package metrics exposes RMI runtime observability data through a
// Prometheus registry: invocation counts and latencies, channel pool
// occupancy, and distributed-GC reclamation counts.
//
// # Design rationale
//
// A single Metrics value owns one prometheus.Registry per session (or
// per process, if the caller shares one across sessions), registering
// every vector at construction time rather than lazily on first use.
// Per-method invocation stats are kept in a sync.Map alongside the
// Prometheus vectors, since a caller wanting an in-process Stats()
// snapshot (Session.Stats) shouldn't need to scrape its own /metrics
// endpoint.
//
// # Concurrency model
//
// RecordInvocation is called on every completed invocation and must
// stay cheap: it only touches the Prometheus vectors (already safe for
// concurrent use) and a per-method *MethodStats, which uses atomic
// counters exclusively. methodStats is a sync.Map because it is
// read-heavy and written once per newly seen method.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MethodStats tracks per-method invocation counters, using atomics
// exclusively so no lock is needed on the hot path.
type MethodStats struct {
	Invocations atomic.Int64
	Failures    atomic.Int64
	TotalMs     atomic.Int64
}

// Metrics wraps the Prometheus collectors for one session's RMI
// runtime. The zero value is not usable; always construct via New.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	dgcReclaimedTotal  prometheus.Counter
	dgcRoundsTotal     *prometheus.CounterVec

	channelsIdle  prometheus.Gauge
	channelsTotal prometheus.Gauge
	exportsActive prometheus.Gauge
	importsActive prometheus.Gauge

	methodStats sync.Map // method name -> *MethodStats
}

var defaultBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// New builds a Metrics and registers its collectors, plus the default
// Go/process collectors, under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of remote method invocations.",
		}, []string{"method", "status"}),

		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_ms",
			Help:      "Remote invocation duration in milliseconds.",
			Buckets:   defaultBuckets,
		}, []string{"method"}),

		dgcReclaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dgc_reclaimed_total",
			Help:      "Total exported objects reclaimed by distributed GC.",
		}),

		dgcRoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dgc_rounds_total",
			Help:      "Total distributed-GC live-set exchange rounds, by outcome.",
		}, []string{"outcome"}),

		channelsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_idle",
			Help:      "Invocation channels currently idle in the broker pool.",
		}),

		channelsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_total",
			Help:      "Invocation channels currently open (idle or lent out).",
		}),

		exportsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exports_active",
			Help:      "Remote objects currently exported by this session.",
		}),

		importsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_active",
			Help:      "Remote object references currently imported by this session.",
		}),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.dgcReclaimedTotal,
		m.dgcRoundsTotal,
		m.channelsIdle,
		m.channelsTotal,
		m.exportsActive,
		m.importsActive,
	)
	return m
}

// RecordInvocation records one completed invocation of method, which
// took durationMs and either succeeded or failed.
func (m *Metrics) RecordInvocation(method string, durationMs int64, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	m.invocationsTotal.WithLabelValues(method, status).Inc()
	m.invocationDuration.WithLabelValues(method).Observe(float64(durationMs))

	stats := m.methodStatsFor(method)
	stats.Invocations.Add(1)
	if !success {
		stats.Failures.Add(1)
	}
	stats.TotalMs.Add(durationMs)
}

func (m *Metrics) methodStatsFor(method string) *MethodStats {
	if v, ok := m.methodStats.Load(method); ok {
		return v.(*MethodStats)
	}
	actual, _ := m.methodStats.LoadOrStore(method, &MethodStats{})
	return actual.(*MethodStats)
}

// MethodStats returns the counters recorded for method, or nil if no
// invocation of it has completed yet.
func (m *Metrics) MethodStats(method string) *MethodStats {
	if v, ok := m.methodStats.Load(method); ok {
		return v.(*MethodStats)
	}
	return nil
}

// RecordDGCRound records the outcome of one distributed-GC live-set
// exchange and, on success, how many exports it reclaimed.
func (m *Metrics) RecordDGCRound(reclaimed int, err error) {
	if err != nil {
		m.dgcRoundsTotal.WithLabelValues("error").Inc()
		return
	}
	m.dgcRoundsTotal.WithLabelValues("ok").Inc()
	m.dgcReclaimedTotal.Add(float64(reclaimed))
}

// SetChannelStats publishes the broker's current pool occupancy.
func (m *Metrics) SetChannelStats(idle, total int) {
	m.channelsIdle.Set(float64(idle))
	m.channelsTotal.Set(float64(total))
}

// SetRegistryStats publishes the registry's current export/import
// counts.
func (m *Metrics) SetRegistryStats(exports, imports int) {
	m.exportsActive.Set(float64(exports))
	m.importsActive.Set(float64(imports))
}

// Handler returns an http.Handler that serves this Metrics' collectors
// in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
