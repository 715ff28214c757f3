package foreman

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "foreman"

// Metrics provides Prometheus metrics for registries, worlds and dispatchers.
// A nil *Metrics records nothing.
type Metrics struct {
	rebuilds          *prometheus.CounterVec
	rebuildDuration   prometheus.Histogram
	graphWavefronts   prometheus.Gauge
	cycleErrors       prometheus.Counter
	fetchErrors       prometheus.Counter
	borrowConflicts   prometheus.Counter
	systemsDispatched *prometheus.CounterVec
	dispatchDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "graph_rebuilds_total",
				Help:      "Total number of system graph rebuilds",
			},
			[]string{"status"},
		),
		rebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "graph_rebuild_duration_seconds",
				Help:      "Duration of system graph rebuilds in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		graphWavefronts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "graph_wavefronts",
				Help:      "Number of wavefronts in the last built system graph",
			},
		),
		cycleErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "graph_cycle_errors_total",
				Help:      "Total number of rebuilds that failed on a dependency cycle",
			},
		),
		fetchErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "resource_fetch_errors_total",
				Help:      "Total number of fetches of absent resources",
			},
		),
		borrowConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "resource_borrow_conflicts_total",
				Help:      "Total number of rejected resource borrows",
			},
		),
		systemsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "systems_dispatched_total",
				Help:      "Total number of system runs",
			},
			[]string{"status"},
		),
		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of a full dispatch in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	collectors := []prometheus.Collector{
		m.rebuilds,
		m.rebuildDuration,
		m.graphWavefronts,
		m.cycleErrors,
		m.fetchErrors,
		m.borrowConflicts,
		m.systemsDispatched,
		m.dispatchDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) rebuilt(wavefronts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues("success").Inc()
	m.rebuildDuration.Observe(duration.Seconds())
	m.graphWavefronts.Set(float64(wavefronts))
}

func (m *Metrics) cycleDetected(duration time.Duration) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues("cycle").Inc()
	m.rebuildDuration.Observe(duration.Seconds())
	m.cycleErrors.Inc()
}

func (m *Metrics) fetchFailed() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}

func (m *Metrics) borrowConflict() {
	if m == nil {
		return
	}
	m.borrowConflicts.Inc()
}

func (m *Metrics) systemRan(failed bool) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "panic"
	}
	m.systemsDispatched.WithLabelValues(status).Inc()
}

func (m *Metrics) dispatched(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(duration.Seconds())
}
