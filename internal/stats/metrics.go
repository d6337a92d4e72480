package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/loreweave/internal/ir"
)

const namespace = "loreweave"

// Metrics exports run statistics on a private registry, so several runs in
// one process never share collectors.
type Metrics struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	entities      *prometheus.GaugeVec
	relationships prometheus.Gauge
	pressure      *prometheus.GaugeVec
	events        prometheus.Counter
	violations    *prometheus.CounterVec
	systemErrors  *prometheus.CounterVec
}

// NewMetrics registers the run collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Ticks completed.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time per tick.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_entities",
			Help: "Active entities by kind.",
		}, []string{"kind"}),
		relationships: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_relationships",
			Help: "Active relationships.",
		}),
		pressure: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pressure",
			Help: "Current pressure values.",
		}, []string{"pressure"}),
		events: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "narrative_events_total",
			Help: "Narrative events emitted.",
		}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "violations_total",
			Help: "Contract violations by class and severity.",
		}, []string{"class", "severity"}),
		systemErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "system_errors_total",
			Help: "System failures by system.",
		}, []string{"system"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick updates the collectors from one tick.
func (m *Metrics) ObserveTick(ts TickStats, violations []ir.Violation, failed []string, d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())

	// Kinds that died out must not keep their last value.
	m.entities.Reset()
	for kind, n := range ts.ByKind {
		m.entities.WithLabelValues(kind).Set(float64(n))
	}
	m.relationships.Set(float64(ts.Relationships))
	for id, v := range ts.Pressures {
		m.pressure.WithLabelValues(id).Set(v)
	}
	m.events.Add(float64(ts.Events))
	for _, v := range violations {
		m.violations.WithLabelValues(v.Class, string(v.Severity)).Inc()
	}
	for _, sys := range failed {
		m.systemErrors.WithLabelValues(sys).Inc()
	}
}
