package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_map"

// Metrics holds the Prometheus collectors for the refresh loop and API.
type Metrics struct {
	RefreshesTotal   *prometheus.CounterVec // labels: status={connected,disconnected}
	StaleRefreshes   prometheus.Counter
	RejectedRefresh  prometheus.Counter
	RefreshDuration  prometheus.Histogram
	SourceErrors     *prometheus.CounterVec // labels: source
	SourceEvents     *prometheus.GaugeVec   // labels: source
	ActiveEvents     prometheus.Gauge
	CriticalEvents   prometheus.Gauge
	FallbackActive   prometheus.Gauge
	Generation       prometheus.Gauge
	EventsPublished  prometheus.Counter
	PublishErrors    prometheus.Counter
	LiveSubscribers  prometheus.Gauge
	AssistantQueries *prometheus.CounterVec // labels: intent, backend={rules,gemini}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Completed refresh passes by resulting status.",
		}, []string{"status"}),
		StaleRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_stale_total",
			Help:      "Refresh passes discarded because a newer pass superseded them.",
		}),
		RejectedRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_rejected_total",
			Help:      "Manual refresh requests rejected while another was loading.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete aggregation pass.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Upstream source failures by source.",
		}, []string{"source"}),
		SourceEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_events",
			Help:      "Events contributed by each source in the latest snapshot.",
		}, []string{"source"}),
		ActiveEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_events",
			Help:      "Events in the current snapshot.",
		}),
		CriticalEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical_events",
			Help:      "Critical events in the current snapshot.",
		}),
		FallbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallback_active",
			Help:      "1 when the current snapshot is the demo fallback, 0 otherwise.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_generation",
			Help:      "Generation of the current snapshot.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events written to the Kafka topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed Kafka batch writes.",
		}),
		LiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Open WebSocket subscriptions.",
		}),
		AssistantQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_queries_total",
			Help:      "Assistant chat queries by intent and answering backend.",
		}, []string{"intent", "backend"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RefreshesTotal,
		m.StaleRefreshes,
		m.RejectedRefresh,
		m.RefreshDuration,
		m.SourceErrors,
		m.SourceEvents,
		m.ActiveEvents,
		m.CriticalEvents,
		m.FallbackActive,
		m.Generation,
		m.EventsPublished,
		m.PublishErrors,
		m.LiveSubscribers,
		m.AssistantQueries,
	}
}

// DroppedSnapshots exposes a drop count kept by the live broadcaster as a
// counter. Register it once the broadcaster exists.
func DroppedSnapshots(count func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_dropped_snapshots_total",
		Help:      "Snapshots not delivered to live subscribers with a full queue.",
	}, func() float64 { return float64(count()) })
}
