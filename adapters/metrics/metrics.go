// Package metrics provides Prometheus metrics collection for Rowbase.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for Rowbase.
type Collector struct {
	// Schema metrics
	DDLTotal *prometheus.CounterVec

	// Listener metrics
	EventsDecoded      prometheus.Counter
	EventsDropped      *prometheus.CounterVec
	ListenerReconnects prometheus.Counter

	// Fan-out metrics
	Deliveries          *prometheus.CounterVec
	AuthDenials         *prometheus.CounterVec
	AuthCheckDuration   prometheus.Histogram
	SubscriptionsActive prometheus.Gauge
}

// New creates a new metrics collector registered on its own registry.
// Returns the collector and the registry to expose via promhttp.
func New() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Collector{
		DDLTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "ddl_total",
				Help:      "Schema mutations executed, by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		EventsDecoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "events_decoded_total",
				Help:      "Change notifications decoded from the listen channel",
			},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "events_dropped_total",
				Help:      "Change notifications dropped, by reason",
			},
			[]string{"reason"},
		),
		ListenerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "listener_reconnects_total",
				Help:      "Times the notification listener re-established its connection",
			},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "deliveries_total",
				Help:      "Events pushed to subscribers, by table",
			},
			[]string{"table"},
		),
		AuthDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rowbase",
				Name:      "authorization_denials_total",
				Help:      "Visibility checks that denied delivery, by reason",
			},
			[]string{"reason"},
		),
		AuthCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rowbase",
				Name:      "authorization_check_seconds",
				Help:      "Duration of per-subscriber visibility checks",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SubscriptionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rowbase",
				Name:      "subscriptions_active",
				Help:      "Currently registered channel subscriptions",
			},
		),
	}

	reg.MustRegister(
		c.DDLTotal,
		c.EventsDecoded,
		c.EventsDropped,
		c.ListenerReconnects,
		c.Deliveries,
		c.AuthDenials,
		c.AuthCheckDuration,
		c.SubscriptionsActive,
	)
	return c, reg
}
