package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
)

const namespace = "spokely"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	XPAwarded    *prometheus.CounterVec
	LevelUps     prometheus.Counter
	LivesLost    prometheus.Counter
	QueueJoins   prometheus.Counter
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		XPAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "XP granted to users by source.",
		}, []string{"source"}),
		LevelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level ups from XP and level completion.",
		}),
		LivesLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lives_lost_total",
			Help:      "Lives lost.",
		}),
		QueueJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_joins_total",
			Help:      "Fresh joins to the waiting queue.",
		}),
		EventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Event handlers that returned an error or panicked.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.XPAwarded,
		m.LevelUps,
		m.LivesLost,
		m.QueueJoins,
		m.EventsFailed,
	)

	return m
}

// Subscribe counts domain events published on the bus.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameXPAwarded, func(_ context.Context, e event.Event) error {
		ev := e.(domain.EventXPAwarded)
		m.XPAwarded.WithLabelValues(ev.Source).Add(float64(ev.Amount))
		return nil
	})

	eb.Subscribe(domain.EventNameLeveledUp, func(context.Context, event.Event) error {
		m.LevelUps.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameLifeLost, func(context.Context, event.Event) error {
		m.LivesLost.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameQueueJoined, func(context.Context, event.Event) error {
		m.QueueJoins.Inc()
		return nil
	})
}

// EventFailed is an event.FailureHook.
func (m *Metrics) EventFailed(_ context.Context, e event.Event, _ error) {
	m.EventsFailed.WithLabelValues(e.Name()).Inc()
}
