// Package metrics exposes Prometheus collectors for rooms, messages and subscribers.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "privroom"

// Close reasons used as label values.
const (
	ReasonExpired = "expired"
	ReasonDeleted = "deleted"
)

// Metrics groups all collectors of the service.
type Metrics struct {
	roomsCreated         prometheus.Counter
	roomsClosed          *prometheus.CounterVec
	messagesAppended     prometheus.Counter
	messagesCleared      prometheus.Counter
	subscribers          prometheus.Gauge
	subscriptionsDropped prometheus.Counter
	sweepRuns            prometheus.Counter
	sweepErrors          prometheus.Counter
}

// New registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		roomsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created on first join.",
		}),
		roomsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_closed_total",
			Help:      "Rooms closed, by reason.",
		}, []string{"reason"}),
		messagesAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages committed to room logs.",
		}),
		messagesCleared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_cleared_total",
			Help:      "Messages removed by room resets.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently attached subscriptions.",
		}),
		subscriptionsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_dropped_total",
			Help:      "Subscriptions detached for falling behind.",
		}),
		sweepRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Expiry sweeper passes.",
		}),
		sweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Failed deletions during expiry sweeps.",
		}),
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

func (m *Metrics) RoomClosed(reason string) {
	if m != nil {
		m.roomsClosed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageAppended() {
	if m != nil {
		m.messagesAppended.Inc()
	}
}

func (m *Metrics) MessagesCleared(n int64) {
	if m != nil {
		m.messagesCleared.Add(float64(n))
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) SubscribersRemoved(n int) {
	if m != nil && n > 0 {
		m.subscribers.Sub(float64(n))
	}
}

func (m *Metrics) SubscriptionDropped() {
	if m != nil {
		m.subscriptionsDropped.Inc()
	}
}

func (m *Metrics) SweepRun() {
	if m != nil {
		m.sweepRuns.Inc()
	}
}

func (m *Metrics) SweepError() {
	if m != nil {
		m.sweepErrors.Inc()
	}
}
