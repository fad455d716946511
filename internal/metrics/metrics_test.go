package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RoomCreated()
	m.RoomClosed(ReasonExpired)
	m.RoomClosed(ReasonDeleted)
	m.RoomClosed(ReasonDeleted)
	m.MessageAppended()
	m.MessagesCleared(3)
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscribersRemoved(1)
	m.SubscribersRemoved(0)
	m.SubscriptionDropped()
	m.SweepRun()
	m.SweepError()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"rooms created", m.roomsCreated, 1},
		{"closed expired", m.roomsClosed.WithLabelValues(ReasonExpired), 1},
		{"closed deleted", m.roomsClosed.WithLabelValues(ReasonDeleted), 2},
		{"appended", m.messagesAppended, 1},
		{"cleared", m.messagesCleared, 3},
		{"subscribers", m.subscribers, 1},
		{"dropped", m.subscriptionsDropped, 1},
		{"sweep runs", m.sweepRuns, 1},
		{"sweep errors", m.sweepErrors, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.RoomCreated()
	m.RoomClosed(ReasonExpired)
	m.MessageAppended()
	m.MessagesCleared(1)
	m.SubscriberAdded()
	m.SubscribersRemoved(1)
	m.SubscriptionDropped()
	m.SweepRun()
	m.SweepError()
}

func TestRegistryExposesNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RoomCreated()

	n, err := testutil.GatherAndCount(reg, "privroom_rooms_created_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 series, got %d", n)
	}
}
