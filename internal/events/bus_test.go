package events

import (
	"testing"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewBus(nopLogger{})
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	return b
}

func TestBus_PublishDelivers(t *testing.T) {
	b := newTestBus(t)

	var got []any
	b.Subscribe("linking.started", func(e Event) {
		got = append(got, e.Payload)
	})

	b.Publish("linking.started", 42)
	b.Publish("other.topic", 7)

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0] != 42 {
		t.Errorf("expected payload 42, got %v", got[0])
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := newTestBus(t)

	count := 0
	b.Subscribe("t", func(Event) { count++ })
	b.Subscribe("t", func(Event) { count++ })

	b.Publish("t", nil)
	if count != 2 {
		t.Errorf("expected 2 deliveries, got %d", count)
	}
}

func TestBus_SubscriptionClose(t *testing.T) {
	b := newTestBus(t)

	count := 0
	sub := b.Subscribe("t", func(Event) { count++ })

	b.Publish("t", nil)
	sub.Close()
	b.Publish("t", nil)

	if count != 1 {
		t.Errorf("expected 1 delivery after close, got %d", count)
	}
	if n := b.SubscriberCount("t"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}

	// Close twice is fine.
	sub.Close()
}

// A handler that unsubscribes itself mid-publish must not disturb delivery
// to the rest of the snapshot.
func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	b := newTestBus(t)

	count := 0
	var sub *Subscription
	sub = b.Subscribe("t", func(Event) {
		count++
		sub.Close()
	})
	b.Subscribe("t", func(Event) { count++ })

	b.Publish("t", nil)
	if count != 2 {
		t.Errorf("expected 2 deliveries, got %d", count)
	}

	b.Publish("t", nil)
	if count != 3 {
		t.Errorf("expected 3 deliveries after self-unsubscribe, got %d", count)
	}
}

// A handler that subscribes a new handler mid-publish must not deliver the
// in-flight event to it.
func TestBus_SubscribeDuringPublish(t *testing.T) {
	b := newTestBus(t)

	lateCount := 0
	b.Subscribe("t", func(Event) {
		b.Subscribe("t", func(Event) { lateCount++ })
	})

	b.Publish("t", nil)
	if lateCount != 0 {
		t.Errorf("late subscriber saw in-flight event")
	}

	b.Publish("t", nil)
	if lateCount != 1 {
		t.Errorf("expected late subscriber to see next event, got %d", lateCount)
	}
}
