// Package events is the broadcast bus mediating multi-peer link
// negotiation. Peers subscribe while in states that care about broadcasts
// and release the subscription on leaving them; there is no process-wide
// static bus, every peer receives the bus at construction.
package events

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event is one broadcast on the bus.
type Event struct {
	Topic   string
	Payload any
	Time    time.Time
}

// HandlerFunc reacts to an event. Handlers run synchronously within the
// publishing tick.
type HandlerFunc func(Event)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Subscription is a scoped handle on a registered handler. Close is
// idempotent and must always run when the subscribing state is left,
// including abnormal teardown.
type Subscription struct {
	bus    *Bus
	topic  string
	id     uint64
	closed bool
}

// Close removes the handler from the bus.
func (s *Subscription) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.bus.unsubscribe(s.topic, s.id)
}

// Bus delivers events to subscribed handlers. Publishing is synchronous and
// single-threaded; handlers may subscribe or unsubscribe other handlers
// while a publish is in flight.
type Bus struct {
	subs   map[string]map[uint64]HandlerFunc
	nextID uint64
	logger Logger

	published metric.Int64Counter
	delivered metric.Int64Counter
}

// NewBus creates a bus using the global OTel meter for metrics (no-op when
// no provider is configured).
func NewBus(logger Logger) (*Bus, error) {
	b := &Bus{
		subs:   make(map[string]map[uint64]HandlerFunc),
		logger: logger,
	}

	m := meter()
	var err error

	b.published, err = m.Int64Counter(
		"linkbus.events.published",
		metric.WithDescription("Total events published on the link bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	b.delivered, err = m.Int64Counter(
		"linkbus.events.delivered",
		metric.WithDescription("Total handler deliveries on the link bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	return b, nil
}

// Subscribe registers a handler for a topic and returns its scoped handle.
func (b *Bus) Subscribe(topic string, h HandlerFunc) *Subscription {
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]HandlerFunc)
	}
	b.subs[topic][id] = h
	return &Subscription{bus: b, topic: topic, id: id}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	delete(b.subs[topic], id)
}

// Publish delivers the payload to every handler currently subscribed to the
// topic. The subscriber set is snapshotted first so handlers reacting by
// changing state (and therefore subscriptions) do not disturb delivery.
func (b *Bus) Publish(topic string, payload any) {
	e := Event{Topic: topic, Payload: payload, Time: time.Now()}

	topicAttr := attribute.String("topic", topic)
	b.published.Add(context.Background(), 1, metric.WithAttributes(topicAttr))

	handlers := make([]HandlerFunc, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}

	b.logger.Debug("publishing event", "topic", topic, "subscribers", len(handlers))

	for _, h := range handlers {
		h(e)
		b.delivered.Add(context.Background(), 1, metric.WithAttributes(topicAttr))
	}
}

// SubscriberCount returns the number of live subscriptions on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	return len(b.subs[topic])
}
