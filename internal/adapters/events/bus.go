// Package events provides the in-process lifecycle event bus.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/certs/internal/ports/secondary"
)

// Subscriber receives published certificate events.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, event secondary.CertificateEvent) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc struct {
	SubscriberName string
	Fn             func(ctx context.Context, event secondary.CertificateEvent) error
}

// Name returns the subscriber name used in logs.
func (s SubscriberFunc) Name() string { return s.SubscriberName }

// Handle invokes the wrapped function.
func (s SubscriberFunc) Handle(ctx context.Context, event secondary.CertificateEvent) error {
	return s.Fn(ctx, event)
}

// Bus delivers events synchronously to subscribers in registration order.
// Subscriber errors and panics are logged and counted, never returned, so a
// failing consumer cannot roll back or block the mutation that emitted the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	published   map[string]int
	failures    map[string]int
	logger      *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		published: make(map[string]int),
		failures:  make(map[string]int),
		logger:    logger,
	}
}

// Subscribe registers a subscriber.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(ctx context.Context, event secondary.CertificateEvent) {
	b.mu.Lock()
	b.published[event.SignalName]++
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		if err := b.deliver(ctx, s, event); err != nil {
			b.mu.Lock()
			b.failures[s.Name()]++
			b.mu.Unlock()
			b.logger.Error("event subscriber failed",
				"subscriber", s.Name(),
				"signal", event.SignalName,
				"user_id", event.User.ID,
				"course_key", event.Course.CourseKey,
				"error", err,
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s Subscriber, event secondary.CertificateEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Handle(ctx, event)
}

// Published returns how many events with the signal name were published.
func (b *Bus) Published(signal string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published[signal]
}

// Failures returns how many deliveries to the named subscriber failed.
func (b *Bus) Failures(subscriber string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures[subscriber]
}

// EventLogSubscriber persists every event through the event log.
func EventLogSubscriber(log secondary.EventLogRepository) Subscriber {
	return SubscriberFunc{
		SubscriberName: "event-log",
		Fn: func(ctx context.Context, event secondary.CertificateEvent) error {
			return log.Append(ctx, event)
		},
	}
}

var _ secondary.EventPublisher = (*Bus)(nil)
