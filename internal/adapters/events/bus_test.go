package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/certs/internal/logging"
	"github.com/example/certs/internal/ports/secondary"
)

type recordingLog struct {
	events []secondary.CertificateEvent
	err    error
}

func (r *recordingLog) Append(_ context.Context, e secondary.CertificateEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingLog) List(context.Context, string, int) ([]*secondary.EventLogRecord, error) {
	return nil, nil
}

func (r *recordingLog) CountBySignal(context.Context) (map[string]int, error) { return nil, nil }

func created(userID int64) secondary.CertificateEvent {
	return secondary.CertificateEvent{
		SignalName:    secondary.SignalCertificateCreated,
		User:          secondary.EventUser{ID: userID},
		Course:        secondary.EventCourse{CourseKey: "course-v1:edX+DemoX+2024"},
		CurrentStatus: "downloadable",
	}
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(logging.Discard())
	var order []string
	for _, name := range []string{"first", "second"} {
		name := name
		bus.Subscribe(SubscriberFunc{SubscriberName: name, Fn: func(context.Context, secondary.CertificateEvent) error {
			order = append(order, name)
			return nil
		}})
	}

	bus.Publish(context.Background(), created(42))

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, bus.Published(secondary.SignalCertificateCreated))
	assert.Equal(t, 0, bus.Published(secondary.SignalCertificateRevoked))
}

func TestBus_SwallowsFailures(t *testing.T) {
	bus := NewBus(logging.Discard())
	log := &recordingLog{}

	bus.Subscribe(SubscriberFunc{SubscriberName: "broken", Fn: func(context.Context, secondary.CertificateEvent) error {
		return errors.New("downstream unavailable")
	}})
	bus.Subscribe(SubscriberFunc{SubscriberName: "panicky", Fn: func(context.Context, secondary.CertificateEvent) error {
		panic("boom")
	}})
	bus.Subscribe(EventLogSubscriber(log))

	require.NotPanics(t, func() { bus.Publish(context.Background(), created(42)) })

	assert.Len(t, log.events, 1, "later subscribers still receive the event")
	assert.Equal(t, 1, bus.Failures("broken"))
	assert.Equal(t, 1, bus.Failures("panicky"))
	assert.Equal(t, 0, bus.Failures("event-log"))
}

func TestEventLogSubscriber_PropagatesError(t *testing.T) {
	sub := EventLogSubscriber(&recordingLog{err: errors.New("disk full")})
	err := sub.Handle(context.Background(), created(1))
	require.Error(t, err)
	assert.Equal(t, "event-log", sub.Name())
}
