package cqrs

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Publisher delivers events to whoever is interested in them. Publish is called
// once per event, in the order events were applied.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// PublisherFunc adapts function to Publisher.
type PublisherFunc func(ctx context.Context, ev *Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev *Event) error { return f(ctx, ev) }

// Subscriber reacts to published event.
type Subscriber func(ctx context.Context, ev *Event) error

// LoggingSubscriber writes every event it gets to logger at info level.
func LoggingSubscriber(logger *zap.Logger) Subscriber {
	return func(_ context.Context, ev *Event) error {
		logger.Info("event",
			zap.String("event_id", string(ev.EventID)),
			zap.String("aggregate_id", ev.AggregateID),
			zap.String("correlation_id", ev.CorrelationID),
		)
		return nil
	}
}

// Dispatcher is in-process Publisher delivering events synchronously to subscribers,
// in order of subscription. It is created and passed around explicitly, there
// is no global instance.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[EventID][]Subscriber
	all         []Subscriber
}

// NewDispatcher returns Dispatcher without subscribers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subscribers: make(map[EventID][]Subscriber)}
}

// Subscribe registers subscriber for events of provided type.
func (d *Dispatcher) Subscribe(id EventID, s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[id] = append(d.subscribers[id], s)
}

// SubscribeAll registers subscriber for every event.
func (d *Dispatcher) SubscribeAll(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, s)
}

// Publish calls every subscriber interested in provided event. All subscribers
// are called even if some of them fail, failures are combined.
func (d *Dispatcher) Publish(ctx context.Context, ev *Event) error {
	d.mu.RLock()
	subs := make([]Subscriber, 0, len(d.subscribers[ev.EventID])+len(d.all))
	subs = append(subs, d.subscribers[ev.EventID]...)
	subs = append(subs, d.all...)
	d.mu.RUnlock()

	var err error
	for _, s := range subs {
		if serr := s(ctx, ev); serr != nil {
			err = multierr.Append(err, DeliveryErr(ev, serr))
		}
	}
	return err
}

type fanOut []Publisher

// FanOut returns Publisher that publishes every event to all provided publishers.
func FanOut(publishers ...Publisher) Publisher {
	return fanOut(publishers)
}

func (f fanOut) Publish(ctx context.Context, ev *Event) error {
	var err error
	for _, p := range f {
		err = multierr.Append(err, p.Publish(ctx, ev))
	}
	return err
}

var (
	_ Publisher = &Dispatcher{}
	_ Publisher = fanOut{}
	_ Publisher = PublisherFunc(nil)
)
