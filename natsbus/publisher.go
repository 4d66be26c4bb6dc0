// Package natsbus delivers domain events over NATS.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/cqrs"
)

// SubjectPrefix is prepended to event ID to get subject event is published on.
const SubjectPrefix = "event."

// Subject returns NATS subject events of provided type are published on.
func Subject(id cqrs.EventID) string {
	return SubjectPrefix + string(id)
}

// DefaultFlushTimeout bounds waiting for server acknowledgement when caller
// context has no deadline. nats refuses to flush without one.
const DefaultFlushTimeout = 2 * time.Second

// Conn is part of *nats.Conn publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher is cqrs.Publisher sending serialized event envelopes to NATS.
type Publisher struct {
	conn       Conn
	serializer cqrs.EventSerializer
	flush      bool
	logger     *zap.Logger
}

// Option configures Publisher.
type Option func(*Publisher)

// WithFlush makes publisher wait for server to acknowledge every event,
// so delivery failures are reported instead of being buffered.
func WithFlush() Option {
	return func(p *Publisher) { p.flush = true }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher returns Publisher encoding events with serializer.
func NewPublisher(conn Conn, serializer cqrs.EventSerializer, opts ...Option) *Publisher {
	p := &Publisher{
		conn:       conn,
		serializer: serializer,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, ev *cqrs.Event) error {
	payload, err := p.serializer.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event %v: %w", ev.EventID, err)
	}
	subject := Subject(ev.EventID)
	if err := p.conn.Publish(subject, payload); err != nil {
		return err
	}
	if p.flush {
		if err := p.flushConn(ctx); err != nil {
			return err
		}
	}
	p.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("aggregate_id", ev.AggregateID),
		zap.String("correlation_id", ev.CorrelationID),
	)
	return nil
}

func (p *Publisher) flushConn(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

var (
	_ cqrs.Publisher = &Publisher{}
	_ Conn           = &nats.Conn{}
)
