package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connection is NATS connection that knows when it is fully closed.
type Connection struct {
	*nats.Conn
	closed chan struct{}
}

// Connect dials NATS server at url. drainTimeout bounds Drain, after it the
// connection is closed even if some messages are still pending.
func Connect(url, name string, drainTimeout time.Duration, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name(name),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from nats", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to nats", zap.String("url", c.ConnectedUrl()))
		}),
	}
	if drainTimeout > 0 {
		opts = append(opts, nats.DrainTimeout(drainTimeout))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Connection{Conn: conn, closed: closed}, nil
}

// Closed is closed after the connection is closed and close callback ran.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// Drain stops the connection gracefully. See Drain function.
func (c *Connection) Drain(ctx context.Context) error {
	return Drain(ctx, c.Conn, c.closed)
}

// Drainer is part of *nats.Conn needed for graceful shutdown.
type Drainer interface {
	Drain() error
}

// Drain unsubscribes every subscription, waits until messages already
// received are handled and pending publishes are flushed, then waits for
// closed to be closed. Nil error means no message handler is running anymore.
func Drain(ctx context.Context, conn Drainer, closed <-chan struct{}) error {
	if err := conn.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for nats connection to close: %w", ctx.Err())
	}
}
