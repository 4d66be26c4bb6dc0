package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/cqrs"
)

// CommandSubjectPrefix is prefix of subjects basket service listens on for commands.
const CommandSubjectPrefix = "command.basket."

// Receipt is what basket service reports back after successfully executing a command.
type Receipt struct {
	BasketID     string `json:"basket_id"`
	Version      int    `json:"version"`
	Events       int    `json:"events"`
	Published    int    `json:"published"`
	PublishError string `json:"publish_error,omitempty"`
}

// NewReceipt summarizes outcome of a command.
func NewReceipt(out *cqrs.Outcome) *Receipt {
	r := &Receipt{
		BasketID:  out.AggregateID,
		Version:   out.Version,
		Events:    len(out.Events),
		Published: out.Published,
	}
	if out.PublishErr != nil {
		r.PublishError = out.PublishErr.Error()
	}
	return r
}

// Client describes commands that can be executed on basket service.
type Client interface {
	AddItem(ctx context.Context, basketID, itemID string, quantity int) (*Receipt, error)
	ChangeQuantity(ctx context.Context, basketID, itemID string, quantity int) (*Receipt, error)
	Clear(ctx context.Context, basketID string) (*Receipt, error)
}

type basketClient struct {
	nm             *nm
	requestTimeout time.Duration
	replyTimeout   time.Duration
	logger         *zap.Logger
}

// NewClient returns instance of a basket client sending commands over provided
// connection. requestTimeout bounds waiting for basket service to accept a
// command, replyTimeout bounds waiting for it to report the result. Zero
// requestTimeout means replyTimeout.
func NewClient(conn *nats.Conn, requestTimeout, replyTimeout time.Duration, logger *zap.Logger) *basketClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = replyTimeout
	}
	return &basketClient{
		nm: &nm{
			conn:          conn,
			subscriptions: make(map[string]*activeSub),
		},
		requestTimeout: requestTimeout,
		replyTimeout:   replyTimeout,
		logger:         logger,
	}
}

func (c *basketClient) AddItem(ctx context.Context, basketID, itemID string, quantity int) (*Receipt, error) {
	correlationID := uuid.NewString()
	cmd := NewAddItemToBasket(basketID, itemID, quantity, correlationID)
	return c.SendCommandAndWait(ctx, "add", cmd)
}

func (c *basketClient) ChangeQuantity(ctx context.Context, basketID, itemID string, quantity int) (*Receipt, error) {
	correlationID := uuid.NewString()
	cmd := NewChangeQuantity(basketID, itemID, quantity, correlationID)
	return c.SendCommandAndWait(ctx, "change_quantity", cmd)
}

func (c *basketClient) Clear(ctx context.Context, basketID string) (*Receipt, error) {
	correlationID := uuid.NewString()
	cmd := NewClearBasket(basketID, correlationID)
	return c.SendCommandAndWait(ctx, "clear", cmd)
}

// SendCommandAndWait sends command to basket service and blocks until service
// reports the command is done.
func (c *basketClient) SendCommandAndWait(ctx context.Context, cmdName string, cmd cqrs.Command) (receipt *Receipt, err error) {
	commandSubject := CommandSubjectPrefix + cmdName
	responseEventSubject := fmt.Sprintf("event.%v.*", cmd.GetCorrelationID())
	log := c.logger.With(zap.String("subject", commandSubject), zap.String("correlation_id", cmd.GetCorrelationID()))

	// subscribe to feedback before we send a command
	if err := c.nm.Subscribe(responseEventSubject); err != nil {
		return nil, err
	}

	defer func() {
		err = multierr.Combine(err, c.nm.Unsubscribe(responseEventSubject))
	}()

	payload, err := CommandSerializer.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	log.Debug("sending command")
	if err := c.nm.SendCommand(commandSubject, payload, c.requestTimeout); err != nil {
		return nil, err
	}

	// block until we get a response
	data, err := c.nm.WaitForEvent(ctx, responseEventSubject, c.replyTimeout)
	if err != nil {
		return nil, err
	}
	receipt = &Receipt{}
	if err := json.Unmarshal(data, receipt); err != nil {
		return nil, fmt.Errorf("malformed receipt: %w", err)
	}
	return receipt, nil
}

var _ Client = &basketClient{}

type activeSub struct {
	ch    <-chan []byte
	errCh <-chan error
	sub   *nats.Subscription
}

// small nats manager, tracks subscriptions waiting for command feedback
type nm struct {
	conn          *nats.Conn
	mu            sync.Mutex
	subscriptions map[string]*activeSub
}

func (n *nm) SendCommand(subject string, payload []byte, timeout time.Duration) error {
	r, err := n.conn.Request(subject, payload, timeout)
	if err != nil {
		return err
	}
	response := string(r.Data)

	// protocol is that each response from request to basket service starts with either "ok:" or "error:"
	if strings.HasPrefix(response, "error:") {
		return decodeErrorPayload([]byte(strings.TrimPrefix(response, "error:")))
	}
	return nil
}

func (n *nm) Subscribe(subject string) error {
	ch := make(chan []byte, 1)
	errCh := make(chan error, 1)
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		if strings.HasSuffix(msg.Subject, ".error") {
			errCh <- decodeErrorPayload(msg.Data)
		} else {
			ch <- msg.Data
		}
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.subscriptions[subject] = &activeSub{
		ch:    ch,
		errCh: errCh,
		sub:   sub,
	}
	n.mu.Unlock()
	return nil
}

func (n *nm) Unsubscribe(subject string) error {
	n.mu.Lock()
	sub, ok := n.subscriptions[subject]
	delete(n.subscriptions, subject)
	n.mu.Unlock()
	if ok {
		return sub.sub.Unsubscribe()
	}
	return nil
}

func (n *nm) WaitForEvent(ctx context.Context, subject string, timeout time.Duration) ([]byte, error) {
	n.mu.Lock()
	activeSub, ok := n.subscriptions[subject]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("not subscribed to %v", subject)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-activeSub.ch:
		return msg, nil
	case err := <-activeSub.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("timeout waiting for basket service")
	}
}

func decodeErrorPayload(data []byte) error {
	reply := ErrorReply{}
	if err := json.Unmarshal(data, &reply); err != nil || reply.Code == "" {
		return errors.New(string(data))
	}
	return reply.Err()
}
