package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/cqrs"
)

// publisher is part of *nats.Conn used for command feedback.
type publisher interface {
	Publish(subject string, data []byte) error
}

type listener struct {
	ctx     context.Context
	handler cqrs.CommandHandler
	conn    publisher
	logger  *zap.Logger
}

func newListener(ctx context.Context, handler cqrs.CommandHandler, conn publisher, logger *zap.Logger) *listener {
	return &listener{ctx: ctx, handler: handler, conn: conn, logger: logger}
}

func (l *listener) onMessage(msg *nats.Msg) {
	cmd, err := l.accept(msg.Data)
	if err != nil {
		l.respond(msg, append([]byte("error:"), errorPayload(err)...))
		return
	}
	// respond that command is accepted
	l.respond(msg, []byte("ok:ack"))
	l.execute(cmd)
}

func (l *listener) accept(data []byte) (cqrs.Command, error) {
	cmd, err := basket.CommandSerializer.Unmarshal(data)
	if err != nil {
		l.logger.Warn("rejecting command", zap.Error(err))
		return nil, err
	}
	if cmd.GetCorrelationID() == "" {
		return nil, fmt.Errorf("%w: correlation ID is required", basket.ErrInvalidCommand)
	}
	return cmd, nil
}

func (l *listener) execute(cmd cqrs.Command) {
	log := l.logger.With(
		zap.String("command_id", string(cmd.GetCommandID())),
		zap.String("correlation_id", cmd.GetCorrelationID()),
	)
	log.Debug("executing command")

	out, err := l.handler.HandleCommand(l.ctx, cmd)
	if err != nil {
		log.Info("command failed", zap.Error(err))
		l.publishError(cmd.GetCorrelationID(), err)
		return
	}
	l.publishSuccess(cmd.GetCorrelationID(), basket.NewReceipt(out))
}

func (l *listener) respond(msg *nats.Msg, data []byte) {
	if err := msg.Respond(data); err != nil {
		l.logger.Error("failed to respond to nats message", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (l *listener) publishSuccess(correlationID string, receipt *basket.Receipt) {
	payload, err := json.Marshal(receipt)
	if err != nil {
		l.publishError(correlationID, err)
		return
	}
	l.publish(fmt.Sprintf("event.%v.success", correlationID), payload)
}

func (l *listener) publishError(correlationID string, cmdErr error) {
	l.publish(fmt.Sprintf("event.%v.error", correlationID), errorPayload(cmdErr))
}

func errorPayload(err error) []byte {
	payload, merr := json.Marshal(basket.NewErrorReply(err))
	if merr != nil {
		return []byte(err.Error())
	}
	return payload
}

func (l *listener) publish(subject string, payload []byte) {
	if err := l.conn.Publish(subject, payload); err != nil {
		l.logger.Error("failed to publish command feedback", zap.String("subject", subject), zap.Error(err))
	}
}
