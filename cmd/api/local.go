package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/cqrs"
)

// newLocalEvents returns dispatcher events of locally executed commands are
// published to. Every event is logged.
func newLocalEvents(log *zap.Logger) *cqrs.Dispatcher {
	d := cqrs.NewDispatcher()
	d.SubscribeAll(cqrs.LoggingSubscriber(log))
	return d
}

// localClient executes commands in this process instead of sending them to
// basket service.
type localClient struct {
	handler *basket.CommandHandler
}

func newLocalClient(handler *basket.CommandHandler) *localClient {
	return &localClient{handler: handler}
}

func (l *localClient) AddItem(ctx context.Context, basketID, itemID string, quantity int) (*basket.Receipt, error) {
	out, err := l.handler.AddItemToBasket(ctx, basket.NewAddItemToBasket(basketID, itemID, quantity, uuid.NewString()))
	if err != nil {
		return nil, err
	}
	return basket.NewReceipt(out), nil
}

func (l *localClient) ChangeQuantity(ctx context.Context, basketID, itemID string, quantity int) (*basket.Receipt, error) {
	out, err := l.handler.ChangeQuantity(ctx, basket.NewChangeQuantity(basketID, itemID, quantity, uuid.NewString()))
	if err != nil {
		return nil, err
	}
	return basket.NewReceipt(out), nil
}

func (l *localClient) Clear(ctx context.Context, basketID string) (*basket.Receipt, error) {
	out, err := l.handler.ClearBasket(ctx, basket.NewClearBasket(basketID, uuid.NewString()))
	if err != nil {
		return nil, err
	}
	return basket.NewReceipt(out), nil
}

var _ basket.Client = &localClient{}
