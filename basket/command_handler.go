package basket

import (
	"context"

	"github.com/delicb/toy-basket/cqrs"
)

// Repository stores baskets.
type Repository = cqrs.Repository[*Basket]

// NewInMemoryRepository returns Repository keeping basket snapshots in memory.
func NewInMemoryRepository() Repository {
	return cqrs.NewInMemoryRepository((*Basket).Snapshot, Rebuild)
}

// CommandHandler executes basket commands, each as a single unit of work.
type CommandHandler struct {
	executor *cqrs.Executor[*Basket]
}

// NewCommandHandler returns handler saving baskets to repo and publishing their
// events to publisher once they are saved.
func NewCommandHandler(repo Repository, publisher cqrs.Publisher, opts cqrs.ExecutorOptions) *CommandHandler {
	return &CommandHandler{
		executor: cqrs.NewExecutor[*Basket](repo, publisher, opts),
	}
}

// AddItemToBasket adds item to basket, creating the basket first if needed.
func (h *CommandHandler) AddItemToBasket(ctx context.Context, cmd *AddItemToBasket) (*cqrs.Outcome, error) {
	return h.executor.Execute(ctx, cmd, Create, func(b *Basket) error {
		return b.AddItem(cmd.ItemID, cmd.Quantity)
	})
}

// ChangeQuantity changes quantity of an item in existing basket.
func (h *CommandHandler) ChangeQuantity(ctx context.Context, cmd *ChangeQuantity) (*cqrs.Outcome, error) {
	return h.executor.Execute(ctx, cmd, nil, func(b *Basket) error {
		return b.ChangeItemQuantity(cmd.ItemID, cmd.Quantity)
	})
}

// ClearBasket removes all items from existing basket.
func (h *CommandHandler) ClearBasket(ctx context.Context, cmd *ClearBasket) (*cqrs.Outcome, error) {
	return h.executor.Execute(ctx, cmd, nil, func(b *Basket) error {
		b.Clear()
		return nil
	})
}

func (h *CommandHandler) HandleCommand(ctx context.Context, cmd cqrs.Command) (*cqrs.Outcome, error) {
	switch c := cmd.(type) {
	case *AddItemToBasket:
		return h.AddItemToBasket(ctx, c)
	case *ChangeQuantity:
		return h.ChangeQuantity(ctx, c)
	case *ClearBasket:
		return h.ClearBasket(ctx, c)
	default:
		return nil, cqrs.UnknownCommandErr(cmd.GetCommandID())
	}
}

var _ cqrs.CommandHandler = &CommandHandler{}
