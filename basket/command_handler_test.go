package basket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delicb/toy-basket/cqrs"
)

type handlerFixture struct {
	repo      Repository
	published []*cqrs.Event
	handler   *CommandHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{repo: NewInMemoryRepository()}
	pub := cqrs.PublisherFunc(func(ctx context.Context, ev *cqrs.Event) error {
		f.published = append(f.published, ev)
		return nil
	})
	f.handler = NewCommandHandler(f.repo, pub, cqrs.ExecutorOptions{})
	return f
}

func (f *handlerFixture) publishedData() []cqrs.DomainEvent {
	out := make([]cqrs.DomainEvent, len(f.published))
	for i, ev := range f.published {
		out[i] = ev.Data
	}
	return out
}

func (f *handlerFixture) load(t *testing.T, id string) (*Basket, bool) {
	t.Helper()
	b, found, err := f.repo.Load(context.Background(), id)
	require.NoError(t, err)
	return b, found
}

func TestAddItemCreatesBasket(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()

	out, err := f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 2, "corr"))
	require.NoError(t, err)
	require.Equal(t, "B", out.AggregateID)
	require.Equal(t, 1, out.Version)
	require.Equal(t, []cqrs.DomainEvent{
		Created{BasketID: "B"},
		ItemAdded{BasketID: "B", ItemID: "I", Quantity: 2},
	}, f.publishedData())
	for _, ev := range f.published {
		require.Equal(t, AggregateType, ev.AggregateType)
		require.Equal(t, "corr", ev.CorrelationID)
	}

	b, found := f.load(t, "B")
	require.True(t, found)
	require.Equal(t, []Line{{ItemID: "I", Quantity: 2}}, b.Items())
}

func TestHandlerScenario(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()

	_, err := f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 2, "c1"))
	require.NoError(t, err)

	out, err := f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 2, "c2"))
	require.NoError(t, err)
	require.Empty(t, out.Events)
	require.Equal(t, 1, out.Version)

	_, err = f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 4, "c3"))
	require.NoError(t, err)

	out, err = f.handler.ChangeQuantity(ctx, NewChangeQuantity("B", "I", 0, "c4"))
	require.NoError(t, err)
	require.Equal(t, 3, out.Version)

	require.Equal(t, []cqrs.DomainEvent{
		Created{BasketID: "B"},
		ItemAdded{BasketID: "B", ItemID: "I", Quantity: 2},
		ItemQuantityChanged{BasketID: "B", ItemID: "I", FromQuantity: 2, ToQuantity: 4},
		ItemRemoved{BasketID: "B", ItemID: "I"},
	}, f.publishedData())

	b, _ := f.load(t, "B")
	require.Empty(t, b.Items())
}

func TestCommandsRequiringBasketFailWhenAbsent(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()

	_, err := f.handler.ChangeQuantity(ctx, NewChangeQuantity("B", "I", 3, "c"))
	require.ErrorIs(t, err, cqrs.ErrAggregateNotFound)
	require.EqualError(t, err, "Aggregate not found with Id: B")

	_, err = f.handler.ClearBasket(ctx, NewClearBasket("B", "c"))
	require.ErrorIs(t, err, cqrs.ErrAggregateNotFound)

	_, found := f.load(t, "B")
	require.False(t, found)
	require.Empty(t, f.published)
}

func TestInvalidQuantityOnNewBasketLeavesNoTrace(t *testing.T) {
	f := newHandlerFixture()

	_, err := f.handler.AddItemToBasket(context.Background(), NewAddItemToBasket("B", "I", 0, "c"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, found := f.load(t, "B")
	require.False(t, found)
	require.Empty(t, f.published)
}

func TestChangeQuantityOfUnknownItem(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()
	_, err := f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 1, "c"))
	require.NoError(t, err)
	f.published = nil

	_, err = f.handler.ChangeQuantity(ctx, NewChangeQuantity("B", "X", 1, "c"))
	require.ErrorIs(t, err, ErrItemNotFound)
	require.Empty(t, f.published)
}

func TestClearBasketHandler(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()
	_, err := f.handler.AddItemToBasket(ctx, NewAddItemToBasket("B", "I", 1, "c"))
	require.NoError(t, err)
	f.published = nil

	out, err := f.handler.ClearBasket(ctx, NewClearBasket("B", "c"))
	require.NoError(t, err)
	require.Equal(t, []cqrs.DomainEvent{Cleared{BasketID: "B"}}, f.publishedData())
	require.Equal(t, 2, out.Version)

	out, err = f.handler.ClearBasket(ctx, NewClearBasket("B", "c"))
	require.NoError(t, err)
	require.Empty(t, out.Events)
	require.Len(t, f.published, 1)
}

func TestHandleCommandDispatches(t *testing.T) {
	f := newHandlerFixture()
	ctx := context.Background()

	_, err := f.handler.HandleCommand(ctx, NewAddItemToBasket("B", "I", 1, "c"))
	require.NoError(t, err)
	_, err = f.handler.HandleCommand(ctx, NewChangeQuantity("B", "I", 3, "c"))
	require.NoError(t, err)
	_, err = f.handler.HandleCommand(ctx, NewClearBasket("B", "c"))
	require.NoError(t, err)
	require.Len(t, f.published, 4)

	_, err = f.handler.HandleCommand(ctx, &cqrs.BaseCommand{CommandID: "basket.explode"})
	require.ErrorIs(t, err, cqrs.ErrUnknownCommand)
}

func TestMissingItemIDIsRejectedBeforeMutation(t *testing.T) {
	f := newHandlerFixture()
	_, err := f.handler.AddItemToBasket(context.Background(), NewAddItemToBasket("B", "", 1, "c"))
	require.ErrorIs(t, err, ErrMissingItemID)
	require.Equal(t, CodeInvalidCommand, Code(err))
	_, found := f.load(t, "B")
	require.False(t, found)
}

func TestPublishFailureIsReportedNotReturned(t *testing.T) {
	repo := NewInMemoryRepository()
	down := errors.New("down")
	h := NewCommandHandler(repo, cqrs.PublisherFunc(func(context.Context, *cqrs.Event) error { return down }), cqrs.ExecutorOptions{})

	out, err := h.AddItemToBasket(context.Background(), NewAddItemToBasket("B", "I", 1, "c"))
	require.NoError(t, err)
	require.ErrorIs(t, out.PublishErr, down)
	require.Equal(t, 0, out.Published)

	receipt := NewReceipt(out)
	require.Equal(t, 2, receipt.Events)
	require.NotEmpty(t, receipt.PublishError)

	_, found, err := repo.Load(context.Background(), "B")
	require.NoError(t, err)
	require.True(t, found)
}

func TestConcurrentUnitsOfWorkConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	b, _ := Create("B")
	require.NoError(t, repo.Save(ctx, b))

	first, _, _ := repo.Load(ctx, "B")
	second, _, _ := repo.Load(ctx, "B")
	require.NoError(t, first.AddItem("A", 1))
	require.NoError(t, second.AddItem("C", 1))

	require.NoError(t, repo.Save(ctx, first))
	require.ErrorIs(t, repo.Save(ctx, second), cqrs.ErrConcurrencyConflict)

	stored, _, _ := repo.Load(ctx, "B")
	require.Equal(t, []Line{{ItemID: "A", Quantity: 1}}, stored.Items())
}
