package cqrs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/delicb/toy-basket/retry"
)

type recordingPublisher struct {
	events []*Event
	failAt int
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev *Event) error {
	if p.err != nil && len(p.events) == p.failAt {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) data() []DomainEvent {
	out := make([]DomainEvent, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Data
	}
	return out
}

type failingSaveRepo struct {
	Repository[*ledger]
	err   error
	fails int
	saves int
}

func (r *failingSaveRepo) Save(ctx context.Context, l *ledger) error {
	r.saves++
	if r.fails > 0 {
		r.fails--
		return r.err
	}
	return r.Repository.Save(ctx, l)
}

func ledgerCmd(id string) Command {
	return &BaseCommand{CommandID: "ledger.test", AggregateID: id, AggregateType: "ledger", CorrelationID: "corr-" + id}
}

func TestExecuteCreatesAndPublishesAfterSave(t *testing.T) {
	repo := newLedgerRepo()
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	out, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(l *ledger) error {
		l.addLine("a")
		l.bump("a", 2)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, out.PublishErr)
	require.Equal(t, "l1", out.AggregateID)
	require.Equal(t, 1, out.Version)
	require.Equal(t, 3, out.Published)
	require.Empty(t, out.Undelivered())
	require.Equal(t, []DomainEvent{
		opened{LedgerID: "l1"},
		lineAdded{LedgerID: "l1", LineID: "a"},
		lineBumped{LedgerID: "l1", LineID: "a", To: 2},
	}, pub.data())
	for _, ev := range pub.events {
		require.Equal(t, "corr-l1", ev.CorrelationID)
		require.Equal(t, "ledger", ev.AggregateType)
	}

	stored, found, err := repo.Load(context.Background(), "l1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, map[string]int{"a": 2}, snapshotLedger(stored).Lines)
}

func TestExecuteRequiresExistingAggregate(t *testing.T) {
	repo := newLedgerRepo()
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	out, err := x.Execute(context.Background(), ledgerCmd("missing"), nil, func(l *ledger) error {
		t.Fatal("mutate must not be called")
		return nil
	})
	require.Nil(t, out)
	require.ErrorIs(t, err, ErrAggregateNotFound)
	require.EqualError(t, err, "Aggregate not found with Id: missing")
	require.Empty(t, pub.events)
	require.Equal(t, 0, repo.Len())
}

func TestExecuteDomainErrorLeavesNoTrace(t *testing.T) {
	repo := newLedgerRepo()
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})
	rejected := errors.New("rejected")

	_, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(l *ledger) error {
		return rejected
	})
	require.ErrorIs(t, err, rejected)
	require.Equal(t, 0, repo.Len())
	require.Empty(t, pub.events)
}

func TestExecuteDoesNotPublishWhenSaveFails(t *testing.T) {
	boom := StorageErr("save", errors.New("disk full"))
	repo := &failingSaveRepo{Repository: newLedgerRepo(), err: boom, fails: 1}
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	_, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(l *ledger) error {
		l.note("x")
		return nil
	})
	require.ErrorIs(t, err, ErrStorage)
	require.Empty(t, pub.events)
}

func TestExecutePublishFailureDoesNotFailCommand(t *testing.T) {
	repo := newLedgerRepo()
	down := errors.New("broker down")
	pub := &recordingPublisher{failAt: 1, err: down}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	out, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(l *ledger) error {
		l.note("x")
		l.note("y")
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, out.PublishErr, ErrDelivery)
	require.ErrorIs(t, out.PublishErr, down)
	require.Equal(t, 1, out.Published)
	require.Len(t, out.Undelivered(), 2)
	require.Equal(t, []DomainEvent{opened{LedgerID: "l1"}}, pub.data())

	_, found, _ := repo.Load(context.Background(), "l1")
	require.True(t, found)
}

func TestExecuteRetriesPublish(t *testing.T) {
	repo := newLedgerRepo()
	attempts := 0
	pub := PublisherFunc(func(ctx context.Context, ev *Event) error {
		attempts++
		if attempts == 1 {
			return errors.New("flaky")
		}
		return nil
	})
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{
		PublishRetry: retry.Policy{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond},
	})

	out, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(*ledger) error { return nil })
	require.NoError(t, err)
	require.NoError(t, out.PublishErr)
	require.Equal(t, 1, out.Published)
	require.Equal(t, 2, attempts)
}

func TestExecuteSurfacesConcurrencyConflict(t *testing.T) {
	conflict := ConcurrencyConflictErr("l1", 1)
	inner := newLedgerRepo()
	l, _ := openLedger("l1")
	require.NoError(t, inner.Save(context.Background(), l))

	repo := &failingSaveRepo{Repository: inner, err: conflict, fails: 1}
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	_, err := x.Execute(context.Background(), ledgerCmd("l1"), nil, func(l *ledger) error {
		l.note("x")
		return nil
	})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.Empty(t, pub.events)
	require.Equal(t, 1, repo.saves)
}

func TestExecuteRetriesWholeUnitOfWorkOnConflict(t *testing.T) {
	inner := newLedgerRepo()
	l, _ := openLedger("l1")
	require.NoError(t, inner.Save(context.Background(), l))

	repo := &failingSaveRepo{Repository: inner, err: ConcurrencyConflictErr("l1", 1), fails: 1}
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{
		ConflictRetry: retry.Policy{Enabled: true, MaxAttempts: 2, InitialDelay: time.Millisecond},
	})

	mutations := 0
	out, err := x.Execute(context.Background(), ledgerCmd("l1"), nil, func(l *ledger) error {
		mutations++
		l.note("x")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, mutations)
	require.Equal(t, 2, repo.saves)
	require.Equal(t, []DomainEvent{noted{LedgerID: "l1", Text: "x"}}, pub.data())
	require.Equal(t, 2, out.Version)
}

func TestExecuteConflictRetryIgnoresOtherErrors(t *testing.T) {
	repo := &failingSaveRepo{Repository: newLedgerRepo(), err: errors.New("other"), fails: 5}
	x := NewExecutor[*ledger](repo, nil, ExecutorOptions{
		ConflictRetry: retry.Policy{Enabled: true, MaxAttempts: 5, InitialDelay: time.Millisecond},
	})
	_, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(*ledger) error { return nil })
	require.EqualError(t, err, "other")
	require.Equal(t, 1, repo.saves)
}

func TestExecuteCancelledBeforeSave(t *testing.T) {
	repo := newLedgerRepo()
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := x.Execute(ctx, ledgerCmd("l1"), openLedger, func(l *ledger) error {
		cancel()
		l.note("x")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, repo.Len())
	require.Empty(t, pub.events)
}

func TestExecutePublishesEvenIfCancelledAfterSave(t *testing.T) {
	repo := newLedgerRepo()
	ctx, cancel := context.WithCancel(context.Background())
	var delivered []DomainEvent
	pub := PublisherFunc(func(pctx context.Context, ev *Event) error {
		cancel()
		require.NoError(t, pctx.Err())
		delivered = append(delivered, ev.Data)
		return nil
	})
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	out, err := x.Execute(ctx, ledgerCmd("l1"), openLedger, func(l *ledger) error {
		l.note("x")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Published)
	require.Len(t, delivered, 2)
}

func TestExecuteWithoutChangesSkipsSave(t *testing.T) {
	inner := newLedgerRepo()
	l, _ := openLedger("l1")
	require.NoError(t, inner.Save(context.Background(), l))
	repo := &failingSaveRepo{Repository: inner}
	pub := &recordingPublisher{}
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{})

	out, err := x.Execute(context.Background(), ledgerCmd("l1"), nil, func(*ledger) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0, repo.saves)
	require.Empty(t, out.Events)
	require.Equal(t, 1, out.Version)
	require.Empty(t, pub.events)
}

func TestExecutePublishContextHasDeadline(t *testing.T) {
	repo := newLedgerRepo()
	ctx, cancel := context.WithCancel(context.Background())
	var deadlines []time.Time
	pub := PublisherFunc(func(pctx context.Context, ev *Event) error {
		cancel()
		deadline, ok := pctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, deadline)
		return nil
	})
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{PublishTimeout: time.Minute})

	started := time.Now()
	out, err := x.Execute(ctx, ledgerCmd("l1"), openLedger, func(l *ledger) error {
		l.note("x")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Published)
	require.Len(t, deadlines, 2)
	for _, d := range deadlines {
		require.WithinDuration(t, started.Add(time.Minute), d, 10*time.Second)
	}
}

func TestExecutePublishTimeoutStopsPublishing(t *testing.T) {
	repo := newLedgerRepo()
	pub := PublisherFunc(func(pctx context.Context, ev *Event) error {
		<-pctx.Done()
		return pctx.Err()
	})
	x := NewExecutor[*ledger](repo, pub, ExecutorOptions{
		PublishTimeout: 20 * time.Millisecond,
		PublishRetry:   retry.Policy{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond},
	})

	out, err := x.Execute(context.Background(), ledgerCmd("l1"), openLedger, func(*ledger) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, out.Version)
	require.Equal(t, 0, out.Published)
	require.ErrorIs(t, out.PublishErr, ErrDelivery)
	require.ErrorIs(t, out.PublishErr, context.DeadlineExceeded)
	require.Len(t, out.Undelivered(), 1)
}
