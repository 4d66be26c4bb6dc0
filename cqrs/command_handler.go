package cqrs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/delicb/toy-basket/retry"
)

// CommandHandler can process and execute a command.
type CommandHandler interface {
	// HandleCommand processes provided command or dies (returns error) trying.
	// Failure to publish events after the state is saved is not an error, it is
	// reported in the returned Outcome.
	HandleCommand(ctx context.Context, cmd Command) (*Outcome, error)
}

// Factory creates new aggregate root with provided ID. Created root is expected
// to have its creation event already applied.
type Factory[A AggregateRoot] func(id string) (A, error)

// Outcome describes what happened while executing successful command.
type Outcome struct {
	AggregateID string
	Version     int
	// Events are envelopes of all changes collected from the aggregate, in order.
	Events []*Event
	// Published is number of events from the beginning of Events that were delivered.
	Published int
	// PublishErr is set if delivery of Events[Published] failed. State is saved regardless.
	PublishErr error
}

// Undelivered returns events that were not published.
func (o *Outcome) Undelivered() []*Event {
	return o.Events[o.Published:]
}

// DefaultPublishTimeout bounds publishing of all events of one command when
// ExecutorOptions.PublishTimeout is not set.
const DefaultPublishTimeout = 5 * time.Second

// ExecutorOptions tweak behaviour of Executor. Zero value is usable.
type ExecutorOptions struct {
	Logger *zap.Logger
	// ConflictRetry reruns whole load, mutate, save cycle when save fails with
	// ErrConcurrencyConflict. Other errors are never retried.
	ConflictRetry retry.Policy
	// PublishRetry is applied to each event separately.
	PublishRetry retry.Policy
	// PublishTimeout bounds publishing of all events of one command, retries included.
	PublishTimeout time.Duration
}

// Executor runs single unit of work for aggregate type A: load or create,
// mutate, save and only after successful save publish collected events.
type Executor[A AggregateRoot] struct {
	repo          Repository[A]
	publisher     Publisher
	logger        *zap.Logger
	conflictRetry  retry.Policy
	publishRetry   retry.Policy
	publishTimeout time.Duration
}

// NewExecutor returns Executor storing aggregates to repo and publishing to publisher.
func NewExecutor[A AggregateRoot](repo Repository[A], publisher Publisher, opts ExecutorOptions) *Executor[A] {
	if publisher == nil {
		publisher = PublisherFunc(func(context.Context, *Event) error { return nil })
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publishTimeout := opts.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Executor[A]{
		repo:           repo,
		publisher:      publisher,
		logger:         logger,
		conflictRetry:  opts.ConflictRetry.If(func(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }),
		publishRetry:   opts.PublishRetry,
		publishTimeout: publishTimeout,
	}
}

// Execute runs mutate against aggregate identified by the command. If aggregate
// does not exist it is created with create, or ErrAggregateNotFound is returned
// when create is nil. Returned error means nothing was saved and nothing was published.
func (x *Executor[A]) Execute(ctx context.Context, cmd Command, create Factory[A], mutate func(A) error) (*Outcome, error) {
	log := x.logger.With(
		zap.String("command_id", string(cmd.GetCommandID())),
		zap.String("aggregate_id", cmd.GetAggregateID()),
		zap.String("correlation_id", cmd.GetCorrelationID()),
	)

	var (
		root      A
		committed bool
	)
	err := retry.Do(ctx, x.conflictRetry, func(ctx context.Context) error {
		var err error
		root, committed, err = x.attempt(ctx, cmd, create, mutate)
		if errors.Is(err, ErrConcurrencyConflict) {
			log.Warn("concurrency conflict while saving aggregate", zap.Error(err))
		}
		return err
	})
	if err != nil {
		log.Debug("command failed", zap.Error(err))
		return nil, err
	}

	outcome := &Outcome{AggregateID: root.GetID(), Version: root.GetVersion()}
	if !committed {
		log.Debug("command produced no changes")
		return outcome, nil
	}

	for _, data := range root.CollectChanges() {
		outcome.Events = append(outcome.Events, NewEvent(data, cmd))
	}
	log.Debug("aggregate saved", zap.Int("version", outcome.Version), zap.Int("events", len(outcome.Events)))

	// state is committed, caller going away must not stop notifications,
	// but a stuck broker must not block forever either
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.publishTimeout)
	defer cancel()
	x.publish(pubCtx, outcome, log)
	return outcome, nil
}

func (x *Executor[A]) attempt(ctx context.Context, cmd Command, create Factory[A], mutate func(A) error) (A, bool, error) {
	id := cmd.GetAggregateID()
	root, found, err := x.repo.Load(ctx, id)
	if err != nil {
		return root, false, err
	}
	if !found {
		if create == nil {
			return root, false, AggregateNotFoundErr(cmd.GetAggregateType(), id)
		}
		if root, err = create(id); err != nil {
			return root, false, err
		}
	}

	if err := cmd.Validate(root); err != nil {
		return root, false, err
	}
	if err := mutate(root); err != nil {
		return root, false, err
	}

	if found && !root.HasChanges() {
		return root, false, nil
	}
	if err := ctx.Err(); err != nil {
		return root, false, err
	}
	if err := x.repo.Save(ctx, root); err != nil {
		return root, false, err
	}
	return root, true, nil
}

// publish delivers events in order and stops at first event that could not be
// delivered, so subscribers never see an event without the ones before it.
func (x *Executor[A]) publish(ctx context.Context, outcome *Outcome, log *zap.Logger) {
	for _, ev := range outcome.Events {
		err := retry.Do(ctx, x.publishRetry, func(ctx context.Context) error {
			return x.publisher.Publish(ctx, ev)
		})
		if err != nil {
			if !errors.Is(err, ErrDelivery) {
				err = DeliveryErr(ev, err)
			}
			outcome.PublishErr = err
			log.Error("publishing event failed",
				zap.String("event_id", string(ev.EventID)),
				zap.Int("undelivered", len(outcome.Undelivered())),
				zap.Error(err),
			)
			return
		}
		outcome.Published++
	}
}
