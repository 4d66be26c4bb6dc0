package cqrs

import (
	"context"
	"sync"
)

// Repository loads and stores field state of aggregate roots.
type Repository[A AggregateRoot] interface {
	// Load returns aggregate root with provided id. Second return value is false
	// if there is no such aggregate, which is not an error.
	Load(ctx context.Context, id string) (A, bool, error)

	// Save persists state of provided root. Implementations must return error
	// wrapping ErrConcurrencyConflict if stored version is not the version root
	// was loaded with, and must advance root's version on success.
	Save(ctx context.Context, root A) error
}

type memoryEntry[S any] struct {
	state   S
	version int
}

// inMemoryRepository keeps snapshots of aggregates in memory. Snapshots must
// not share mutable memory with the aggregate they were taken from.
type inMemoryRepository[A AggregateRoot, S any] struct {
	mu       sync.RWMutex
	state    map[string]memoryEntry[S]
	snapshot func(A) S
	restore  func(S) A
}

// NewInMemoryRepository returns Repository that keeps aggregates in memory,
// using snapshot and restore to translate between aggregate and stored state.
func NewInMemoryRepository[A AggregateRoot, S any](snapshot func(A) S, restore func(S) A) *inMemoryRepository[A, S] {
	return &inMemoryRepository[A, S]{
		state:    make(map[string]memoryEntry[S]),
		snapshot: snapshot,
		restore:  restore,
	}
}

func (r *inMemoryRepository[A, S]) Load(ctx context.Context, id string) (A, bool, error) {
	var zero A
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	r.mu.RLock()
	entry, ok := r.state[id]
	r.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	root := r.restore(entry.state)
	root.SetVersion(entry.version)
	return root, true, nil
}

func (r *inMemoryRepository[A, S]) Save(ctx context.Context, root A) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := root.GetID()
	current, exists := r.state[id]
	if exists && current.version != root.GetVersion() || !exists && root.GetVersion() != 0 {
		return ConcurrencyConflictErr(id, root.GetVersion())
	}
	next := root.GetVersion() + 1
	r.state[id] = memoryEntry[S]{state: r.snapshot(root), version: next}
	root.SetVersion(next)
	return nil
}

// Len returns number of stored aggregates.
func (r *inMemoryRepository[A, S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state)
}

var _ Repository[AggregateRoot] = &inMemoryRepository[AggregateRoot, struct{}]{}
