package cqrs

import (
	"sort"
)

// Entity is the smallest unit of state that can absorb events. Its fields
// change only inside handlers registered on its Applier.
type Entity interface {
	GetID() string
	Apply(ev DomainEvent)
	Changes() []DomainEvent
	Drain() []DomainEvent
}

// Tracked is anything an aggregate root can collect changes from.
type Tracked interface {
	HasChanges() bool
	DrainChanges() []Change
}

// AggregateRoot is the entity that is the unit of persistence and concurrency.
// It owns its children and exposes changes of the whole graph.
type AggregateRoot interface {
	// GetID returns identity of the aggregate.
	GetID() string

	// GetVersion returns version aggregate was loaded with (0 if never saved).
	GetVersion() int

	// SetVersion is called by repositories after load and after successful save.
	SetVersion(v int)

	// HasChanges reports whether root or any of the children has uncollected changes.
	HasChanges() bool

	// CollectChanges drains changes of the root and all of its children,
	// ordered as they were applied.
	CollectChanges() []DomainEvent
}

// Base is partial Entity implementation, intended to be embedded.
type Base struct {
	*ChangeTracker
}

// NewBase returns Base recording into provided clock. Children should get
// clock of their root.
func NewBase(clock *Clock) Base {
	return Base{ChangeTracker: NewChangeTracker(clock)}
}

// Root is partial AggregateRoot implementation, intended to be embedded.
// Implementation still needs to provide GetID, HasChanges and CollectChanges,
// latter two usually by calling Dirty and Collect with current children.
type Root struct {
	Base
	clock   *Clock
	version int
	retired []Change
}

// NewRoot returns Root with fresh clock.
func NewRoot() Root {
	clock := &Clock{}
	return Root{
		Base:  NewBase(clock),
		clock: clock,
	}
}

// Clock returns clock children of this root should record into.
func (r *Root) Clock() *Clock { return r.clock }

func (r *Root) GetVersion() int  { return r.version }
func (r *Root) SetVersion(v int) { r.version = v }

// Retire takes over changes of a child that is about to be detached, so they
// are not lost when the child is no longer reachable from the root.
func (r *Root) Retire(child Tracked) {
	r.retired = append(r.retired, child.DrainChanges()...)
}

// Dirty reports whether root, retired children or any of provided children
// has pending changes.
func (r *Root) Dirty(children ...Tracked) bool {
	if r.ChangeTracker.HasChanges() || len(r.retired) > 0 {
		return true
	}
	for _, c := range children {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// Collect drains root, retired children and provided children, and returns
// all events in the order they were applied.
func (r *Root) Collect(children ...Tracked) []DomainEvent {
	all := r.DrainChanges()
	all = append(all, r.retired...)
	r.retired = nil
	for _, c := range children {
		all = append(all, c.DrainChanges()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return events(all)
}
