package cqrs

// Clock hands out increasing sequence numbers. A root and all of its children
// share one, so their changes can be merged back in the order they happened.
// Not safe for concurrent use, neither is anything mutating an aggregate.
type Clock struct {
	seq uint64
}

func (c *Clock) next() uint64 {
	c.seq++
	return c.seq
}

// Change is recorded event together with its position in the aggregate.
type Change struct {
	Seq   uint64
	Event DomainEvent
}

// ChangeTracker applies events through an Applier and remembers every applied
// event until drained.
type ChangeTracker struct {
	applier *Applier
	clock   *Clock
	changes []Change
}

// NewChangeTracker returns tracker with empty dispatch table. If clock is nil,
// tracker gets its own.
func NewChangeTracker(clock *Clock) *ChangeTracker {
	if clock == nil {
		clock = &Clock{}
	}
	return &ChangeTracker{
		applier: NewApplier(),
		clock:   clock,
	}
}

// Applier returns dispatch table, used for handler registration.
func (t *ChangeTracker) Applier() *Applier { return t.applier }

// Apply mutates state by invoking registered handler and records the event.
func (t *ChangeTracker) Apply(ev DomainEvent) {
	t.applier.Apply(ev)
	t.changes = append(t.changes, Change{Seq: t.clock.next(), Event: ev})
}

// Replay mutates state of the tracked entity without recording the event.
// It is meant only for reconstituting entities from persisted state; live
// changes go through Apply so they can be published.
func Replay(t *ChangeTracker, ev DomainEvent) {
	t.applier.Apply(ev)
}

// Changes returns recorded events without clearing them.
func (t *ChangeTracker) Changes() []DomainEvent {
	return events(t.changes)
}

// HasChanges reports whether there is anything recorded.
func (t *ChangeTracker) HasChanges() bool { return len(t.changes) > 0 }

// Drain returns recorded events and forgets them.
func (t *ChangeTracker) Drain() []DomainEvent {
	return events(t.DrainChanges())
}

// DrainChanges is Drain that keeps sequence numbers.
func (t *ChangeTracker) DrainChanges() []Change {
	changes := t.changes
	t.changes = nil
	return changes
}

func events(changes []Change) []DomainEvent {
	out := make([]DomainEvent, len(changes))
	for i, c := range changes {
		out[i] = c.Event
	}
	return out
}
