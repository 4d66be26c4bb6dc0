package cqrs

import (
	"fmt"
	"sort"
)

// Applier is per entity dispatch table from event type to the function mutating
// that entity. Handlers are registered once, while entity is constructed.
type Applier struct {
	handlers map[EventID]func(DomainEvent)
}

// NewApplier returns empty dispatch table.
func NewApplier() *Applier {
	return &Applier{handlers: make(map[EventID]func(DomainEvent))}
}

// Register associates handler with provided event type. Registering the same
// type twice is a programming error and panics.
func (a *Applier) Register(id EventID, fn func(DomainEvent)) {
	if _, ok := a.handlers[id]; ok {
		panic(fmt.Sprintf("handler for %v already registered", id))
	}
	a.handlers[id] = fn
}

// Handle registers typed handler for event type T. T must be a value type,
// its zero value is used to obtain the event ID.
func Handle[T DomainEvent](a *Applier, fn func(T)) {
	var zero T
	a.Register(zero.EventID(), func(ev DomainEvent) { fn(ev.(T)) })
}

// Apply invokes handler registered for provided event. Panics with
// *UnregisteredEventError if there is none.
func (a *Applier) Apply(ev DomainEvent) {
	fn, ok := a.handlers[ev.EventID()]
	if !ok {
		panic(&UnregisteredEventError{EventID: ev.EventID()})
	}
	fn(ev)
}

// Handles reports whether handler for provided event type is registered.
func (a *Applier) Handles(id EventID) bool {
	_, ok := a.handlers[id]
	return ok
}

// Registered returns sorted list of event types this applier knows about.
func (a *Applier) Registered() []EventID {
	ids := make([]EventID, 0, len(a.handlers))
	for id := range a.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
