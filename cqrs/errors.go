package cqrs

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound is returned when command requires existing aggregate and there is none.
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrConcurrencyConflict is returned by repositories when aggregate was changed
	// by someone else between load and save.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrStorage wraps failures of the underlying storage.
	ErrStorage = errors.New("storage error")
	// ErrDelivery wraps failures to deliver an event to a subscriber or a broker.
	ErrDelivery = errors.New("event delivery failed")
	// ErrUnknownCommand is returned when no handler or ctor exists for a command.
	ErrUnknownCommand = errors.New("unknown command")
)

type aggregateNotFoundError struct {
	AggregateType string
	AggregateID   string
}

func (e *aggregateNotFoundError) Error() string {
	return fmt.Sprintf("Aggregate not found with Id: %v", e.AggregateID)
}

func (e *aggregateNotFoundError) Unwrap() error { return ErrAggregateNotFound }

// AggregateNotFoundErr returns error indicating that aggregate of given type and ID does not exist.
func AggregateNotFoundErr(typ, id string) error {
	return &aggregateNotFoundError{AggregateType: typ, AggregateID: id}
}

type concurrencyConflictError struct {
	AggregateID     string
	ExpectedVersion int
}

func (e *concurrencyConflictError) Error() string {
	return fmt.Sprintf("aggregate %v was modified concurrently (expected version %d)", e.AggregateID, e.ExpectedVersion)
}

func (e *concurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// ConcurrencyConflictErr returns error indicating that stored version of the aggregate
// is not the one the aggregate was loaded with.
func ConcurrencyConflictErr(id string, expectedVersion int) error {
	return &concurrencyConflictError{AggregateID: id, ExpectedVersion: expectedVersion}
}

type storageError struct {
	Op  string
	Err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("storage %v: %v", e.Op, e.Err)
}

func (e *storageError) Is(target error) bool { return target == ErrStorage }
func (e *storageError) Unwrap() error        { return e.Err }

// StorageErr wraps backend error for provided operation.
func StorageErr(op string, err error) error {
	return &storageError{Op: op, Err: err}
}

type deliveryError struct {
	EventID     EventID
	AggregateID string
	Err         error
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("delivering %v for %v: %v", e.EventID, e.AggregateID, e.Err)
}

func (e *deliveryError) Is(target error) bool { return target == ErrDelivery }
func (e *deliveryError) Unwrap() error        { return e.Err }

// DeliveryErr wraps error returned while publishing provided event.
func DeliveryErr(ev *Event, err error) error {
	return &deliveryError{EventID: ev.EventID, AggregateID: ev.AggregateID, Err: err}
}

type unknownCommandError struct {
	CommandID CommandID
}

func (e *unknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %v", e.CommandID)
}

func (e *unknownCommandError) Unwrap() error { return ErrUnknownCommand }

// UnknownCommandErr returns error for a command nobody knows how to handle.
func UnknownCommandErr(cmd CommandID) error {
	return &unknownCommandError{cmd}
}

// UnregisteredEventError is the panic value used when an entity applies an event
// it has no handler for. It is a defect in domain code and is never returned as error.
type UnregisteredEventError struct {
	EventID EventID
}

func (e *UnregisteredEventError) Error() string {
	return fmt.Sprintf("no handler registered for event %v", e.EventID)
}
