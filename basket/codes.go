package basket

import (
	"errors"

	"github.com/delicb/toy-basket/cqrs"
)

// ErrorCode is stable, transport independent name of a failure.
type ErrorCode string

const (
	CodeAggregateNotFound   ErrorCode = "AGGREGATE_NOT_FOUND"
	CodeInvalidQuantity     ErrorCode = "INVALID_QUANTITY"
	CodeItemNotFound        ErrorCode = "ITEM_NOT_FOUND"
	CodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	CodeInvalidCommand      ErrorCode = "INVALID_COMMAND"
	CodeInternal            ErrorCode = "INTERNAL"
)

var codeSentinels = map[ErrorCode]error{
	CodeAggregateNotFound:   cqrs.ErrAggregateNotFound,
	CodeInvalidQuantity:     ErrInvalidQuantity,
	CodeItemNotFound:        ErrItemNotFound,
	CodeConcurrencyConflict: cqrs.ErrConcurrencyConflict,
	CodeInvalidCommand:      ErrInvalidCommand,
}

// Code returns error code for provided error.
func Code(err error) ErrorCode {
	switch {
	case errors.Is(err, cqrs.ErrAggregateNotFound):
		return CodeAggregateNotFound
	case errors.Is(err, ErrInvalidQuantity):
		return CodeInvalidQuantity
	case errors.Is(err, ErrItemNotFound):
		return CodeItemNotFound
	case errors.Is(err, cqrs.ErrConcurrencyConflict):
		return CodeConcurrencyConflict
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, cqrs.ErrUnknownCommand):
		return CodeInvalidCommand
	default:
		return CodeInternal
	}
}

// ErrorReply is how errors travel between services.
type ErrorReply struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewErrorReply returns reply describing provided error.
func NewErrorReply(err error) ErrorReply {
	return ErrorReply{Code: Code(err), Message: err.Error()}
}

// Err turns reply back into error, which matches the same sentinel errors
// (errors.Is) as the original one did.
func (r ErrorReply) Err() error {
	return &replyError{r}
}

type replyError struct {
	reply ErrorReply
}

func (e *replyError) Error() string { return e.reply.Message }

func (e *replyError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.reply.Code]
	return ok && sentinel == target
}
