package services

import (
	"errors"
	"fmt"

	"github.com/example/eventhub/internal/models"
)

// Error kinds surfaced by the ticketing core. Match them with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrDiscountInvalid        = errors.New("discount invalid")
	ErrDeadlinePassed         = errors.New("deadline passed")
	ErrForbidden              = errors.New("forbidden")
	ErrValidation             = errors.New("validation failed")
	ErrEventUnavailable       = errors.New("event unavailable")
)

// Error is a business-rule violation with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StateTransitionError reports an action attempted from the wrong state.
type StateTransitionError struct {
	Current models.PaymentStatus
	Action  Action
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a transaction with status %q", e.Action.verb(), e.Current)
}

func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
