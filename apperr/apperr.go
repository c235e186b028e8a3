// Package apperr defines the error taxonomy shared by the placement, level,
// reward and ledger engines.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "internal"
	}
}

const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeSlotTaken          = "SLOT_TAKEN"
	CodeSponsorFull        = "SPONSOR_FULL"
	CodeSponsorNotApproved = "SPONSOR_NOT_APPROVED"
	CodeAlreadyProcessed   = "ALREADY_PROCESSED"
	CodeDuplicateClaim     = "DUPLICATE_CLAIM"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInvalidState       = "INVALID_STATE"
	CodeInternal           = "INTERNAL"
)

// Error is the concrete error returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func AlreadyProcessed(entity string, id any) *Error {
	return Conflict(CodeAlreadyProcessed, "%s %v already processed", entity, id)
}

func InsufficientFunds(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientFunds, Code: CodeInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(entity string, id any, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("%s %v cannot move from %s to %s", entity, id, from, to),
	}
}

// Internal wraps a storage or atomicity failure. Callers may retry.
func Internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// KindOf reports the taxonomy kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the stable code of err, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}
