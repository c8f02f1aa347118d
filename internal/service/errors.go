package service

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for the transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidInput
	KindStorageFailure
	KindExtractionFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	case KindStorageFailure:
		return "storage_failure"
	case KindExtractionFailure:
		return "extraction_failure"
	default:
		return "internal"
	}
}

// Error is an engine error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrBillNotFound   = &Error{Kind: KindNotFound, Message: "Bill not found"}
	ErrItemNotFound   = &Error{Kind: KindNotFound, Message: "Item not found"}
	ErrBillLocked     = &Error{Kind: KindForbidden, Message: "Bill is locked"}
	ErrBillClosed     = &Error{Kind: KindForbidden, Message: "Bill is closed"}
	ErrEmptyName      = &Error{Kind: KindInvalidInput, Message: "Name cannot be empty"}
	ErrDuplicateName  = &Error{Kind: KindInvalidInput, Message: "Name already exists in this bill"}
	ErrNotParticipant = &Error{Kind: KindInvalidInput, Message: "Person is not part of this bill"}
	ErrNegativeAmount = &Error{Kind: KindInvalidInput, Message: "Amounts cannot be negative"}
	ErrEmptyImage     = &Error{Kind: KindInvalidInput, Message: "Image is empty"}
)

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func storageFailure(err error) error {
	return &Error{Kind: KindStorageFailure, Message: "Failed to save bill", Err: err}
}

func extractionFailure(engine string, err error) error {
	return &Error{Kind: KindExtractionFailure, Message: fmt.Sprintf("Error processing image with %s", engine), Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindExtractionFailure && e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return "Internal server error"
}
