package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error well enough for a caller to decide whether a
// retry can help and which HTTP status to answer with.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindValidationFailed
	KindDependencyFailure
	KindTimeout
	KindUnsupportedType
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindNotFound:
		return "NotFound"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindTimeout:
		return "Timeout"
	case KindUnsupportedType:
		return "UnsupportedType"
	default:
		return "InternalError"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for errors that did not
// originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the human-readable message of err, falling back to the
// plain error string.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
