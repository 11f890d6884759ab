// Package apperr classifies the errors the synchronizers surface to callers.
//
// Validation errors are raised before any gateway call. Transport errors come
// back from the gateway and trigger rollback. Refresh errors happen after a
// primary mutation already succeeded and never undo anything.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindTransport
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// DefaultMessage is shown when neither the server nor the error carries a usable message.
const DefaultMessage = "something went wrong, please try again"

// Error is a classified failure of one operation.
type Error struct {
	Kind Kind
	Op   string
	// Message is the server-provided message, if any.
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Transport(op, message string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Message: message, Err: err}
}

// Refresh marks err as a secondary failure of a follow-up read.
func Refresh(op string, err error) error {
	return &Error{Kind: KindRefresh, Op: op, Message: serverMessage(err), Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors are treated as transport failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// Message returns the text to show a user: the server-provided message when
// there is one, the domain error text for validation failures, otherwise fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if msg := serverMessage(err); msg != "" {
		return msg
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation && e.Err != nil {
		return e.Err.Error()
	}
	if fallback == "" {
		return DefaultMessage
	}
	return fallback
}

func serverMessage(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Message != "" {
			return e.Message
		}
		err = errors.Unwrap(err)
	}
	return ""
}
