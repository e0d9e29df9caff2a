package ledger

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	NotFound ErrorKind = iota + 1
	InvalidInput
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidInput:
		return "InvalidInput"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the result of a failed ledger operation. A failed operation never
// leaves partial state behind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

var (
	ErrNotFound     = &Error{Kind: NotFound}
	ErrInvalidInput = &Error{Kind: InvalidInput}
	ErrInternal     = &Error{Kind: InternalError}
)

func notFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: InvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func internalErr(err error, format string, args ...any) error {
	return &Error{Kind: InternalError, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of a ledger error, or 0 for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
