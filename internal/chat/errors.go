package chat

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal         Kind = "internal"
	KindNotAuthenticated Kind = "not_authenticated"
	KindUnknownUser      Kind = "unknown_user"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindInvalidArgument  Kind = "invalid_argument"
)

// Error is a classified failure returned by Service operations. Two errors
// match with errors.Is when their kinds are equal.
type Error struct {
	Kind    Kind
	Message string
}

var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrUnknownUser      = &Error{Kind: KindUnknownUser, Message: "user not found"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether repeating the failed operation can succeed.
// Only internal failures such as store errors qualify.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}
