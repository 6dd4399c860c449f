// Package reject carries expected, user-facing validation failures.
package reject

import (
	"errors"
	"fmt"
)

// Error is a validation failure with a human-readable reason.
type Error struct {
	Reason string
}

func (e Error) Error() string { return e.Reason }

func New(reason string) error {
	return Error{Reason: reason}
}

func Newf(format string, args ...any) error {
	return Error{Reason: fmt.Sprintf(format, args...)}
}

// Is reports whether err is, or wraps, a validation rejection.
func Is(err error) bool {
	var e Error
	return errors.As(err, &e)
}
