package script

import (
	"errors"
	"fmt"
)

// Error is a compile or runtime failure of a script.
type Error struct {
	Script string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lua %s: %v", e.Script, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError returns true if err is or wraps a *Error.
func IsError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
