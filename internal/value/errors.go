package value

import (
	"errors"
	"fmt"
)

var (
	// ErrFloat is returned when a non-integral number reaches the tree.
	ErrFloat = errors.New("floats are not allowed in state values")

	// ErrEmptyPath is returned by writes addressed at the root.
	ErrEmptyPath = errors.New("path must not be empty")
)

// PathError describes a write that could not follow its path.
type PathError struct {
	// Path is the full dot path that was being written.
	Path string

	// Segment is the index of the offending segment within Path.
	Segment int

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("path %q segment %d: %s", e.Path, e.Segment, e.Reason)
}

// IsPathError returns true if err is or wraps a *PathError.
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}
