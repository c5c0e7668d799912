package engine

import (
	"errors"
	"fmt"
)

// errUnchanged aborts a store update that would not change anything.
var errUnchanged = errors.New("intent: state unchanged")

// MissingHandlerError is returned when strict handler policy is enabled
// and an intent reaches the end of the pipeline with no handler
// registered for its type.
type MissingHandlerError struct {
	// Type is the intent type that had no handler.
	Type string

	// DispatchID identifies the failed dispatch.
	DispatchID string
}

// Error implements the error interface.
func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("intent: no handler registered for %q (dispatch=%s)", e.Type, e.DispatchID)
}

// IsMissingHandlerError returns true if err is or wraps a *MissingHandlerError.
func IsMissingHandlerError(err error) bool {
	var me *MissingHandlerError
	return errors.As(err, &me)
}

// DepthExceededError is returned when a nested emission would exceed the
// limit set by WithMaxDepth. The dispatch is abandoned before its guard
// runs, so the type's status does not change.
type DepthExceededError struct {
	Type     string // Intent type that was refused
	ParentID string // Dispatch that tried to emit it
	Depth    int    // Depth the dispatch would have had
	Limit    int    // Configured maximum
}

// Error implements the error interface.
func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("intent: %q at depth %d exceeds max depth %d (parent=%s)",
		e.Type, e.Depth, e.Limit, e.ParentID)
}

// IsDepthExceededError returns true if err is or wraps a *DepthExceededError.
func IsDepthExceededError(err error) bool {
	var de *DepthExceededError
	return errors.As(err, &de)
}
