package engine

// Intent is a named request. Type identifies it; Payload is opaque to the
// engine and passed to the handler untouched.
type Intent struct {
	Type    string `json:"type" yaml:"type"`
	Payload any    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Status is the lifecycle state tracked per intent type.
type Status string

const (
	// StatusIdle means the type has never passed its guard.
	StatusIdle Status = "idle"

	// StatusPending means a dispatch of the type is in flight.
	StatusPending Status = "pending"

	// StatusSuccess means the most recent dispatch completed without error.
	StatusSuccess Status = "success"

	// StatusError means the most recent dispatch failed.
	StatusError Status = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusPending, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Handler fulfills an intent. A non-nil error fails the dispatch.
type Handler[E any] func(in Intent, c *Context[E]) error

// Guard decides whether an intent may be dispatched. It sees the same
// Context a handler would.
type Guard[E any] func(c *Context[E]) bool
