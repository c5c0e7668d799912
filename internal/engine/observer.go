package engine

import (
	"context"

	"github.com/roach88/intent/internal/value"
)

// EventKind names a point in a dispatch's lifecycle.
type EventKind string

const (
	// EventRejected is reported when a guard refuses an intent.
	EventRejected EventKind = "rejected"

	// EventPending is reported when the status moves to pending.
	EventPending EventKind = "pending"

	// EventSuccess is reported when the pipeline completes without error.
	EventSuccess EventKind = "success"

	// EventError is reported when the pipeline fails.
	EventError EventKind = "error"
)

// Event describes one status transition or guard rejection.
type Event struct {
	// Seq orders events across all dispatches of one engine.
	Seq int64

	Kind       EventKind
	DispatchID string

	// ParentID is the dispatch that emitted this one, empty at top level.
	ParentID string
	Depth    int

	Intent Intent

	// From and To are the status before and after the transition. Both
	// are empty for EventRejected.
	From Status
	To   Status

	// Err is set for EventError.
	Err error

	// State is the store value after the dispatch finished. Set for
	// EventSuccess and EventError only.
	State value.Object
}

// Observer receives dispatch events. Observe is called synchronously on
// the dispatching goroutine and must not block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// multiObserver fans events out in registration order.
type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}
