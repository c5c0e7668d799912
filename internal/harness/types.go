package harness

import (
	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/value"
)

// TraceEvent is one recorded engine event.
type TraceEvent struct {
	Seq        int64            `json:"seq"`
	Kind       engine.EventKind `json:"kind"`
	Intent     string           `json:"intent"`
	DispatchID string           `json:"dispatch_id"`
	ParentID   string           `json:"parent_id,omitempty"`
	Depth      int              `json:"depth"`
	From       engine.Status    `json:"from,omitempty"`
	To         engine.Status    `json:"to,omitempty"`
	Error      string           `json:"error,omitempty"`
	Payload    value.Value      `json:"payload,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every engine event in Seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state.
	State value.Object `json:"state"`

	// Statuses is the final status of every intent type seen.
	Statuses map[string]engine.Status `json:"statuses"`

	// Output is everything the program printed.
	Output string `json:"output,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		State:    value.Object{},
		Statuses: map[string]engine.Status{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceEvent converts an engine event.
func traceEvent(ev engine.Event) TraceEvent {
	te := TraceEvent{
		Seq:        ev.Seq,
		Kind:       ev.Kind,
		Intent:     ev.Intent.Type,
		DispatchID: ev.DispatchID,
		ParentID:   ev.ParentID,
		Depth:      ev.Depth,
		From:       ev.From,
		To:         ev.To,
	}
	if ev.Err != nil {
		te.Error = ev.Err.Error()
	}
	if ev.Intent.Payload != nil {
		if p, err := value.FromGo(ev.Intent.Payload); err == nil {
			te.Payload = p
		}
	}
	return te
}
