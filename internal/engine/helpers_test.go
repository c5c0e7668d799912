package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/roach88/intent/internal/testutil"
	"github.com/roach88/intent/internal/value"
)

type testEffects struct {
	Greeting string
}

func newTestEngine(t *testing.T, initial value.Object, opts ...Option) *Engine[testEffects] {
	t.Helper()
	base := []Option{
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(testutil.NewSequentialIDs("d")),
	}
	return New(initial, testEffects{Greeting: "hi"}, append(base, opts...)...)
}

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func incHandler(in Intent, c *Context[testEffects]) error {
	n, _ := value.AsInt(c.Get("count"))
	return c.Set("count", n+1)
}

func count(t *testing.T, e *Engine[testEffects]) int64 {
	t.Helper()
	n, _ := value.AsInt(e.Store().GetState()["count"])
	return n
}
