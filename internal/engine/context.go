package engine

import (
	"context"
	"fmt"

	"github.com/roach88/intent/internal/state"
	"github.com/roach88/intent/internal/value"
)

// EmitFunc re-enters dispatch for a nested intent.
type EmitFunc func(ctx context.Context, in Intent) error

// Context is the per-dispatch view handed to guards and handlers.
//
// It binds one store, one effects value and one emit function for the
// lifetime of a single dispatch. Do not retain it after the handler
// returns.
type Context[E any] struct {
	ctx        context.Context
	store      *state.Store[value.Object]
	effects    E
	emit       EmitFunc
	dispatchID string
}

// NewContext builds a Context over store. emit is called by Context.Emit
// with the dispatch's context.Context.
func NewContext[E any](
	ctx context.Context,
	store *state.Store[value.Object],
	effects E,
	emit EmitFunc,
	dispatchID string,
) *Context[E] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context[E]{
		ctx:        ctx,
		store:      store,
		effects:    effects,
		emit:       emit,
		dispatchID: dispatchID,
	}
}

// withContext returns a copy bound to ctx. Middleware may replace the
// context.Context on its way to the handler.
func (c *Context[E]) withContext(ctx context.Context) *Context[E] {
	cp := *c
	cp.ctx = ctx
	return &cp
}

// Get returns the value at path in the current state, or nil if any
// segment is missing.
func (c *Context[E]) Get(path string) value.Value {
	v, _ := value.Get(c.store.GetState(), path)
	return v
}

// Lookup is like Get but also reports whether the path was present.
func (c *Context[E]) Lookup(path string) (value.Value, bool) {
	return value.Get(c.store.GetState(), path)
}

// State returns the whole current state. Treat it as read-only.
func (c *Context[E]) State() value.Object {
	return c.store.GetState()
}

// Set writes v at path, creating missing intermediate objects. v may be a
// value.Value or plain Go data accepted by value.FromGo.
//
// Subscribers are notified once the write commits.
func (c *Context[E]) Set(path string, v any) error {
	val, err := value.FromGo(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	return c.store.SetState(func(prev value.Object) (value.Object, error) {
		return value.Set(prev, path, val)
	})
}

// Update applies fn to the current state as one atomic write. Returning
// an error from fn leaves the state untouched.
func (c *Context[E]) Update(fn func(prev value.Object) (value.Object, error)) error {
	return c.store.SetState(fn)
}

// Delete removes the key at path. It reports false, and leaves the store
// untouched, when the key is absent.
func (c *Context[E]) Delete(path string) (bool, error) {
	removed := false
	err := c.store.SetState(func(prev value.Object) (value.Object, error) {
		next, ok, err := value.Delete(prev, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return prev, errUnchanged
		}
		removed = true
		return next, nil
	})
	if err == errUnchanged {
		return false, nil
	}
	return removed, err
}

// Effects returns the effects value the engine was built with.
func (c *Context[E]) Effects() E {
	return c.effects
}

// Emit dispatches a nested intent and waits for it to finish.
func (c *Context[E]) Emit(in Intent) error {
	if c.emit == nil {
		return fmt.Errorf("emit %q: context has no engine", in.Type)
	}
	return c.emit(c.ctx, in)
}

// Context returns the dispatch's context.Context.
func (c *Context[E]) Context() context.Context {
	return c.ctx
}

// DispatchID returns the ID of the dispatch this Context belongs to.
func (c *Context[E]) DispatchID() string {
	return c.dispatchID
}
