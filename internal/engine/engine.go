package engine

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/intent/internal/state"
	"github.com/roach88/intent/internal/value"
)

// Engine owns the handler and guard registries, the per-type status
// table and the state store, and dispatches intents through them.
//
// E is the effects type: a capability set supplied at construction and
// handed to every handler through Context.Effects. The engine never
// inspects it.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent
// emissions of the same type share one status slot; the last transition
// wins.
type Engine[E any] struct {
	store   *state.Store[value.Object]
	effects E

	middleware []Middleware
	logger     *slog.Logger
	observer   Observer
	ids        IDGenerator
	clock      Sequencer
	maxDepth   int
	missing    MissingHandlerPolicy

	mu       sync.RWMutex
	handlers map[string]Handler[E]
	guards   map[string]Guard[E]
	statuses map[string]Status
}

// New creates an Engine whose store starts at initial.
//
// A nil initial state starts as an empty object.
func New[E any](initial value.Object, effects E, opts ...Option) *Engine[E] {
	o := options{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	if initial == nil {
		initial = value.Object{}
	}

	e := &Engine[E]{
		store:      state.New(initial),
		effects:    effects,
		middleware: o.middleware,
		logger:     o.logger,
		ids:        o.ids,
		clock:      o.clock,
		maxDepth:   o.maxDepth,
		missing:    o.missing,
		handlers:   make(map[string]Handler[E]),
		guards:     make(map[string]Guard[E]),
		statuses:   make(map[string]Status),
	}
	switch len(o.observers) {
	case 0:
	case 1:
		e.observer = o.observers[0]
	default:
		e.observer = multiObserver(o.observers)
	}
	return e
}

// On registers the handler for typ, replacing any previous one. A nil
// handler removes the registration. Emissions already past their handler
// lookup are unaffected.
func (e *Engine[E]) On(typ string, h Handler[E]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil {
		delete(e.handlers, typ)
		return
	}
	e.handlers[typ] = h
}

// Guard registers the guard for typ, replacing any previous one. A nil
// guard removes the registration.
func (e *Engine[E]) Guard(typ string, g Guard[E]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g == nil {
		delete(e.guards, typ)
		return
	}
	e.guards[typ] = g
}

// Emit dispatches in and waits for it to finish.
//
// A guard returning false abandons the dispatch and Emit returns nil
// without touching the status. Otherwise the status moves to pending, the
// pipeline runs, and the status moves to success or error. A pipeline
// error is returned unchanged; state written before it is kept.
//
// Emit called from a handler (through Context.Emit) records the calling
// dispatch as the parent.
func (e *Engine[E]) Emit(ctx context.Context, in Intent) error {
	if ctx == nil {
		ctx = context.Background()
	}

	depth, parentID := nextDepth(ctx)
	if err := checkDepth(e.maxDepth, depth, in.Type, parentID); err != nil {
		e.logger.Warn("intent refused",
			"intent", in.Type,
			"parent_id", parentID,
			"depth", depth,
			"error", err,
		)
		return err
	}

	id := e.ids.Generate()
	ctx = withDispatch(ctx, id, depth)
	c := NewContext(ctx, e.store, e.effects, e.Emit, id)

	ev := Event{
		DispatchID: id,
		ParentID:   parentID,
		Depth:      depth,
		Intent:     in,
	}

	if g := e.guardFor(in.Type); g != nil && !g(c) {
		e.logger.Debug("intent rejected by guard",
			"intent", in.Type,
			"dispatch_id", id,
			"depth", depth,
		)
		ev.Kind = EventRejected
		e.observe(ctx, ev)
		return nil
	}

	ev.From = e.transition(in.Type, StatusPending)
	ev.Kind, ev.To = EventPending, StatusPending
	e.observe(ctx, ev)

	e.logger.Debug("intent dispatched",
		"intent", in.Type,
		"dispatch_id", id,
		"parent_id", parentID,
		"depth", depth,
	)

	terminal := func(ctx context.Context) error {
		h := e.handlerFor(in.Type)
		if h == nil {
			if e.missing == MissingHandlerError {
				return &MissingHandlerError{Type: in.Type, DispatchID: id}
			}
			return nil
		}
		return h(in, c.withContext(ctx))
	}

	// An unrecovered panic still leaves the status terminal.
	defer func() {
		if r := recover(); r != nil {
			e.transition(in.Type, StatusError)
			e.logger.Error("intent panicked",
				"intent", in.Type,
				"dispatch_id", id,
				"depth", depth,
				"panic", r,
			)
			panic(r)
		}
	}()

	err := Compose(e.middleware, in, terminal)(ctx)

	ev.From = e.transition(in.Type, terminalStatus(err))
	ev.To = terminalStatus(err)
	ev.State = e.store.GetState()
	if err != nil {
		ev.Kind, ev.Err = EventError, err
		e.logger.Warn("intent failed",
			"intent", in.Type,
			"dispatch_id", id,
			"depth", depth,
			"error", err,
		)
	} else {
		ev.Kind = EventSuccess
		e.logger.Debug("intent completed",
			"intent", in.Type,
			"dispatch_id", id,
			"depth", depth,
		)
	}
	e.observe(ctx, ev)

	return err
}

// EmitAsync runs Emit on a new goroutine. The returned channel receives
// Emit's result and is then closed.
func (e *Engine[E]) EmitAsync(ctx context.Context, in Intent) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- e.Emit(ctx, in)
	}()
	return done
}

// Status returns the tracked status for typ, or StatusIdle if no
// emission of typ has passed its guard.
func (e *Engine[E]) Status(typ string) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.statuses[typ]; ok {
		return s
	}
	return StatusIdle
}

// Statuses returns a snapshot of every tracked status.
func (e *Engine[E]) Statuses() map[string]Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.statuses)
}

// Store exposes the state store for direct reads, writes and
// subscriptions.
func (e *Engine[E]) Store() *state.Store[value.Object] {
	return e.store
}

// Effects returns the effects value given to New.
func (e *Engine[E]) Effects() E {
	return e.effects
}

func (e *Engine[E]) handlerFor(typ string) Handler[E] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[typ]
}

func (e *Engine[E]) guardFor(typ string) Guard[E] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guards[typ]
}

// transition sets the status for typ and returns the previous one.
func (e *Engine[E]) transition(typ string, to Status) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, ok := e.statuses[typ]
	if !ok {
		from = StatusIdle
	}
	e.statuses[typ] = to
	return from
}

func (e *Engine[E]) observe(ctx context.Context, ev Event) {
	if e.observer == nil {
		return
	}
	ev.Seq = e.clock.Next()
	e.observer.Observe(ctx, ev)
}

func terminalStatus(err error) Status {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
