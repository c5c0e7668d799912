package engine

import (
	"log/slog"
)

// MissingHandlerPolicy decides what happens when an intent passes its
// guard but no handler is registered for its type.
type MissingHandlerPolicy int

const (
	// MissingHandlerIgnore completes the dispatch as a no-op success.
	MissingHandlerIgnore MissingHandlerPolicy = iota

	// MissingHandlerError fails the dispatch with *MissingHandlerError.
	MissingHandlerError
)

// String returns "ignore" or "error".
func (p MissingHandlerPolicy) String() string {
	if p == MissingHandlerError {
		return "error"
	}
	return "ignore"
}

type options struct {
	middleware []Middleware
	logger     *slog.Logger
	observers  []Observer
	ids        IDGenerator
	clock      Sequencer
	maxDepth   int
	missing    MissingHandlerPolicy
}

// Option configures an Engine.
type Option func(*options)

// WithMiddleware appends global middleware. Middleware runs in the order
// given across all WithMiddleware options, first outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mws...)
	}
}

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithIDGenerator sets the dispatch ID source. Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		o.ids = gen
	}
}

// WithClock sets the sequence source for observer events.
// Default: a fresh Clock.
func WithClock(clock Sequencer) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMaxDepth limits how deeply handlers may nest emissions.
//
// Default: 0, no limit. With n > 0 an emission at depth n+1 fails with
// *DepthExceededError. Top-level emissions have depth 0.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// WithMissingHandlerPolicy sets what happens to intents with no handler.
// Default: MissingHandlerIgnore.
func WithMissingHandlerPolicy(p MissingHandlerPolicy) Option {
	return func(o *options) {
		o.missing = p
	}
}
