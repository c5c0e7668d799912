package middleware

import (
	"context"

	"github.com/roach88/intent/internal/engine"
)

// Chain composes several middleware into one. The first is outermost.
func Chain(mws ...engine.Middleware) engine.Middleware {
	return func(ctx context.Context, in engine.Intent, next engine.Next) error {
		return engine.Compose(mws, in, next)(ctx)
	}
}
