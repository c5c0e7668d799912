package middleware

import (
	"context"
	"time"

	"github.com/roach88/intent/internal/engine"
)

// Timeout returns middleware that gives the inner pipeline a deadline.
// The handler sees it through Context.Context() and must honor it; the
// engine itself does not interrupt running handlers. A non-positive d
// disables the deadline.
//
// If the inner pipeline returns nil after the deadline passed, the
// deadline error is returned instead.
func Timeout(d time.Duration) engine.Middleware {
	return func(ctx context.Context, in engine.Intent, next engine.Next) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		if err := next(ctx); err != nil {
			return err
		}
		return ctx.Err()
	}
}
