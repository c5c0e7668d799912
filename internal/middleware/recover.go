package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/intent/internal/engine"
)

// PanicError is returned by Recover when the inner pipeline panicked.
type PanicError struct {
	Intent string
	Value  any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in intent %s: %v", e.Intent, e.Value)
}

// IsPanicError returns true if err is or wraps a *PanicError.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Recover returns middleware that turns panics in the inner pipeline into
// a *PanicError. The panic is logged with a stack trace. Place it first
// so it also covers the middleware after it.
func Recover(logger *slog.Logger) engine.Middleware {
	return func(ctx context.Context, in engine.Intent, next engine.Next) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				id, _ := engine.DispatchIDFrom(ctx)
				logger.Error("intent handler panicked",
					slog.String("intent", in.Type),
					slog.String("dispatch_id", id),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = &PanicError{Intent: in.Type, Value: r}
			}
		}()
		return next(ctx)
	}
}
