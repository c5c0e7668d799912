package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/intent/internal/engine"
)

// Logging returns middleware that logs each dispatch's start and outcome.
func Logging(logger *slog.Logger) engine.Middleware {
	return func(ctx context.Context, in engine.Intent, next engine.Next) error {
		id, _ := engine.DispatchIDFrom(ctx)
		depth := engine.DepthFrom(ctx)

		logger.Info("intent started",
			slog.String("intent", in.Type),
			slog.String("dispatch_id", id),
			slog.Int("depth", depth),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("intent failed",
				slog.String("intent", in.Type),
				slog.String("dispatch_id", id),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("intent completed",
				slog.String("intent", in.Type),
				slog.String("dispatch_id", id),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
