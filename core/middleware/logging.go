package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/miladsoleymani/eventbridge/core"
)

// Logging returns middleware that logs how long each event took to pass
// through the pipeline. Successful events are logged at debug level.
func Logging(logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, rec core.Record) error {
			start := time.Now()
			err := next(ctx, rec)
			elapsed := time.Since(start)

			if err != nil {
				logger.LogAttrs(ctx, slog.LevelWarn, "event dropped",
					slog.String("event", rec.Class()),
					slog.Duration("elapsed", elapsed),
					slog.String("error", err.Error()))
			} else {
				logger.LogAttrs(ctx, slog.LevelDebug, "event forwarded",
					slog.String("event", rec.Class()),
					slog.Duration("elapsed", elapsed))
			}
			return err
		}
	}
}
