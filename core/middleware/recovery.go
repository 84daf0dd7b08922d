package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/miladsoleymani/eventbridge/core"
)

// Recovery returns middleware that recovers from panics in the event
// pipeline, logs the stack trace, and returns the panic as an error.
// The event source never observes the panic.
func Recovery(logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, rec core.Record) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logger.Error("panic recovered in event handler",
						"event", rec.Class(), "panic", fmt.Sprint(r), "stack", string(buf[:n]))
					err = fmt.Errorf("eventbridge: panic recovered: %v", r)
				}
			}()
			return next(ctx, rec)
		}
	}
}
