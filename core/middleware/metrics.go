package middleware

import (
	"context"
	"time"

	"github.com/miladsoleymani/eventbridge/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// EventProcessed records that an event went through the pipeline.
	// class is the event's class, duration is processing time,
	// and err is nil on success.
	EventProcessed(class string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given collector.
func Metrics(collector MetricsCollector) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, rec core.Record) error {
			start := time.Now()
			err := next(ctx, rec)
			collector.EventProcessed(rec.Class(), time.Since(start), err)
			return err
		}
	}
}
