// Package metrics exposes bridge activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/miladsoleymani/eventbridge/core"
)

// Event outcome label values.
const (
	StatusOK        = "ok"
	StatusQueueFull = "queue_full"
	StatusEnqueue   = "enqueue_error"
	StatusFailed    = "failed"
)

// Collector holds the bridge metrics. It implements
// middleware.MetricsCollector and can observe delivery reports.
type Collector struct {
	EventsTotal      *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
}

// NewCollector creates and registers all bridge metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbridge_events_total",
			Help: "Events handled by the bridge, by event class and outcome.",
		}, []string{"event", "status"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventbridge_event_duration_seconds",
			Help:    "Time spent encoding and enqueueing one event.",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"event"}),

		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbridge_deliveries_total",
			Help: "Delivery reports received from the producer, by topic and outcome.",
		}, []string{"topic", "status"}),

		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbridge_delivery_failures_total",
			Help: "Messages the broker did not accept, by topic.",
		}, []string{"topic"}),
	}
}

// EventProcessed records one event's outcome.
func (c *Collector) EventProcessed(class string, d time.Duration, err error) {
	if class == "" {
		class = "unknown"
	}
	c.EventsTotal.WithLabelValues(class, eventStatus(err)).Inc()
	c.EventDuration.WithLabelValues(class).Observe(d.Seconds())
}

// DeliveryReported records one delivery report. It matches core.DeliveryFunc.
func (c *Collector) DeliveryReported(r core.DeliveryReport) {
	if r.Err != nil {
		c.DeliveriesTotal.WithLabelValues(r.Topic, StatusFailed).Inc()
		c.DeliveryFailures.WithLabelValues(r.Topic).Inc()
		return
	}
	c.DeliveriesTotal.WithLabelValues(r.Topic, StatusOK).Inc()
}

func eventStatus(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, core.ErrQueueFull):
		return StatusQueueFull
	case errors.Is(err, core.ErrEnqueue):
		return StatusEnqueue
	default:
		return StatusFailed
	}
}
