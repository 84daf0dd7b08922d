// Package eventbridge provides the top-level API for the event bridge.
// It re-exports the core types for convenience, so users can write:
//
//	ctrl := eventbridge.New(src)
//	ctrl.Start(eventbridge.Config{Brokers: []string{"localhost:9092"}, Topic: "cdr"})
//	defer ctrl.Stop(10 * time.Second)
package eventbridge

import (
	"github.com/miladsoleymani/eventbridge/bridge"
	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Record         = core.Record
	Header         = core.Header
	Source         = core.Source
	Client         = core.Client
	Topic          = core.Topic
	DeliveryReport = core.DeliveryReport
	Middleware     = core.Middleware
	Config         = broker.Config
	Controller     = bridge.Controller
	Option         = bridge.Option
)

// New creates a Controller that forwards every event of src.
func New(src Source, opts ...Option) *Controller {
	return bridge.New(src, opts...)
}
