package core

import "errors"

// Startup errors. Start returns them wrapped and rolls back everything it
// had acquired.
var (
	// ErrConfig is returned when the broker or topic configuration is missing or malformed.
	ErrConfig = errors.New("eventbridge: invalid configuration")

	// ErrResource is returned when the producer client rejects creating a resource.
	ErrResource = errors.New("eventbridge: resource creation rejected")

	// ErrRegistration is returned when the event source refuses the handler.
	ErrRegistration = errors.New("eventbridge: event source registration failed")
)

// Per-event errors. They are logged and the event is dropped.
var (
	// ErrEnqueue is returned when a message cannot be handed to the producer.
	ErrEnqueue = errors.New("eventbridge: enqueue failed")

	// ErrQueueFull is returned when the producer's local queue is at capacity.
	ErrQueueFull = errors.New("eventbridge: local queue full")

	// ErrDelivery marks a delivery report for a message the broker did not accept.
	ErrDelivery = errors.New("eventbridge: delivery failed")
)

var (
	// ErrShutdownTimeout is logged when draining or flushing exceeds its deadline.
	ErrShutdownTimeout = errors.New("eventbridge: shutdown timed out")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("eventbridge: client is closed")

	// ErrAlreadyStarted is returned when Start is called on a running controller.
	ErrAlreadyStarted = errors.New("eventbridge: controller already started")

	// ErrNotStarted is returned when Stop is called on a controller that is not running.
	ErrNotStarted = errors.New("eventbridge: controller not started")

	// ErrNoSource is returned when a controller is created without an event source.
	ErrNoSource = errors.New("eventbridge: event source is nil")
)
