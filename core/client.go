package core

import "context"

// Client is the asynchronous producer handle of a broker plugin.
// Implementations must be safe for concurrent use: Poll and the Enqueue
// method of its topics are called from many goroutines at once.
type Client interface {
	// Topic returns a handle for publishing to the named topic.
	// The handle must be closed before the client.
	Topic(name string) (Topic, error)

	// Poll dispatches pending delivery reports to the client's DeliveryFunc.
	// It never blocks.
	Poll()

	// Flush waits until every enqueued message is either delivered or has
	// failed, or until ctx is done.
	Flush(ctx context.Context) error

	// Close releases the client. Pending messages that were not flushed may be lost.
	Close() error
}

// Topic is a publishing handle bound to one topic of one Client.
type Topic interface {
	Name() string

	// Enqueue copies payload and schedules it for delivery with no key and
	// an automatically assigned partition. It does not wait for the broker.
	Enqueue(payload []byte) error

	Close() error
}

// DeliveryReport is the final outcome of one enqueued message.
// Err is nil when the broker accepted the message.
type DeliveryReport struct {
	Topic string
	Err   error
}

// DeliveryFunc receives delivery reports from Client.Poll.
type DeliveryFunc func(DeliveryReport)
