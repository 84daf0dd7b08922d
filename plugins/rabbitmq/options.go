package rabbitmq

import "time"

// Option configures the RabbitMQ client.
type Option func(*options)

type options struct {
	// Exchange settings
	exchange     string
	exchangeType string
	routingKey   string

	// Queue settings
	declare    bool
	durable    bool
	autoDelete bool

	// Publisher settings
	persistent     bool
	contentType    string
	maxInFlight    int
	publishTimeout time.Duration

	reportBuffer int
	flushPoll    time.Duration
}

func defaults() options {
	return options{
		exchange:       "",       // default exchange
		exchangeType:   "direct", // direct, fanout, topic, headers
		declare:        true,
		durable:        true,
		persistent:     true,
		contentType:    "application/json",
		maxInFlight:    10000,
		publishTimeout: 5 * time.Second,
		reportBuffer:   10000,
		flushPoll:      10 * time.Millisecond,
	}
}

// WithExchange sets the exchange name and type.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeType = kind
	}
}

// WithRoutingKey overrides the routing key, which defaults to the topic name.
func WithRoutingKey(key string) Option {
	return func(o *options) { o.routingKey = key }
}

// WithDeclare controls whether Topic declares the queue and exchange.
func WithDeclare(d bool) Option {
	return func(o *options) { o.declare = d }
}

// WithDurable controls whether queues survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithAutoDelete causes the queue to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPersistent controls whether messages are written to disk by the broker.
func WithPersistent(p bool) Option {
	return func(o *options) { o.persistent = p }
}

// WithMaxInFlight bounds how many publishes may await a broker confirm.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithPublishTimeout bounds a single publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}
