package bridge

import (
	"log/slog"
	"time"

	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
)

// Defaults applied by New.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStopWait     = time.Second
	DefaultFlushTimeout = 10 * time.Second
	DefaultReleaseWait  = 500 * time.Millisecond
)

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	encoder      core.Encoder
	factory      broker.Factory
	middlewares  []core.Middleware
	onDelivery   core.DeliveryFunc
	pollInterval time.Duration
	stopWait     time.Duration
	flushTimeout time.Duration
	releaseWait  time.Duration
}

func defaults() options {
	return options{
		logger:       slog.Default(),
		encoder:      core.JSONEncoder{},
		pollInterval: DefaultPollInterval,
		stopWait:     DefaultStopWait,
		flushTimeout: DefaultFlushTimeout,
		releaseWait:  DefaultReleaseWait,
	}
}

// WithLogger sets the logger used for lifecycle and per-event messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEncoder replaces the JSON encoder.
func WithEncoder(e core.Encoder) Option {
	return func(o *options) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithFactory builds the producer client with f instead of looking up
// Config.Driver in the broker registry.
func WithFactory(f broker.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithMiddleware adds event pipeline middleware. Panic recovery is always
// applied outside of it.
func WithMiddleware(mws ...core.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithDeliveryObserver receives every delivery report after it is logged.
func WithDeliveryObserver(fn core.DeliveryFunc) Option {
	return func(o *options) { o.onDelivery = fn }
}

// WithPollInterval sets how often the driver loop polls the client.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStopWait bounds how long Stop waits for the driver loop to exit.
func WithStopWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopWait = d
		}
	}
}

// WithFlushTimeout sets the timeout Stop uses when called with zero.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithReleaseWait sets the minimum time Stop gives the topic and client to
// close once the flush deadline has passed.
func WithReleaseWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.releaseWait = d
		}
	}
}
