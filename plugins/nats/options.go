package nats

import (
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Option configures the NATS client.
type Option func(*options)

type options struct {
	// Stream
	ensureStream bool
	maxMsgs      int64
	maxBytes     int64
	maxAge       time.Duration
	replicas     int
	retention    jetstream.RetentionPolicy
	storage      jetstream.StorageType

	// Publisher
	maxPending int
	stallWait  time.Duration

	// Connection
	name          string
	maxReconnects int
	reconnectWait time.Duration
	streamTimeout time.Duration

	reportBuffer int
	flushPoll    time.Duration
	logger       *slog.Logger
}

func defaults() options {
	return options{
		maxMsgs:       -1, // unlimited
		maxBytes:      -1,
		maxAge:        0,
		replicas:      1,
		retention:     jetstream.LimitsPolicy,
		storage:       jetstream.FileStorage,
		maxPending:    4000,
		stallWait:     200 * time.Millisecond,
		name:          "eventbridge",
		maxReconnects: 60,
		reconnectWait: 2 * time.Second,
		streamTimeout: 5 * time.Second,
		reportBuffer:  10000,
		flushPoll:     10 * time.Millisecond,
		logger:        slog.Default(),
	}
}

// WithEnsureStream makes Topic create or update a stream capturing the
// subject before publishing to it.
func WithEnsureStream(ensure bool) Option {
	return func(o *options) { o.ensureStream = ensure }
}

// WithMaxMessages sets the maximum number of messages per stream.
func WithMaxMessages(n int64) Option {
	return func(o *options) { o.maxMsgs = n }
}

// WithMaxBytes sets the maximum total size of a stream.
func WithMaxBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxAge sets the maximum age of messages in the stream.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithReplicas sets the stream replication factor.
func WithReplicas(n int) Option {
	return func(o *options) { o.replicas = n }
}

// WithRetention sets the stream retention policy.
func WithRetention(r jetstream.RetentionPolicy) Option {
	return func(o *options) { o.retention = r }
}

// WithStorage sets the stream storage type (file or memory).
func WithStorage(s jetstream.StorageType) Option {
	return func(o *options) { o.storage = s }
}

// WithMaxPending bounds the number of unacknowledged async publishes.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithStallWait sets how long a publish waits for room before failing with
// core.ErrQueueFull.
func WithStallWait(d time.Duration) Option {
	return func(o *options) { o.stallWait = d }
}

// WithName sets the connection name reported to the server.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithReconnect sets the reconnect attempts and the wait between them.
func WithReconnect(attempts int, wait time.Duration) Option {
	return func(o *options) {
		o.maxReconnects = attempts
		o.reconnectWait = wait
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func storageByName(name string) (jetstream.StorageType, bool) {
	switch strings.ToLower(name) {
	case "file":
		return jetstream.FileStorage, true
	case "memory":
		return jetstream.MemoryStorage, true
	}
	return 0, false
}

func retentionByName(name string) (jetstream.RetentionPolicy, bool) {
	switch strings.ToLower(name) {
	case "limits":
		return jetstream.LimitsPolicy, true
	case "interest":
		return jetstream.InterestPolicy, true
	case "workqueue":
		return jetstream.WorkQueuePolicy, true
	}
	return 0, false
}
