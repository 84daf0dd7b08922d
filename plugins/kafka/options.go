package kafka

import (
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka client.
type Option func(*options)

type options struct {
	// Writer
	balancer        kafka.Balancer
	batchSize       int
	batchTimeout    time.Duration
	requiredAcks    kafka.RequiredAcks
	compression     kafka.Compression
	autoCreateTopic bool
	writeTimeout    time.Duration
	maxAttempts     int
	writeBackoffMax time.Duration

	// Local queue
	maxInFlight  int
	reportBuffer int
	flushPoll    time.Duration
	closeTimeout time.Duration

	// General
	dialer *kafka.Dialer
	logger *slog.Logger
}

func defaults() options {
	return options{
		balancer:     &kafka.LeastBytes{},
		batchSize:    100,
		batchTimeout: 10 * time.Millisecond,
		requiredAcks: kafka.RequireAll,
		writeTimeout: 10 * time.Second,
		maxAttempts:  10,
		maxInFlight:  100000,
		reportBuffer: 10000,
		flushPoll:    10 * time.Millisecond,
		closeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
}

// WithBalancer sets the partition balancer used for unkeyed messages.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithBatchTimeout sets how long the writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) Option {
	return func(o *options) { o.batchTimeout = d }
}

// WithRequiredAcks sets the acknowledgement level requested from brokers.
func WithRequiredAcks(acks kafka.RequiredAcks) Option {
	return func(o *options) { o.requiredAcks = acks }
}

// WithCompression sets the batch compression codec.
func WithCompression(c kafka.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithAutoCreateTopic lets the writer create missing topics.
func WithAutoCreateTopic(auto bool) Option {
	return func(o *options) { o.autoCreateTopic = auto }
}

// WithWriteTimeout sets the timeout of one write attempt to a broker.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithMaxAttempts sets how many times a batch is tried before its messages
// are reported as failed.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithWriteBackoffMax caps the wait between write attempts.
func WithWriteBackoffMax(d time.Duration) Option {
	return func(o *options) { o.writeBackoffMax = d }
}

// WithCloseTimeout bounds Close. Messages not written by then are abandoned.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) { o.closeTimeout = d }
}

// WithMaxInFlight bounds how many messages may be enqueued but not yet
// reported. Enqueue fails with core.ErrQueueFull beyond it.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger routes kafka-go's internal logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func balancerByName(name string) (kafka.Balancer, bool) {
	switch strings.ToLower(name) {
	case "least_bytes":
		return &kafka.LeastBytes{}, true
	case "round_robin":
		return &kafka.RoundRobin{}, true
	case "hash":
		return &kafka.Hash{}, true
	case "crc32":
		return &kafka.CRC32Balancer{}, true
	}
	return nil, false
}

func compressionByName(name string) (kafka.Compression, bool) {
	switch strings.ToLower(name) {
	case "gzip":
		return kafka.Gzip, true
	case "snappy":
		return kafka.Snappy, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	}
	return 0, false
}

func acksByName(name string) (kafka.RequiredAcks, bool) {
	switch strings.ToLower(name) {
	case "all", "-1":
		return kafka.RequireAll, true
	case "one", "1":
		return kafka.RequireOne, true
	case "none", "0":
		return kafka.RequireNone, true
	}
	return 0, false
}
