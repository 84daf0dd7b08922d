package kafka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
	"github.com/miladsoleymani/eventbridge/logging"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config, onDelivery core.DeliveryFunc) (core.Client, error) {
		c, err := New(cfg.Brokers, onDelivery, optsFromConfig(cfg)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// writer abstracts the kafka.Writer methods used by Client for testing.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Client implements core.Client for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - Enqueue only places the message on a bounded local queue; a sender
//     goroutine owned by the Client hands it to the writer. Metadata lookups
//     and broker stalls never reach the caller.
//   - One async kafka.Writer shared by all topics (thread-safe by library).
//   - The writer's Completion callback turns batch results into delivery
//     reports, buffered until Poll.
//   - An in-flight counter covers queued and written-but-unreported
//     messages; it bounds the local queue and lets Flush wait.
//   - Close is bounded by the close timeout; whatever is still pending then
//     is abandoned.
type Client struct {
	brokers    []string
	opts       options
	w          writer
	onDelivery core.DeliveryFunc
	reports    *core.DeliveryQueue

	mu         sync.RWMutex // held for reading while enqueueing, for writing on close
	queue      chan kafka.Message
	inflight   atomic.Int64
	closed     atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	senderDone chan struct{}
}

// New creates a Kafka Client. brokers are host:port bootstrap addresses.
func New(brokers []string, onDelivery core.DeliveryFunc, fns ...Option) (*Client, error) {
	if err := broker.ValidateHostPorts(brokers); err != nil {
		return nil, fmt.Errorf("eventbridge/kafka: %w", err)
	}

	c := newClient(onDelivery, fns...)
	c.brokers = brokers

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               c.opts.balancer,
		BatchSize:              c.opts.batchSize,
		BatchTimeout:           c.opts.batchTimeout,
		RequiredAcks:           c.opts.requiredAcks,
		Compression:            c.opts.compression,
		AllowAutoTopicCreation: c.opts.autoCreateTopic,
		WriteTimeout:           c.opts.writeTimeout,
		MaxAttempts:            c.opts.maxAttempts,
		WriteBackoffMax:        c.opts.writeBackoffMax,
		Async:                  true,
		Completion:             c.complete,
		Logger:                 kafka.LoggerFunc(logging.Printf(c.opts.logger, slog.LevelDebug)),
		ErrorLogger:            kafka.LoggerFunc(logging.Printf(c.opts.logger, slog.LevelWarn)),
	}
	if c.opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  c.opts.dialer.TLS,
			SASL: c.opts.dialer.SASLMechanism,
		}
	}
	c.w = w
	go c.send()
	return c, nil
}

func newClient(onDelivery core.DeliveryFunc, fns ...Option) *Client {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.maxInFlight < 1 {
		opts.maxInFlight = defaults().maxInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:       opts,
		onDelivery: onDelivery,
		reports:    core.NewDeliveryQueue(opts.reportBuffer),
		queue:      make(chan kafka.Message, opts.maxInFlight),
		ctx:        ctx,
		cancel:     cancel,
		senderDone: make(chan struct{}),
	}
}

var legalTopic = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Topic returns a handle for the named topic. The name must be a legal
// Kafka topic name.
func (c *Client) Topic(name string) (core.Topic, error) {
	if c.closed.Load() {
		return nil, core.ErrClientClosed
	}
	if len(name) == 0 || len(name) > 249 || name == "." || name == ".." || !legalTopic.MatchString(name) {
		return nil, fmt.Errorf("eventbridge/kafka: %w: illegal topic name %q", core.ErrResource, name)
	}
	return &topic{client: c, name: name}, nil
}

// Poll hands buffered delivery reports to the delivery callback.
func (c *Client) Poll() {
	c.reports.Drain(c.onDelivery)
}

// Flush waits for every in-flight message to be reported, polling as it goes.
func (c *Client) Flush(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.flushPoll)
	defer ticker.Stop()

	for {
		c.Poll()
		n := c.inflight.Load()
		if n <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("eventbridge/kafka: flush: %d messages in flight: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the sender, fails messages still queued locally and closes
// the writer. It returns core.ErrShutdownTimeout when the close timeout
// elapses first.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closed.Store(true)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.closeTimeout)
	defer cancel()

	c.cancel()
	select {
	case <-c.senderDone:
	case <-ctx.Done():
	}
	c.failQueued()

	done := make(chan error, 1)
	go func() { done <- c.w.Close() }()

	var err error
	select {
	case err = <-done:
		if err != nil {
			err = fmt.Errorf("eventbridge/kafka: close writer: %w", err)
		}
	case <-ctx.Done():
		err = fmt.Errorf("eventbridge/kafka: close writer: %w after %v", core.ErrShutdownTimeout, c.opts.closeTimeout)
	}
	c.Poll()
	return err
}

// InFlight returns the number of messages enqueued but not yet reported.
func (c *Client) InFlight() int64 {
	return c.inflight.Load()
}

// send moves queued messages to the writer until the client is closed.
func (c *Client) send() {
	defer close(c.senderDone)
	for {
		select {
		case msg := <-c.queue:
			// Async writes only fail before the message is batched, so a
			// failed message never reaches Completion.
			if err := c.w.WriteMessages(c.ctx, msg); err != nil {
				c.fail(msg.Topic, err)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) failQueued() {
	for {
		select {
		case msg := <-c.queue:
			c.fail(msg.Topic, core.ErrClientClosed)
		default:
			return
		}
	}
}

func (c *Client) fail(topic string, err error) {
	c.reports.Push(core.DeliveryReport{Topic: topic, Err: fmt.Errorf("%w: %w", core.ErrDelivery, err)})
	c.inflight.Add(-1)
}

// complete is the writer's Completion callback.
func (c *Client) complete(msgs []kafka.Message, err error) {
	var perMsg kafka.WriteErrors
	hasPerMsg := errors.As(err, &perMsg) && len(perMsg) == len(msgs)

	for i, m := range msgs {
		merr := err
		if hasPerMsg {
			merr = perMsg[i]
		}
		r := core.DeliveryReport{Topic: m.Topic}
		if merr != nil {
			r.Err = fmt.Errorf("%w: %w", core.ErrDelivery, merr)
		}
		c.reports.Push(r)
	}
	c.inflight.Add(-int64(len(msgs)))
}

// topic implements core.Topic.
type topic struct {
	client *Client
	name   string
	closed atomic.Bool
}

func (t *topic) Name() string { return t.name }

// Enqueue copies payload into a message with no key and queues it locally;
// the balancer picks the partition. It fails with core.ErrQueueFull rather
// than wait.
func (t *topic) Enqueue(payload []byte) error {
	c := t.client
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() || t.closed.Load() {
		return core.ErrClientClosed
	}
	limit := int64(c.opts.maxInFlight)
	if n := c.inflight.Add(1); n > limit {
		c.inflight.Add(-1)
		return fmt.Errorf("eventbridge/kafka: %w: %d messages in flight", core.ErrQueueFull, limit)
	}

	select {
	case c.queue <- kafka.Message{Topic: t.name, Value: bytes.Clone(payload)}:
		return nil
	default:
		c.inflight.Add(-1)
		return fmt.Errorf("eventbridge/kafka: %w: local queue full", core.ErrQueueFull)
	}
}

func (t *topic) Close() error {
	t.closed.Store(true)
	return nil
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["batch_timeout_ms"].(int); ok {
		opts = append(opts, WithBatchTimeout(time.Duration(v)*time.Millisecond))
	}
	if v, ok := cfg.Extra["write_timeout_ms"].(int); ok {
		opts = append(opts, WithWriteTimeout(time.Duration(v)*time.Millisecond))
	}
	if v, ok := cfg.Extra["max_attempts"].(int); ok {
		opts = append(opts, WithMaxAttempts(v))
	}
	if v, ok := cfg.Extra["write_backoff_max_ms"].(int); ok {
		opts = append(opts, WithWriteBackoffMax(time.Duration(v)*time.Millisecond))
	}
	if v, ok := cfg.Extra["close_timeout_ms"].(int); ok {
		opts = append(opts, WithCloseTimeout(time.Duration(v)*time.Millisecond))
	}
	if v, ok := cfg.Extra["max_in_flight"].(int); ok {
		opts = append(opts, WithMaxInFlight(v))
	}
	if v, ok := cfg.Extra["auto_create_topic"].(bool); ok {
		opts = append(opts, WithAutoCreateTopic(v))
	}
	if v, ok := cfg.Extra["balancer"].(string); ok {
		if b, ok := balancerByName(v); ok {
			opts = append(opts, WithBalancer(b))
		}
	}
	if v, ok := cfg.Extra["compression"].(string); ok {
		if c, ok := compressionByName(v); ok {
			opts = append(opts, WithCompression(c))
		}
	}
	switch v := cfg.Extra["required_acks"].(type) {
	case string:
		if a, ok := acksByName(v); ok {
			opts = append(opts, WithRequiredAcks(a))
		}
	case int:
		if a, ok := acksByName(fmt.Sprint(v)); ok {
			opts = append(opts, WithRequiredAcks(a))
		}
	}
	return opts
}
