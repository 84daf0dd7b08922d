package nats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config, onDelivery core.DeliveryFunc) (core.Client, error) {
		c, err := New(cfg.Brokers, onDelivery, optsFromConfig(cfg)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// jetStream is the subset of jetstream.JetStream used by Client.
type jetStream interface {
	PublishAsync(subject string, payload []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

type pendingAck struct {
	subject string
	future  jetstream.PubAckFuture
}

// Client implements core.Client for NATS JetStream.
//
// Design decisions:
//   - One NATS connection per Client; topics are subjects on it.
//   - Publishes are async. A watcher goroutine resolves ack futures in
//     publish order and turns them into delivery reports for Poll.
//   - The in-flight count is capped at the max pending setting, so the
//     watcher's queue never blocks Enqueue.
//   - Optionally a stream is created or updated per topic so the
//     subject is persisted.
type Client struct {
	conn       *nats.Conn
	js         jetStream
	opts       options
	onDelivery core.DeliveryFunc
	reports    *core.DeliveryQueue

	pending   chan pendingAck
	inflight  atomic.Int64
	closed    atomic.Bool
	quit      chan struct{}
	watchDone chan struct{}
}

// New connects to the given servers (nats://host:port or host:port) and
// returns a JetStream Client.
func New(urls []string, onDelivery core.DeliveryFunc, fns ...Option) (*Client, error) {
	if err := validateURLs(urls); err != nil {
		return nil, fmt.Errorf("eventbridge/nats: %w", err)
	}

	c := newClient(onDelivery, fns...)
	logger := c.opts.logger

	nc, err := nats.Connect(strings.Join(urls, ","),
		nats.Name(c.opts.name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(c.opts.maxReconnects),
		nats.ReconnectWait(c.opts.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Warn("nats async error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbridge/nats: connect to %v: %w", urls, err)
	}

	js, err := jetstream.New(nc, jetstream.WithPublishAsyncMaxPending(c.opts.maxPending))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbridge/nats: init jetstream: %w", err)
	}

	c.conn = nc
	c.js = js
	go c.watch()
	return c, nil
}

func newClient(onDelivery core.DeliveryFunc, fns ...Option) *Client {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	if opts.maxPending < 1 {
		opts.maxPending = 1
	}
	return &Client{
		opts:       opts,
		onDelivery: onDelivery,
		reports:    core.NewDeliveryQueue(opts.reportBuffer),
		pending:    make(chan pendingAck, opts.maxPending),
		quit:       make(chan struct{}),
		watchDone:  make(chan struct{}),
	}
}

// Topic validates the subject and, when configured, ensures a stream
// captures it.
func (c *Client) Topic(name string) (core.Topic, error) {
	if c.closed.Load() {
		return nil, core.ErrClientClosed
	}
	if err := validateSubject(name); err != nil {
		return nil, fmt.Errorf("eventbridge/nats: %w: %w", core.ErrResource, err)
	}

	if c.opts.ensureStream {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.streamTimeout)
		defer cancel()

		streamName := sanitizeStreamName(name)
		if _, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:      streamName,
			Subjects:  []string{name},
			MaxMsgs:   c.opts.maxMsgs,
			MaxBytes:  c.opts.maxBytes,
			MaxAge:    c.opts.maxAge,
			Replicas:  c.opts.replicas,
			Retention: c.opts.retention,
			Storage:   c.opts.storage,
		}); err != nil {
			return nil, fmt.Errorf("eventbridge/nats: %w: create stream %q: %w", core.ErrResource, streamName, err)
		}
	}
	return &topic{client: c, subject: name}, nil
}

// Poll hands buffered delivery reports to the delivery callback.
func (c *Client) Poll() {
	c.reports.Drain(c.onDelivery)
}

// Flush waits until every publish has been acknowledged or failed.
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
			return fmt.Errorf("eventbridge/nats: flush: %d publishes unacknowledged: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the ack watcher and closes the connection. Publishes still
// unacknowledged are abandoned.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	<-c.watchDone
	c.Poll()
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// watch resolves ack futures in publish order.
func (c *Client) watch() {
	defer close(c.watchDone)
	for {
		select {
		case p := <-c.pending:
			select {
			case <-p.future.Ok():
				c.reports.Push(core.DeliveryReport{Topic: p.subject})
			case err := <-p.future.Err():
				c.reports.Push(core.DeliveryReport{Topic: p.subject, Err: fmt.Errorf("%w: %w", core.ErrDelivery, err)})
			case <-c.quit:
				return
			}
			c.inflight.Add(-1)
		case <-c.quit:
			return
		}
	}
}

type topic struct {
	client  *Client
	subject string
	closed  atomic.Bool
}

func (t *topic) Name() string { return t.subject }

// Enqueue publishes a copy of payload asynchronously.
func (t *topic) Enqueue(payload []byte) error {
	c := t.client
	if c.closed.Load() || t.closed.Load() {
		return core.ErrClientClosed
	}
	if n := c.inflight.Add(1); n > int64(c.opts.maxPending) {
		c.inflight.Add(-1)
		return fmt.Errorf("eventbridge/nats: %w: %d publishes pending", core.ErrQueueFull, c.opts.maxPending)
	}

	fut, err := c.js.PublishAsync(t.subject, bytes.Clone(payload), jetstream.WithStallWait(c.opts.stallWait))
	if err != nil {
		c.inflight.Add(-1)
		if errors.Is(err, jetstream.ErrTooManyStalledMsgs) {
			return fmt.Errorf("eventbridge/nats: %w: %w", core.ErrQueueFull, err)
		}
		return fmt.Errorf("eventbridge/nats: publish to %q: %w", t.subject, err)
	}
	c.pending <- pendingAck{subject: t.subject, future: fut}
	return nil
}

func (t *topic) Close() error {
	t.closed.Store(true)
	return nil
}

// validateURLs accepts nats://, tls://, ws:// and wss:// URLs or bare
// host:port pairs.
func validateURLs(urls []string) error {
	hosts := make([]string, 0, len(urls))
	for _, u := range urls {
		if scheme, rest, ok := strings.Cut(u, "://"); ok {
			switch scheme {
			case "nats", "tls", "ws", "wss":
			default:
				return fmt.Errorf("%w: unsupported scheme %q in %q", core.ErrConfig, scheme, u)
			}
			if at := strings.LastIndex(rest, "@"); at >= 0 {
				rest = rest[at+1:]
			}
			u = strings.TrimSuffix(rest, "/")
		}
		hosts = append(hosts, u)
	}
	return broker.ValidateHostPorts(hosts)
}

// validateSubject rejects subjects that cannot be published to.
func validateSubject(subject string) error {
	if subject == "" {
		return errors.New("empty subject")
	}
	if strings.ContainsAny(subject, " \t\r\n*>") {
		return fmt.Errorf("subject %q contains whitespace or wildcards", subject)
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return fmt.Errorf("subject %q has an empty token", subject)
		}
	}
	return nil
}

// sanitizeStreamName converts a subject to a valid stream name
// by replacing special characters.
func sanitizeStreamName(topic string) string {
	buf := make([]byte, len(topic))
	for i := 0; i < len(topic); i++ {
		c := topic[i]
		if c == '.' || c == '*' || c == '>' {
			buf[i] = '-'
		} else {
			buf[i] = c
		}
	}
	return string(buf)
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["stream"].(bool); ok {
		opts = append(opts, WithEnsureStream(v))
	}
	if v, ok := cfg.Extra["replicas"].(int); ok {
		opts = append(opts, WithReplicas(v))
	}
	if v, ok := cfg.Extra["max_pending"].(int); ok {
		opts = append(opts, WithMaxPending(v))
	}
	if v, ok := cfg.Extra["max_age_seconds"].(int); ok {
		opts = append(opts, WithMaxAge(time.Duration(v)*time.Second))
	}
	if v, ok := cfg.Extra["storage"].(string); ok {
		if s, ok := storageByName(v); ok {
			opts = append(opts, WithStorage(s))
		}
	}
	if v, ok := cfg.Extra["retention"].(string); ok {
		if r, ok := retentionByName(v); ok {
			opts = append(opts, WithRetention(r))
		}
	}
	return opts
}
