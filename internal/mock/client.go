package mock

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/miladsoleymani/eventbridge/core"
)

// Client is a test double for core.Client. It records every call in Calls
// (shared with the topics it creates) so tests can assert ordering.
type Client struct {
	mu       sync.Mutex
	calls    []string
	enqueued []Enqueued
	reports  []core.DeliveryReport
	polls    int
	closes   int
	blocked  int

	onDelivery core.DeliveryFunc

	// TopicErr is returned by Topic when set.
	TopicErr error
	// EnqueueErr, when set, decides the result of each Enqueue by call index (0-based).
	EnqueueErr func(n int) error
	// EnqueueBlock, when set, makes Enqueue wait until it is closed.
	EnqueueBlock chan struct{}
	// FlushDelay makes Flush block for the given duration, ignoring its context.
	FlushDelay time.Duration
	// CloseDelay makes Close block for the given duration.
	CloseDelay time.Duration
	// FlushErr is returned by Flush when set.
	FlushErr error
	// CloseErr is returned by Close when set.
	CloseErr error

	topics []*Topic
}

// Enqueued records a payload handed to a topic.
type Enqueued struct {
	Topic   string
	Payload []byte
}

// NewClient creates a Client that delivers reports to onDelivery on Poll.
func NewClient(onDelivery core.DeliveryFunc) *Client {
	return &Client{onDelivery: onDelivery}
}

// SetDelivery replaces the delivery callback, like a factory would.
func (c *Client) SetDelivery(fn core.DeliveryFunc) {
	c.mu.Lock()
	c.onDelivery = fn
	c.mu.Unlock()
}

func (c *Client) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *Client) Topic(name string) (core.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("topic:" + name)
	if c.TopicErr != nil {
		return nil, c.TopicErr
	}
	t := &Topic{client: c, name: name}
	c.topics = append(c.topics, t)
	return t, nil
}

// Poll hands queued reports to the delivery callback.
func (c *Client) Poll() {
	c.mu.Lock()
	c.polls++
	reports := c.reports
	c.reports = nil
	fn := c.onDelivery
	c.mu.Unlock()

	for _, r := range reports {
		if fn != nil {
			fn(r)
		}
	}
}

func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.record("flush")
	delay, err := c.FlushDelay, c.FlushErr
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.record("close")
	c.closes++
	delay, err := c.CloseDelay, c.CloseErr
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

// Blocked returns how many Enqueue calls are waiting on EnqueueBlock.
func (c *Client) Blocked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// Report queues a delivery report for the next Poll.
func (c *Client) Report(r core.DeliveryReport) {
	c.mu.Lock()
	c.reports = append(c.reports, r)
	c.mu.Unlock()
}

// Calls returns the recorded call log.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Enqueued returns every payload accepted by Enqueue, in order.
func (c *Client) Enqueued() []Enqueued {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Enqueued, len(c.enqueued))
	copy(out, c.enqueued)
	return out
}

// Polls returns how many times Poll was called.
func (c *Client) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// Closes returns how many times Close was called.
func (c *Client) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Topic is the core.Topic handed out by Client.
type Topic struct {
	client   *Client
	name     string
	attempts int
	closes   int
}

func (t *Topic) Name() string { return t.name }

func (t *Topic) Enqueue(payload []byte) error {
	c := t.client
	c.mu.Lock()
	if block := c.EnqueueBlock; block != nil {
		c.blocked++
		c.mu.Unlock()
		<-block
		c.mu.Lock()
		c.blocked--
	}
	defer c.mu.Unlock()
	n := t.attempts
	t.attempts++
	if c.EnqueueErr != nil {
		if err := c.EnqueueErr(n); err != nil {
			return err
		}
	}
	c.enqueued = append(c.enqueued, Enqueued{Topic: t.name, Payload: bytes.Clone(payload)})
	return nil
}

func (t *Topic) Close() error {
	c := t.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("topic-close:" + t.name)
	t.closes++
	return nil
}

// Closes returns how many times Close was called on the topic.
func (t *Topic) Closes() int {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()
	return t.closes
}
