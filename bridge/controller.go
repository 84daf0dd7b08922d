package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
	"github.com/miladsoleymani/eventbridge/core/middleware"
)

// RunState values of the driver loop flag.
const (
	StateRunning int32 = iota + 1
	StateStopRequested
	StateStopped
)

type phase int

const (
	phaseUninitialized phase = iota
	phaseStarted
	phaseStopping
	phaseStopped
)

func (p phase) String() string {
	switch p {
	case phaseStarted:
		return "started"
	case phaseStopping:
		return "stopping"
	case phaseStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// Controller starts and stops one bridge: it owns the producer client, the
// topic handle and the event source registration, and runs the background
// loop that polls the client for delivery reports.
//
// Design decisions:
//   - Handles are created and destroyed only here; the Bridge just uses them.
//   - Start acquires client, topic, registration in that order and releases
//     them in reverse on any failure.
//   - The driver loop polls on a timer so delivery reports are dispatched
//     even when no events arrive.
//   - Stop is bounded by its timeout plus the release wait. Unbinding, the
//     driver wait and the flush share one deadline, and every step that
//     can block runs on its own goroutine.
type Controller struct {
	source core.Source
	opts   options

	mu     sync.Mutex
	phase  phase
	cfg    broker.Config
	client core.Client
	topic  core.Topic
	token  core.Token

	run    atomic.Int32
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a Controller that will register with src.
func New(src core.Source, fns ...Option) *Controller {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Controller{source: src, opts: opts}
}

// Start builds the producer client and topic from cfg, registers the bridge
// for all events and starts the driver loop. On failure nothing acquired so
// far is left open; the error wraps core.ErrConfig, core.ErrResource or
// core.ErrRegistration.
func (c *Controller) Start(cfg broker.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		return core.ErrNoSource
	}
	if c.phase == phaseStarted || c.phase == phaseStopping {
		return core.ErrAlreadyStarted
	}

	logger := c.opts.logger.With("driver", cfg.DriverName(), "topic", cfg.Topic)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid broker configuration", "error", err)
		return err
	}

	factory := c.opts.factory
	if factory == nil {
		f, err := broker.Lookup(cfg.DriverName())
		if err != nil {
			logger.Error("failed to create producer", "error", err)
			return err
		}
		factory = f
	}

	client, err := factory(cfg, c.deliver)
	if err != nil {
		err = startupError(core.ErrConfig, "create producer", err)
		logger.Error("failed to create producer", "brokers", cfg.Brokers, "error", err)
		return err
	}

	topic, err := client.Topic(cfg.Topic)
	if err != nil {
		err = startupError(core.ErrResource, "create topic "+cfg.Topic, err)
		logger.Error("failed to create topic object", "error", err)
		c.release(nil, client)
		return err
	}

	b := NewBridge(client, topic, c.opts.encoder, c.opts.logger)
	mws := append([]core.Middleware{middleware.Recovery(c.opts.logger)}, c.opts.middlewares...)
	handler := core.Chain(b.Handle, mws...)

	tok, err := c.source.Register(core.FilterAll, func(rec core.Record) {
		_ = handler(context.Background(), rec)
	})
	if err != nil {
		err = startupError(core.ErrRegistration, "register handler", err)
		logger.Error("couldn't bind to event source", "error", err)
		c.release(topic, client)
		return err
	}

	c.cfg = cfg
	c.client = client
	c.topic = topic
	c.token = tok
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.run.Store(StateRunning)
	go c.drive(client, c.stopCh, c.done)

	c.phase = phaseStarted
	logger.Info("bridge started", "brokers", cfg.Brokers)
	return nil
}

// Stop unregisters the bridge and drains the producer. Unregistering and
// delivery of pending messages share one deadline, timeout from now
// (DefaultFlushTimeout when timeout is zero); running out of time is
// logged, not returned. Releasing the topic and client gets whatever is
// left of the deadline but at least the release wait, so Stop returns
// within timeout plus the release wait. Steps that overrun are abandoned
// on their goroutine. The returned error reports failures closing the
// topic or client.
func (c *Controller) Stop(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != phaseStarted {
		return core.ErrNotStarted
	}
	c.phase = phaseStopping
	if timeout <= 0 {
		timeout = c.opts.flushTimeout
	}
	logger := c.opts.logger.With("topic", c.cfg.Topic)
	logger.Debug("shutdown requested, stopping driver loop")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.run.CompareAndSwap(StateRunning, StateStopRequested)
	close(c.stopCh)
	c.awaitDriver(ctx, logger)

	c.unbind(ctx, logger)
	c.flush(ctx, timeout, logger)

	err := c.releaseBounded(ctx, logger)
	if err != nil {
		logger.Error("failed to release producer", "error", err)
	}

	c.cfg = broker.Config{}
	c.client = nil
	c.topic = nil
	c.token = ""
	c.phase = phaseStopped
	logger.Info("bridge stopped")
	return err
}

// Running reports whether the controller has been started and not stopped.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == phaseStarted
}

// RunState returns the driver loop flag (StateRunning, StateStopRequested
// or StateStopped), or 0 before the first Start.
func (c *Controller) RunState() int32 {
	return c.run.Load()
}

// drive polls client until the run flag leaves StateRunning.
func (c *Controller) drive(client core.Client, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.pollInterval)
	defer ticker.Stop()

	for c.run.Load() == StateRunning {
		select {
		case <-ticker.C:
			client.Poll()
		case <-stop:
		}
	}
	c.run.Store(StateStopped)
	c.opts.logger.Debug("driver loop ended")
}

func (c *Controller) awaitDriver(ctx context.Context, logger *slog.Logger) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.stopWait)
	defer cancel()

	select {
	case <-c.done:
	case <-waitCtx.Done():
		logger.Warn("driver loop did not stop in time", "error", core.ErrShutdownTimeout)
	}
}

// await runs fn on its own goroutine and waits for it until ctx is done.
// done is false when fn was abandoned still running.
func await(ctx context.Context, fn func() error) (done bool, err error) {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	select {
	case res := <-errCh:
		return true, res
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// unbind removes the registration. A handler still running at the deadline
// is left to finish on its own.
func (c *Controller) unbind(ctx context.Context, logger *slog.Logger) {
	src, tok := c.source, c.token
	done, err := await(ctx, func() error { return src.Unregister(tok) })
	switch {
	case !done:
		logger.Warn("event handler still running at shutdown deadline", "error", core.ErrShutdownTimeout)
	case err != nil:
		logger.Warn("failed to unbind from event source", "error", err)
	}
}

// flush gives in-flight messages a last chance. A client that ignores ctx
// cannot hold Stop past the deadline.
func (c *Controller) flush(ctx context.Context, timeout time.Duration, logger *slog.Logger) {
	client := c.client
	done, err := await(ctx, func() error { return client.Flush(ctx) })
	switch {
	case !done, errors.Is(err, context.DeadlineExceeded), err != nil && ctx.Err() != nil:
		logger.Warn("flush did not complete", "timeout", timeout, "error", core.ErrShutdownTimeout)
	case err != nil:
		logger.Warn("flush failed", "error", err)
	}
}

// releaseBounded closes topic and client within the rest of ctx's deadline,
// extended to at least the release wait.
func (c *Controller) releaseBounded(ctx context.Context, logger *slog.Logger) error {
	wait := c.opts.releaseWait
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > wait {
			wait = left
		}
	}
	rctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	topic, client := c.topic, c.client
	done, err := await(rctx, func() error { return c.release(topic, client) })
	if !done {
		logger.Warn("producer did not close in time", "wait", wait, "error", core.ErrShutdownTimeout)
		return nil
	}
	return err
}

// release closes topic then client, skipping nil handles.
func (c *Controller) release(topic core.Topic, client core.Client) error {
	var errs []error
	if topic != nil {
		if err := topic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("eventbridge: close topic: %w", err))
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("eventbridge: close client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// deliver is the client's delivery callback.
func (c *Controller) deliver(r core.DeliveryReport) {
	if r.Err != nil {
		c.opts.logger.Warn("message delivery failed", "topic", r.Topic, "error", r.Err)
	}
	if c.opts.onDelivery != nil {
		c.opts.onDelivery(r)
	}
}

// startupError tags err with kind unless it already carries a startup kind.
func startupError(kind error, op string, err error) error {
	if errors.Is(err, core.ErrConfig) || errors.Is(err, core.ErrResource) || errors.Is(err, core.ErrRegistration) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
