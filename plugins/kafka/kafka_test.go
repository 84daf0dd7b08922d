package kafka

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core"
)

// fakeWriter records messages instead of sending them. With block set,
// WriteMessages waits for it to close or for ctx, like a write stuck on
// broker metadata.
type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	writeErr error
	block    chan struct{}
	closes   int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	block, writeErr := w.block, w.writeErr
	w.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if writeErr != nil {
		return writeErr
	}
	w.mu.Lock()
	w.msgs = append(w.msgs, msgs...)
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

// waitWritten waits until the sender has handed n messages to the writer.
func (w *fakeWriter) waitWritten(t *testing.T, n int) []kafka.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := w.written(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("writer got %d messages, want %d", len(w.written()), n)
	return nil
}

func newTestClient(t *testing.T, onDelivery core.DeliveryFunc, fns ...Option) (*Client, *fakeWriter) {
	t.Helper()
	w := &fakeWriter{}
	c := newClient(onDelivery, fns...)
	c.w = w
	go c.send()
	t.Cleanup(func() { _ = c.Close() })
	return c, w
}

func flush(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNew_ValidatesBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {"localhost"}, {"localhost:0"}, {":9092"}} {
		if _, err := New(brokers, nil); !errors.Is(err, core.ErrConfig) {
			t.Errorf("New(%v) = %v, want ErrConfig", brokers, err)
		}
	}

	c, err := New([]string{"localhost:9092"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// silentBroker accepts TCP connections and never answers.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestClient_UnresponsiveBrokerDoesNotBlock(t *testing.T) {
	c, err := New([]string{silentBroker(t)}, nil, WithCloseTimeout(300*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tp, err := c.Topic("cdr")
	if err != nil {
		t.Fatalf("Topic: %v", err)
	}

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := tp.Enqueue([]byte(`{"n":"1"}`)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Enqueue waited %v on a broker that never answers", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush = %v, want deadline exceeded", err)
	}

	start = time.Now()
	_ = c.Close()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %v with a 300ms close timeout", elapsed)
	}
}

func TestTopic_BlockedWriterDoesNotBlockEnqueue(t *testing.T) {
	var mu sync.Mutex
	var reports []core.DeliveryReport
	c, w := newTestClient(t, func(r core.DeliveryReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	}, WithMaxInFlight(3), WithCloseTimeout(time.Second))
	w.mu.Lock()
	w.block = make(chan struct{})
	w.mu.Unlock()
	tp, _ := c.Topic("cdr")

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			if err := tp.Enqueue([]byte("x")); err != nil {
				done <- err
				return
			}
		}
		done <- tp.Enqueue([]byte("x"))
	}()

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrQueueFull) {
			t.Fatalf("fourth Enqueue = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked behind a stalled writer")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c.Poll()

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want one failure per queued message", len(reports))
	}
	for _, r := range reports {
		if !errors.Is(r.Err, core.ErrDelivery) {
			t.Errorf("report %+v should be a delivery failure", r)
		}
	}
	if c.InFlight() != 0 {
		t.Errorf("InFlight() = %d after Close", c.InFlight())
	}
}

func TestClient_TopicNames(t *testing.T) {
	c, _ := newTestClient(t, nil)

	for _, name := range []string{"cdr", "fs.events", "call_detail-records"} {
		tp, err := c.Topic(name)
		if err != nil {
			t.Errorf("Topic(%q): %v", name, err)
			continue
		}
		if tp.Name() != name {
			t.Errorf("Name() = %q, want %q", tp.Name(), name)
		}
	}
	for _, name := range []string{"", ".", "..", "has space", "slash/topic", strings.Repeat("a", 250)} {
		if _, err := c.Topic(name); !errors.Is(err, core.ErrResource) {
			t.Errorf("Topic(%q) = %v, want ErrResource", name, err)
		}
	}
}

func TestTopic_EnqueueCopiesPayload(t *testing.T) {
	c, w := newTestClient(t, nil)
	tp, _ := c.Topic("cdr")

	payload := []byte(`{"a":"b"}`)
	if err := tp.Enqueue(payload); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	payload[2] = 'X'

	msgs := w.waitWritten(t, 1)
	if string(msgs[0].Value) != `{"a":"b"}` {
		t.Errorf("message value changed with caller buffer: %s", msgs[0].Value)
	}
	if msgs[0].Topic != "cdr" || msgs[0].Key != nil {
		t.Errorf("unexpected message: topic=%q key=%q", msgs[0].Topic, msgs[0].Key)
	}
	if c.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", c.InFlight())
	}
}

func TestClient_CompletionReports(t *testing.T) {
	var reports []core.DeliveryReport
	c, w := newTestClient(t, func(r core.DeliveryReport) { reports = append(reports, r) })
	tp, _ := c.Topic("cdr")

	_ = tp.Enqueue([]byte("1"))
	_ = tp.Enqueue([]byte("2"))
	c.complete(w.waitWritten(t, 2), kafka.WriteErrors{nil, errors.New("message too large")})

	if len(reports) != 0 {
		t.Fatal("reports must wait for Poll")
	}
	c.Poll()

	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if reports[0].Err != nil || reports[0].Topic != "cdr" {
		t.Errorf("first report = %+v", reports[0])
	}
	if !errors.Is(reports[1].Err, core.ErrDelivery) {
		t.Errorf("second report should be a delivery failure, got %v", reports[1].Err)
	}
	if c.InFlight() != 0 {
		t.Errorf("InFlight() = %d after completion", c.InFlight())
	}
}

func TestClient_BatchErrorFailsAll(t *testing.T) {
	var failed int
	c, w := newTestClient(t, func(r core.DeliveryReport) {
		if r.Err != nil {
			failed++
		}
	})
	tp, _ := c.Topic("cdr")
	for i := 0; i < 3; i++ {
		_ = tp.Enqueue([]byte("x"))
	}
	c.complete(w.waitWritten(t, 3), kafka.LeaderNotAvailable)
	c.Poll()

	if failed != 3 {
		t.Errorf("got %d failed reports, want 3", failed)
	}
}

func TestTopic_QueueFull(t *testing.T) {
	c, w := newTestClient(t, nil, WithMaxInFlight(2))
	tp, _ := c.Topic("cdr")

	_ = tp.Enqueue([]byte("1"))
	_ = tp.Enqueue([]byte("2"))
	if err := tp.Enqueue([]byte("3")); !errors.Is(err, core.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	c.complete(w.waitWritten(t, 2)[:1], nil)
	if err := tp.Enqueue([]byte("3")); err != nil {
		t.Errorf("enqueue after completion freed space: %v", err)
	}
}

func TestTopic_WriteErrorIsReported(t *testing.T) {
	var mu sync.Mutex
	var reports []core.DeliveryReport
	c, w := newTestClient(t, func(r core.DeliveryReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	w.mu.Lock()
	w.writeErr = kafka.MessageTooLargeError{}
	w.mu.Unlock()
	tp, _ := c.Topic("cdr")

	if err := tp.Enqueue([]byte("x")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	flush(t, c)

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 || !errors.Is(reports[0].Err, core.ErrDelivery) {
		t.Errorf("write failure should surface as a delivery report, got %+v", reports)
	}
}

func TestClient_FlushWaitsForCompletion(t *testing.T) {
	var mu sync.Mutex
	var reports int
	c, w := newTestClient(t, func(core.DeliveryReport) {
		mu.Lock()
		reports++
		mu.Unlock()
	})
	tp, _ := c.Topic("cdr")
	_ = tp.Enqueue([]byte("x"))
	msgs := w.waitWritten(t, 1)

	go func() {
		time.Sleep(30 * time.Millisecond)
		c.complete(msgs, nil)
	}()

	flush(t, c)
	mu.Lock()
	defer mu.Unlock()
	if reports != 1 {
		t.Errorf("Flush should dispatch reports, got %d", reports)
	}
}

func TestClient_FlushTimeout(t *testing.T) {
	c, _ := newTestClient(t, nil)
	tp, _ := c.Topic("cdr")
	_ = tp.Enqueue([]byte("x"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestClient_Close(t *testing.T) {
	c, w := newTestClient(t, nil)
	tp, _ := c.Topic("cdr")

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closes != 1 {
		t.Errorf("writer closed %d times, want 1", w.closes)
	}
	if err := tp.Enqueue([]byte("x")); !errors.Is(err, core.ErrClientClosed) {
		t.Errorf("Enqueue after Close = %v", err)
	}
	if _, err := c.Topic("cdr"); !errors.Is(err, core.ErrClientClosed) {
		t.Errorf("Topic after Close = %v", err)
	}
}

// hangingWriter never finishes closing.
type hangingWriter struct{ fakeWriter }

func (*hangingWriter) Close() error {
	select {}
}

func TestClient_CloseIsBounded(t *testing.T) {
	c := newClient(nil, WithCloseTimeout(50*time.Millisecond))
	c.w = &hangingWriter{}
	go c.send()

	start := time.Now()
	err := c.Close()
	if !errors.Is(err, core.ErrShutdownTimeout) {
		t.Errorf("Close = %v, want ErrShutdownTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Close took %v with a 50ms close timeout", elapsed)
	}
}

func TestOptsFromConfig(t *testing.T) {
	cfg := broker.Config{Extra: map[string]any{
		"batch_size":           50,
		"batch_timeout_ms":     5,
		"max_in_flight":        10,
		"balancer":             "hash",
		"compression":          "snappy",
		"required_acks":        1,
		"write_timeout_ms":     2000,
		"max_attempts":         3,
		"write_backoff_max_ms": 500,
		"close_timeout_ms":     1500,
	}}
	opts := defaults()
	for _, fn := range optsFromConfig(cfg) {
		fn(&opts)
	}

	if opts.batchSize != 50 || opts.batchTimeout != 5*time.Millisecond || opts.maxInFlight != 10 {
		t.Errorf("batching options not applied: %+v", opts)
	}
	if _, ok := opts.balancer.(*kafka.Hash); !ok {
		t.Errorf("balancer = %T, want *kafka.Hash", opts.balancer)
	}
	if opts.compression != kafka.Snappy {
		t.Errorf("compression = %v", opts.compression)
	}
	if opts.requiredAcks != kafka.RequireOne {
		t.Errorf("required acks = %v", opts.requiredAcks)
	}
	if opts.writeTimeout != 2*time.Second || opts.maxAttempts != 3 || opts.writeBackoffMax != 500*time.Millisecond {
		t.Errorf("retry options not applied: %+v", opts)
	}
	if opts.closeTimeout != 1500*time.Millisecond {
		t.Errorf("close timeout = %v", opts.closeTimeout)
	}
	if optsFromConfig(broker.Config{}) != nil {
		t.Error("no extras should yield no options")
	}
}

func TestRegistered(t *testing.T) {
	if _, err := broker.Lookup("kafka"); err != nil {
		t.Fatalf("kafka driver not registered: %v", err)
	}
}
