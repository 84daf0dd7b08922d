package core

import "sync/atomic"

// DeliveryQueue buffers delivery reports produced on broker client goroutines
// until the owner drains them from Poll. Pushing never blocks: when the
// buffer is full the report is dropped and counted.
type DeliveryQueue struct {
	ch      chan DeliveryReport
	dropped atomic.Int64
}

// NewDeliveryQueue creates a queue holding up to size reports.
func NewDeliveryQueue(size int) *DeliveryQueue {
	if size < 1 {
		size = 1
	}
	return &DeliveryQueue{ch: make(chan DeliveryReport, size)}
}

// Push stores r, dropping it if the queue is full.
func (q *DeliveryQueue) Push(r DeliveryReport) {
	select {
	case q.ch <- r:
	default:
		q.dropped.Add(1)
	}
}

// Drain hands every currently buffered report to fn without waiting for more.
// A nil fn discards them.
func (q *DeliveryQueue) Drain(fn DeliveryFunc) int {
	n := 0
	for {
		select {
		case r := <-q.ch:
			n++
			if fn != nil {
				fn(r)
			}
		default:
			return n
		}
	}
}

// Dropped returns how many reports were discarded because the queue was full.
func (q *DeliveryQueue) Dropped() int64 {
	return q.dropped.Load()
}
