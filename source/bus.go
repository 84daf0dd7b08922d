// Package source provides an in-process event source for the bridge.
package source

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/miladsoleymani/eventbridge/core"
)

// ErrUnknownToken is returned by Unregister for a token it never issued or
// already removed.
var ErrUnknownToken = errors.New("eventbridge/source: unknown registration token")

// Bus implements core.Source. Emit calls matching handlers synchronously on
// the emitting goroutine, so handlers must be safe for concurrent use when
// several goroutines emit.
type Bus struct {
	mu      sync.RWMutex
	subs    map[core.Token]*subscription
	order   []core.Token
	matcher core.TopicMatcher
}

type subscription struct {
	filter  core.Filter
	handler core.EventHandler
	active  sync.WaitGroup
}

// NewBus creates an empty Bus using core.DefaultMatcher for filters.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[core.Token]*subscription),
		matcher: core.DefaultMatcher{},
	}
}

// SetMatcher replaces the filter matcher. Must be called before Register.
func (b *Bus) SetMatcher(m core.TopicMatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matcher = m
}

// Register adds h for events passing filter.
func (b *Bus) Register(filter core.Filter, h core.EventHandler) (core.Token, error) {
	if h == nil {
		return "", errors.New("eventbridge/source: handler is nil")
	}
	tok := core.Token(uuid.NewString())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[tok] = &subscription{filter: filter, handler: h}
	b.order = append(b.order, tok)
	return tok, nil
}

// Unregister removes the registration and waits for calls to its handler
// that are already running. No call to the handler starts after it returns.
// It must not be called from inside that handler.
func (b *Bus) Unregister(tok core.Token) error {
	b.mu.Lock()
	sub, ok := b.subs[tok]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownToken
	}
	delete(b.subs, tok)
	for i, t := range b.order {
		if t == tok {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.active.Wait()
	return nil
}

// Emit delivers rec to every matching handler in registration order and
// returns how many handlers ran.
func (b *Bus) Emit(rec core.Record) int {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.order))
	for _, tok := range b.order {
		sub := b.subs[tok]
		if sub.filter.Matches(b.matcher, rec) {
			sub.active.Add(1)
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		func() {
			defer sub.active.Done()
			sub.handler(rec)
		}()
	}
	return len(matched)
}

// Len returns the number of registrations.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
