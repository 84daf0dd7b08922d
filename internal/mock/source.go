package mock

import (
	"fmt"
	"sync"

	"github.com/miladsoleymani/eventbridge/core"
)

// Source is a test double for core.Source holding at most the handlers
// registered through it.
type Source struct {
	mu       sync.Mutex
	handlers map[core.Token]core.EventHandler
	filters  map[core.Token]core.Filter
	next     int

	RegisterErr   error
	UnregisterErr error

	unregistered int
}

func NewSource() *Source {
	return &Source{
		handlers: make(map[core.Token]core.EventHandler),
		filters:  make(map[core.Token]core.Filter),
	}
}

func (s *Source) Register(filter core.Filter, h core.EventHandler) (core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RegisterErr != nil {
		return "", s.RegisterErr
	}
	s.next++
	tok := core.Token(fmt.Sprintf("mock-%d", s.next))
	s.handlers[tok] = h
	s.filters[tok] = filter
	return tok, nil
}

func (s *Source) Unregister(tok core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregistered++
	if s.UnregisterErr != nil {
		return s.UnregisterErr
	}
	delete(s.handlers, tok)
	delete(s.filters, tok)
	return nil
}

// Emit invokes every registered handler on the calling goroutine.
func (s *Source) Emit(rec core.Record) {
	s.mu.Lock()
	hs := make([]core.EventHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(rec)
	}
}

// Handlers returns how many handlers are currently registered.
func (s *Source) Handlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Filters returns the filters of the current registrations.
func (s *Source) Filters() []core.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Filter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, f)
	}
	return out
}

// Unregistered returns how many times Unregister was called.
func (s *Source) Unregistered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregistered
}
