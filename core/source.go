package core

import "context"

// Token identifies a handler registration on a Source.
type Token string

// EventHandler is the callback a Source invokes once per event, synchronously,
// on the goroutine that raised the event.
type EventHandler func(rec Record)

// Source is the host facility that raises events.
type Source interface {
	Register(filter Filter, h EventHandler) (Token, error)
	Unregister(tok Token) error
}

// Handler is the per-event pipeline function wrapped by middleware.
// Unlike EventHandler it reports an error so middleware can observe failures.
type Handler func(ctx context.Context, rec Record) error

// Middleware wraps a Handler to add cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain applies mws so that the first one is outermost.
// Given middleware [A, B, C], the call order is A -> B -> C -> h.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
