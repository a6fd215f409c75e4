// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler consumes events from a Bus.
//
// The bus invokes every handler from its one dispatch goroutine, in publish
// order, so a slow handler holds back all later events. A returned error is
// logged by the bus and does not stop delivery to the remaining handlers.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function serve as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription detaches a handler from the bus. Unsubscribe may be called
// more than once; events already being dispatched can still reach the handler.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once   sync.Once
	detach func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.detach)
}
