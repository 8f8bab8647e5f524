package turn

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// NextFunc yields to the remainder of the middleware chain.
type NextFunc func(ctx context.Context) error

// Middleware observes a turn and decides when to yield to the rest of the
// chain.
type Middleware interface {
	OnTurn(ctx context.Context, tc *Context, next NextFunc) error
}

// Handler is the conversational logic at the end of the chain. The dialog
// brain behind it is an external collaborator of this service.
type Handler interface {
	OnActivity(ctx context.Context, tc *Context) error
}

// Adapter runs each inbound activity through the middleware chain and hands
// it to the handler.
type Adapter struct {
	sender     ChannelSender
	middleware []Middleware
	log        zerolog.Logger
}

// NewAdapter creates an adapter that delivers outbound operations through
// sender.
func NewAdapter(sender ChannelSender, log zerolog.Logger) *Adapter {
	return &Adapter{sender: sender, log: log}
}

// Use appends middleware to the chain. Middleware runs in registration order.
func (a *Adapter) Use(m Middleware) *Adapter {
	a.middleware = append(a.middleware, m)
	return a
}

// ProcessActivity runs one turn: middleware chain first, then the handler.
func (a *Adapter) ProcessActivity(ctx context.Context, activity *domain.Activity, h Handler) error {
	tc := NewContext(activity, a.sender)

	var run func(i int) NextFunc
	run = func(i int) NextFunc {
		return func(ctx context.Context) error {
			if i < len(a.middleware) {
				return a.middleware[i].OnTurn(ctx, tc, run(i+1))
			}
			if h == nil {
				return nil
			}
			return h.OnActivity(ctx, tc)
		}
	}

	if err := run(0)(ctx); err != nil {
		a.log.Error().Err(err).Str("activity_id", activity.ID).Msg("turn failed")
		return err
	}
	return nil
}
