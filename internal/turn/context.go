// Package turn provides the per-turn processing pipeline that middleware and
// the conversational handler run inside. Each inbound activity gets its own
// Context; hooks registered during the turn live only for that turn.
package turn

import (
	"context"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// ChannelSender performs the channel-side effect of each outbound operation.
type ChannelSender interface {
	SendActivities(ctx context.Context, activities []*domain.Activity) ([]string, error)
	UpdateActivity(ctx context.Context, activity *domain.Activity) error
	DeleteActivity(ctx context.Context, ref *domain.ConversationRef) error
}

// Hooks wrap the underlying operation: call next to run the rest of the
// pipeline, then observe its result. A hook that skips next suppresses the
// operation entirely.
type (
	SendHook   func(ctx context.Context, tc *Context, activities []*domain.Activity, next func() ([]string, error)) ([]string, error)
	UpdateHook func(ctx context.Context, tc *Context, activity *domain.Activity, next func() error) error
	DeleteHook func(ctx context.Context, tc *Context, ref *domain.ConversationRef, next func() error) error
)

// Context carries one inbound activity through a turn.
type Context struct {
	activity *domain.Activity
	sender   ChannelSender

	sendHooks   []SendHook
	updateHooks []UpdateHook
	deleteHooks []DeleteHook
}

// NewContext creates a turn context for an inbound activity.
func NewContext(activity *domain.Activity, sender ChannelSender) *Context {
	return &Context{activity: activity, sender: sender}
}

// Activity returns the inbound activity that started this turn.
func (tc *Context) Activity() *domain.Activity {
	return tc.activity
}

// OnSendActivities registers a hook around SendActivities. Hooks run in
// registration order, outermost first.
func (tc *Context) OnSendActivities(h SendHook) {
	tc.sendHooks = append(tc.sendHooks, h)
}

// OnUpdateActivity registers a hook around UpdateActivity.
func (tc *Context) OnUpdateActivity(h UpdateHook) {
	tc.updateHooks = append(tc.updateHooks, h)
}

// OnDeleteActivity registers a hook around DeleteActivity.
func (tc *Context) OnDeleteActivity(h DeleteHook) {
	tc.deleteHooks = append(tc.deleteHooks, h)
}

// SendActivities runs the send pipeline and delivers the activities to the
// channel.
func (tc *Context) SendActivities(ctx context.Context, activities ...*domain.Activity) ([]string, error) {
	var run func(i int) ([]string, error)
	run = func(i int) ([]string, error) {
		if i < len(tc.sendHooks) {
			return tc.sendHooks[i](ctx, tc, activities, func() ([]string, error) {
				return run(i + 1)
			})
		}
		return tc.sender.SendActivities(ctx, activities)
	}
	return run(0)
}

// UpdateActivity runs the update pipeline and replaces the activity on the
// channel.
func (tc *Context) UpdateActivity(ctx context.Context, activity *domain.Activity) error {
	var run func(i int) error
	run = func(i int) error {
		if i < len(tc.updateHooks) {
			return tc.updateHooks[i](ctx, tc, activity, func() error {
				return run(i + 1)
			})
		}
		return tc.sender.UpdateActivity(ctx, activity)
	}
	return run(0)
}

// DeleteActivity runs the delete pipeline and removes the referenced activity
// from the channel.
func (tc *Context) DeleteActivity(ctx context.Context, ref *domain.ConversationRef) error {
	var run func(i int) error
	run = func(i int) error {
		if i < len(tc.deleteHooks) {
			return tc.deleteHooks[i](ctx, tc, ref, func() error {
				return run(i + 1)
			})
		}
		return tc.sender.DeleteActivity(ctx, ref)
	}
	return run(0)
}
