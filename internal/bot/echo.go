// Package bot contains the conversational handler the relay hosts. The
// dialog logic is an external collaborator of this service; EchoBot is the
// minimal stand-in used by the default wiring.
package bot

import (
	"context"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/turn"
)

// EchoBot replies to every message with its own text.
type EchoBot struct{}

// OnActivity implements turn.Handler.
func (b *EchoBot) OnActivity(ctx context.Context, tc *turn.Context) error {
	a := tc.Activity()
	if a.Kind != domain.KindMessage {
		return nil
	}

	reply := &domain.Activity{
		Kind:         domain.KindMessage,
		Text:         "Echo: " + a.Text,
		From:         domain.Account{ID: "bot", Role: domain.RoleBot},
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
	}
	_, err := tc.SendActivities(ctx, reply)
	return err
}
