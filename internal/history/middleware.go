// Package history synchronizes per-user conversation history across
// sessions: every message-pipeline event is appended to a durable per-user
// log, and logged messages are replayed into newly joined sessions so the
// transcript stays continuous across reconnects.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/relay"
	"github.com/syncrelay/syncrelay/internal/store"
	"github.com/syncrelay/syncrelay/internal/turn"
)

// Replayer delivers one ordered batch of past activities into a session.
type Replayer interface {
	BulkDeliver(ctx context.Context, target string, activities []*domain.Activity) error
}

// Synchronizer is turn middleware that logs every inbound, sent, updated and
// deleted activity to the per-user log, and replays logged message history
// into a session when its join event arrives.
//
// Logging failures are contained: message delivery to the user always takes
// precedence over completeness of the history log.
type Synchronizer struct {
	store     store.Store
	replayer  Replayer
	batchSize int
	log       zerolog.Logger
}

// NewSynchronizer creates the middleware. batchSize is clamped to the
// channel's bulk-delivery ceiling.
func NewSynchronizer(st store.Store, rp Replayer, batchSize int, log zerolog.Logger) *Synchronizer {
	if batchSize <= 0 || batchSize > relay.MaxBatchSize {
		batchSize = relay.MaxBatchSize
	}
	return &Synchronizer{
		store:     st,
		replayer:  rp,
		batchSize: batchSize,
		log:       log,
	}
}

// OnTurn implements turn.Middleware.
func (s *Synchronizer) OnTurn(ctx context.Context, tc *turn.Context, next turn.NextFunc) error {
	a := tc.Activity()
	if a == nil {
		return next(ctx)
	}

	if a.Kind == domain.KindEvent && a.Name == domain.EventJoin {
		s.replayHistory(ctx, a)
	}

	// Normalize identity before anything is keyed on it. A missing user id is
	// malformed input; substituting a placeholder keeps logging from failing
	// on a missing key.
	if a.From.ID == "" {
		a.From.ID = "anonymous-" + uuid.New().String()
	}
	if a.From.Role == "" {
		a.From.Role = domain.RoleUser
	}
	userID := a.From.ID

	s.logActivity(ctx, a.Clone(), userID)

	// Log sends only after the wrapped pipeline delivered them, so log order
	// matches the order activities became visible to the user.
	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*domain.Activity, next func() ([]string, error)) ([]string, error) {
		ids, err := next()
		if err != nil {
			return ids, err
		}
		for _, sent := range activities {
			s.logActivity(ctx, sent.Clone(), userID)
		}
		return ids, nil
	})

	tc.OnUpdateActivity(func(ctx context.Context, tc *turn.Context, activity *domain.Activity, next func() error) error {
		if err := next(); err != nil {
			return err
		}
		upd := activity.Clone()
		upd.Kind = domain.KindMessageUpdate
		s.logActivity(ctx, upd, userID)
		return nil
	})

	tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref *domain.ConversationRef, next func() error) error {
		if err := next(); err != nil {
			return err
		}
		// The original body is gone; synthesize a deletion record from the
		// reference.
		del := &domain.Activity{
			ID:           ref.ActivityID,
			Kind:         domain.KindMessageDelete,
			Conversation: ref.Conversation,
			From:         domain.Account{ID: userID},
		}
		s.logActivity(ctx, del, userID)
		return nil
	})

	return next(ctx)
}

// replayHistory records the new session binding and pushes the user's logged
// messages into the joined session in bounded, strictly sequential batches.
// Best effort throughout: a failed batch is recorded and the next one
// proceeds; a store failure aborts only the replay, never the turn.
func (s *Synchronizer) replayHistory(ctx context.Context, a *domain.Activity) {
	userID := a.From.ID
	if userID == "" {
		s.log.Warn().Str("activity_id", a.ID).Msg("join event without user identity, skipping replay")
		return
	}

	if err := s.store.SetSessionBinding(ctx, userID, a.Conversation.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("record session binding")
	}

	past, err := s.store.History(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("load history, skipping replay")
		return
	}

	// Replaying update/delete records or channel events would re-trigger
	// their semantics in the new session; only plain messages are replayed.
	messages := make([]*domain.Activity, 0, len(past))
	for _, logged := range past {
		if logged.Kind == domain.KindMessage {
			messages = append(messages, logged)
		}
	}
	if len(messages) == 0 {
		return
	}

	target := a.Conversation.ID
	if target == "" {
		target = a.ID
	}

	for start := 0; start < len(messages); start += s.batchSize {
		if ctx.Err() != nil {
			s.log.Warn().Str("user_id", userID).Int("delivered", start).Msg("replay cancelled")
			return
		}
		end := min(start+s.batchSize, len(messages))
		if err := s.replayer.BulkDeliver(ctx, target, messages[start:end]); err != nil {
			s.log.Error().Err(err).
				Str("user_id", userID).
				Int("batch_start", start).
				Int("batch_size", end-start).
				Msg("deliver history batch")
		}
	}
}

func (s *Synchronizer) logActivity(ctx context.Context, a *domain.Activity, userID string) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if err := s.store.Append(ctx, userID, a); err != nil {
		s.log.Error().Err(err).
			Str("user_id", userID).
			Str("kind", string(a.Kind)).
			Msg("append activity to log")
	}
}
