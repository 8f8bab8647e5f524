package service

import (
	"context"
	"fmt"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/policy"
)

// ObtainCredential issues or resumes a session credential for userID. It
// performs exactly one relay call and only reads the session binding; the
// binding itself is written by the middleware when the join event arrives.
func (s *Service) ObtainCredential(ctx context.Context, userID, origin string) (*domain.Credential, error) {
	if s.policy != nil {
		decision, err := s.policy.Evaluate(ctx, policy.Input{
			UserID:         userID,
			Origin:         origin,
			TrustedOrigins: s.trustedOrigins,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
		}
		if decision != policy.DecisionAllow {
			s.log.Warn().Str("user_id", userID).Str("origin", origin).Msg("credential request rejected by policy")
			return nil, domain.ErrOriginNotTrusted
		}
	}

	known, err := s.store.HasBinding(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
	}

	if !known {
		cred, err := s.relay.CreateSession(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
		}
		// First contact: an empty conversation id tells the caller there is
		// no prior session, so the front-end knows to announce the join.
		cred.ConversationID = ""
		return cred, nil
	}

	sessionID, err := s.store.GetSessionBinding(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
	}

	cred, err := s.relay.DescribeSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
	}
	return cred, nil
}

// RefreshCredential renews a previously issued session token.
func (s *Service) RefreshCredential(ctx context.Context, token string) (*domain.Credential, error) {
	cred, err := s.relay.RefreshToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrObtainCredential, err)
	}
	return cred, nil
}

// UserHistory returns the logged activities for a user in append order.
func (s *Service) UserHistory(ctx context.Context, userID string) ([]*domain.Activity, error) {
	return s.store.History(ctx, userID)
}
