// Package service implements the session token gateway over the activity log
// store, the relay channel, and the issuance policy.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/domain"
	"github.com/syncrelay/syncrelay/internal/policy"
	"github.com/syncrelay/syncrelay/internal/store"
)

// RelayGateway is the slice of the relay channel the gateway consumes.
type RelayGateway interface {
	CreateSession(ctx context.Context, userID string) (*domain.Credential, error)
	DescribeSession(ctx context.Context, sessionID string) (*domain.Credential, error)
	RefreshToken(ctx context.Context, token string) (*domain.Credential, error)
}

// Service holds the gateway's collaborators.
type Service struct {
	store          store.Store
	relay          RelayGateway
	policy         *policy.Engine
	trustedOrigins []string
	log            zerolog.Logger
}

// New creates a new service. policyEngine may be nil to skip the issuance
// policy entirely.
func New(st store.Store, relay RelayGateway, policyEngine *policy.Engine, trustedOrigins []string, log zerolog.Logger) *Service {
	return &Service{
		store:          st,
		relay:          relay,
		policy:         policyEngine,
		trustedOrigins: trustedOrigins,
		log:            log,
	}
}
