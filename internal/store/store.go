// Package store persists per-user activity logs and session bindings.
//
// Any backend offering key/value upsert+get for the binding and list-append +
// list-read for the log satisfies the contract; the backend is selected once
// at startup from the DSN, never by type inspection at call sites.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// Store is the durable backend contract shared by the middleware and the
// token gateway.
type Store interface {
	// SetSessionBinding upserts the userID -> sessionID mapping.
	// Last write wins; there is no history of prior sessions.
	SetSessionBinding(ctx context.Context, userID, sessionID string) error

	// HasBinding reports whether any binding has ever been set for userID.
	// An empty sessionID still counts as "user known".
	HasBinding(ctx context.Context, userID string) (bool, error)

	// GetSessionBinding returns the bound session id, or "" if unset.
	GetSessionBinding(ctx context.Context, userID string) (string, error)

	// Append adds one activity to the end of the user's log. It never
	// partially writes.
	Append(ctx context.Context, userID string, a *domain.Activity) error

	// History returns all activities for userID in append order. An unknown
	// user yields an empty slice, not an error.
	History(ctx context.Context, userID string) ([]*domain.Activity, error)

	Close() error
}

// Open selects a backend from the DSN scheme: memory:// for the in-process
// store, postgres:// for PostgreSQL, anything else is treated as a SQLite
// DSN (including ":memory:" and "file:..." forms).
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty store dsn")
	}

	scheme := ""
	if i := strings.Index(dsn, "://"); i >= 0 {
		scheme = strings.ToLower(dsn[:i])
	}

	switch scheme {
	case "memory", "mem":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgresStore(dsn), nil
	case "", "sqlite":
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", scheme)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}
