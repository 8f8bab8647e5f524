package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// PostgresStore implements Store on PostgreSQL. The connection is opened
// lazily on first use so constructing the store never blocks startup on an
// unreachable backend.
type PostgresStore struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresStore creates a Postgres-backed store for the given DSN.
func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

func (p *PostgresStore) ensureReady(ctx context.Context) error {
	p.initOnce.Do(func() {
		db, err := sql.Open("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		migrations := []string{
			`CREATE TABLE IF NOT EXISTS session_bindings (
				user_id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS activities (
				seq BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities (user_id, seq)`,
		}
		for _, m := range migrations {
			if _, err := db.ExecContext(ctx, m); err != nil {
				_ = db.Close()
				p.initErr = err
				return
			}
		}
		p.db = db
	})
	return p.initErr
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresStore) SetSessionBinding(ctx context.Context, userID, sessionID string) error {
	if err := p.ensureReady(ctx); err != nil {
		return storageErr("set session binding", err)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO session_bindings (user_id, session_id, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET session_id = EXCLUDED.session_id, updated_at = NOW()`,
		userID, sessionID)
	if err != nil {
		return storageErr("set session binding", err)
	}
	return nil
}

func (p *PostgresStore) HasBinding(ctx context.Context, userID string) (bool, error) {
	if err := p.ensureReady(ctx); err != nil {
		return false, storageErr("has binding", err)
	}
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_bindings WHERE user_id = $1)`,
		userID).Scan(&exists)
	if err != nil {
		return false, storageErr("has binding", err)
	}
	return exists, nil
}

func (p *PostgresStore) GetSessionBinding(ctx context.Context, userID string) (string, error) {
	if err := p.ensureReady(ctx); err != nil {
		return "", storageErr("get session binding", err)
	}
	var sessionID string
	err := p.db.QueryRowContext(ctx,
		`SELECT session_id FROM session_bindings WHERE user_id = $1`,
		userID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageErr("get session binding", err)
	}
	return sessionID, nil
}

func (p *PostgresStore) Append(ctx context.Context, userID string, a *domain.Activity) error {
	if err := p.ensureReady(ctx); err != nil {
		return storageErr("append activity", err)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO activities (user_id, payload) VALUES ($1, $2)`,
		userID, string(payload))
	if err != nil {
		return storageErr("append activity", err)
	}
	return nil
}

func (p *PostgresStore) History(ctx context.Context, userID string) ([]*domain.Activity, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, storageErr("read history", err)
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT payload FROM activities WHERE user_id = $1 ORDER BY seq ASC`,
		userID)
	if err != nil {
		return nil, storageErr("read history", err)
	}
	defer rows.Close()

	var activities []*domain.Activity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr("read history", err)
		}
		var a domain.Activity
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode activity: %w", err)
		}
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read history", err)
	}
	return activities, nil
}
