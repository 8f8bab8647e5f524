package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// SQLiteStore implements Store using SQLite. The AUTOINCREMENT sequence on
// the activities table is the append order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_bindings (
			user_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SetSessionBinding(ctx context.Context, userID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_bindings (user_id, session_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET session_id = excluded.session_id, updated_at = CURRENT_TIMESTAMP`,
		userID, sessionID)
	if err != nil {
		return storageErr("set session binding", err)
	}
	return nil
}

func (s *SQLiteStore) HasBinding(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_bindings WHERE user_id = ?)`,
		userID).Scan(&exists)
	if err != nil {
		return false, storageErr("has binding", err)
	}
	return exists, nil
}

func (s *SQLiteStore) GetSessionBinding(ctx context.Context, userID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM session_bindings WHERE user_id = ?`,
		userID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageErr("get session binding", err)
	}
	return sessionID, nil
}

func (s *SQLiteStore) Append(ctx context.Context, userID string, a *domain.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities (user_id, payload) VALUES (?, ?)`,
		userID, string(payload))
	if err != nil {
		return storageErr("append activity", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, userID string) ([]*domain.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM activities WHERE user_id = ? ORDER BY seq ASC`,
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
