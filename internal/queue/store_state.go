package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known state keys recorded by the supervisor.
const (
	KeyPID         = "PID"
	KeyPIDFile     = "PID_FILE"
	KeyRunID       = "RUN_ID"
	KeyConfigPath  = "CONFIG_PATH"
	KeyConfigLevel = "CONFIG_LEVEL"
)

// SetState upserts a key/value pair.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(s.currentTime()),
	); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// GetState reads a value. ok is false when the key was never set.
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}
