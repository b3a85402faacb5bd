package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AddNotification persists an operator notification valid for expiry. It is
// skipped, returning false, while an unacknowledged and unexpired
// notification with the same category and key already exists.
func (s *Store) AddNotification(ctx context.Context, category NotificationCategory, key, message string, expiry time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("add notification: empty key")
	}
	now := s.currentTime()
	nowRaw := formatTime(now)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO notifications (category, item_key, message, created_at, expires_at, ack)
         SELECT ?, ?, ?, ?, ?, 0
         WHERE NOT EXISTS (
             SELECT 1 FROM notifications
             WHERE category = ? AND item_key = ? AND ack = 0 AND expires_at > ?
         )`,
		string(category), key, message, nowRaw, formatTime(now.Add(expiry)),
		string(category), key, nowRaw,
	)
	if err != nil {
		return false, fmt.Errorf("add notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add notification: %w", err)
	}
	return affected == 1, nil
}

// ActiveNotifications lists unacknowledged notifications that have not expired at now.
func (s *Store) ActiveNotifications(ctx context.Context, now time.Time) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, category, item_key, message, created_at, expires_at, ack
         FROM notifications WHERE ack = 0 AND expires_at > ?
         ORDER BY created_at ASC, id ASC`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AckNotification acknowledges one notification.
func (s *Store) AckNotification(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `UPDATE notifications SET ack = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ack notification %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ack notification %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotificationNotFound, id)
	}
	return nil
}

// PurgeExpiredNotifications removes notifications that expired at or before now.
func (s *Store) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM notifications WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}
