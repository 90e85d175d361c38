package store

import (
	"context"
	"fmt"
	"time"
)

// QueueStatus is one notification_queue row's lifecycle state.
type QueueStatus string

const (
	StatusPending     QueueStatus = "pending"
	StatusProcessing  QueueStatus = "processing"
	StatusSent        QueueStatus = "sent"
	StatusFailed      QueueStatus = "failed"
	StatusRateLimited QueueStatus = "rate_limited"
)

// QueueItem is one notification the Delivery Worker picks up. UserID is
// the external chat user id and doubles as the send target.
type QueueItem struct {
	ID         int64
	UserID     int64
	PropertyID int64
	Attempts   int
}

// PickBatch atomically claims up to batchSize pending rows (oldest
// first) for active, enabled users, moving them to 'processing' so a
// concurrent worker never double-sends the same row.
func (s *Store) PickBatch(ctx context.Context, batchSize int) ([]QueueItem, error) {
	const q = `
WITH claimed AS (
    SELECT nq.id
    FROM notification_queue nq
    JOIN telegram_users u ON u.user_id = nq.user_id AND u.is_active
    JOIN user_preferences up ON up.user_id = u.user_id AND up.enabled
    WHERE nq.status = 'pending'
    ORDER BY nq.created_at
    LIMIT $1
    FOR UPDATE OF nq SKIP LOCKED
)
UPDATE notification_queue nq
SET status = 'processing', attempts = nq.attempts + 1, updated_at = NOW()
FROM claimed
WHERE nq.id = claimed.id
RETURNING nq.id, nq.user_id, nq.property_id, nq.attempts`

	rows, err := s.pool.Query(ctx, q, batchSize)
	if err != nil {
		return nil, fmt.Errorf("store: pick batch: %w", err)
	}
	defer rows.Close()

	var out []QueueItem
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.PropertyID, &it.Attempts); err != nil {
			return nil, fmt.Errorf("store: scan queue item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkStatus transitions a notification_queue row to a terminal or
// retryable status.
func (s *Store) MarkStatus(ctx context.Context, id int64, status QueueStatus) error {
	const q = `UPDATE notification_queue SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("store: mark status: %w", err)
	}
	return nil
}

// RecordSent inserts the notification_history row and marks the queue row
// sent, in one call so callers can't do one without the other.
func (s *Store) RecordSent(ctx context.Context, queueID, userID, propertyID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: record sent: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE notification_queue SET status = 'sent', updated_at = NOW() WHERE id = $1`, queueID); err != nil {
		return fmt.Errorf("store: record sent: update queue: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO notification_history (user_id, property_id, sent_at) VALUES ($1, $2, NOW())`, userID, propertyID); err != nil {
		return fmt.Errorf("store: record sent: insert history: %w", err)
	}
	return tx.Commit(ctx)
}

// SetReaction records the user's reaction tag on an already-sent
// notification; the chat front-end's callback handler writes it when the
// user taps an inline button.
func (s *Store) SetReaction(ctx context.Context, userID, propertyID int64, tag string) error {
	const q = `UPDATE notification_history SET reaction_tag = $3 WHERE user_id = $1 AND property_id = $2`
	ct, err := s.pool.Exec(ctx, q, userID, propertyID, tag)
	if err != nil {
		return fmt.Errorf("store: set reaction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SentToday counts how many notifications a user has received in the
// rolling 24 hours behind now, for the Delivery Worker's daily-cap check.
func (s *Store) SentToday(ctx context.Context, userID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM notification_history WHERE user_id = $1 AND sent_at > NOW() - INTERVAL '24 hours'`
	var n int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: sent today: %w", err)
	}
	return n, nil
}

// QueueDepth reports the number of pending rows, for the /metrics gauge.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM notification_queue WHERE status = 'pending'`
	var n int
	if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: queue depth: %w", err)
	}
	return n, nil
}

// GCTerminalRows deletes sent/failed/rate_limited queue rows older than
// retention, keeping the table from growing unbounded. Invoked by
// robfig/cron/v3 on the notifier's periodic housekeeping schedule.
func (s *Store) GCTerminalRows(ctx context.Context, retention time.Duration) (int64, error) {
	const q = `
DELETE FROM notification_queue
WHERE status IN ('sent', 'failed', 'rate_limited')
  AND updated_at < $1`
	ct, err := s.pool.Exec(ctx, q, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("store: gc terminal rows: %w", err)
	}
	return ct.RowsAffected(), nil
}
