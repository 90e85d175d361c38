package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ScanHistory is the last recorded scan outcome for one (source, key)
// pair. Key is stored in the city column: either a true city or the
// sentinel "query_url_{id}".
type ScanHistory struct {
	Source     string
	Key        string
	LastScan   time.Time
	URL        string
	DurationMS int
	NewCount   int
	TotalCount int
	Status     string
	Detail     string
}

// UpdateScanHistory overwrites the (source, key) row with the latest
// scan outcome: last write wins, no append-only log, since the scheduler
// only ever needs "when did this pair last run and how did it go".
// Called unconditionally at the end of every fetched job, success or
// failure.
func (s *Store) UpdateScanHistory(ctx context.Context, source, key, url string, newCount, total int, duration time.Duration, status, detail string) error {
	const q = `
INSERT INTO scan_history (source, city, last_scan, url, duration_ms, new_count, total_count, status, detail)
VALUES ($1, $2, NOW(), $3, $4, $5, $6, $7, $8)
ON CONFLICT (source, city) DO UPDATE SET
    last_scan = EXCLUDED.last_scan,
    url = EXCLUDED.url,
    duration_ms = EXCLUDED.duration_ms,
    new_count = EXCLUDED.new_count,
    total_count = EXCLUDED.total_count,
    status = EXCLUDED.status,
    detail = EXCLUDED.detail`
	if _, err := s.pool.Exec(ctx, q, source, key, url, duration.Milliseconds(), newCount, total, status, detail); err != nil {
		return fmt.Errorf("store: update scan history: %w", err)
	}
	return nil
}

// LastScanTime reports when (source, key) last ran, and false if it has
// never been scanned. The Scheduler's min-interval gate reads this.
func (s *Store) LastScanTime(ctx context.Context, source, key string) (time.Time, bool, error) {
	const q = `SELECT last_scan FROM scan_history WHERE source = $1 AND city = $2`
	var t time.Time
	err := s.pool.QueryRow(ctx, q, source, key).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: last scan time: %w", err)
	}
	return t, true, nil
}

// ListScanHistory returns every (source, key) row, newest scan first, for
// the operator's scan overview.
func (s *Store) ListScanHistory(ctx context.Context) ([]ScanHistory, error) {
	const q = `
SELECT source, city, last_scan, url, duration_ms, new_count, total_count, status, detail
FROM scan_history ORDER BY last_scan DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list scan history: %w", err)
	}
	defer rows.Close()

	var out []ScanHistory
	for rows.Next() {
		var h ScanHistory
		if err := rows.Scan(&h.Source, &h.Key, &h.LastScan, &h.URL, &h.DurationMS, &h.NewCount, &h.TotalCount, &h.Status, &h.Detail); err != nil {
			return nil, fmt.Errorf("store: scan history row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
