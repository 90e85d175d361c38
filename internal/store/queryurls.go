package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueryURL is one operator-configured search URL a source adapter polls.
// ExtraOptions carries optional request overrides (body, headers) as
// jsonb: nil unless the operator explicitly set them via
// --add-query-url's optional flags.
type QueryURL struct {
	ID           int64
	Source       string
	URL          string
	Method       string
	Enabled      bool
	LastScanTime *time.Time
	Description  string
	ExtraOptions []byte
}

// AddQueryURL inserts a new query URL. method defaults to GET when
// empty; extraOptions is a pre-marshaled jsonb payload, or nil.
func (s *Store) AddQueryURL(ctx context.Context, source, url, method, description string, extraOptions []byte) (int64, error) {
	if method == "" {
		method = "GET"
	}
	const q = `
INSERT INTO query_urls (source, queryurl, method, description, extra_options)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source, queryurl) DO NOTHING
RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, q, source, url, method, description, extraOptions).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("store: add query url: %w", ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("store: add query url: %w", err)
	}
	return id, nil
}

// ListQueryURLs returns every query URL, including disabled ones, ordered
// for a stable CLI listing.
func (s *Store) ListQueryURLs(ctx context.Context) ([]QueryURL, error) {
	const q = `
SELECT id, source, queryurl, method, enabled, last_scan_time, description, extra_options
FROM query_urls ORDER BY source, id`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list query urls: %w", err)
	}
	defer rows.Close()
	return scanQueryURLs(rows)
}

// EnabledQueryURLs returns the query URLs the Scheduler should poll for a
// given source, in ascending id order.
func (s *Store) EnabledQueryURLs(ctx context.Context, source string) ([]QueryURL, error) {
	const q = `
SELECT id, source, queryurl, method, enabled, last_scan_time, description, extra_options
FROM query_urls WHERE source = $1 AND enabled ORDER BY id`
	rows, err := s.pool.Query(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("store: enabled query urls: %w", err)
	}
	defer rows.Close()
	return scanQueryURLs(rows)
}

func scanQueryURLs(rows pgx.Rows) ([]QueryURL, error) {
	var out []QueryURL
	for rows.Next() {
		var qu QueryURL
		if err := rows.Scan(&qu.ID, &qu.Source, &qu.URL, &qu.Method, &qu.Enabled, &qu.LastScanTime, &qu.Description, &qu.ExtraOptions); err != nil {
			return nil, fmt.Errorf("store: scan query url: %w", err)
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

// MarkQueryURLScanned stamps last_scan_time after the Scheduler finishes
// one fetch of the URL, whatever the outcome.
func (s *Store) MarkQueryURLScanned(ctx context.Context, id int64) error {
	const q = `UPDATE query_urls SET last_scan_time = NOW() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("store: mark query url scanned: %w", err)
	}
	return nil
}

// ToggleQueryURL flips enabled on the given id.
func (s *Store) ToggleQueryURL(ctx context.Context, id int64) error {
	const q = `UPDATE query_urls SET enabled = NOT enabled WHERE id = $1`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: toggle query url: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteQueryURL removes a query URL by id.
func (s *Store) DeleteQueryURL(ctx context.Context, id int64) error {
	const q = `DELETE FROM query_urls WHERE id = $1`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: delete query url: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
