package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TelegramUser is one chat-side identity, keyed directly on the external
// chat user id.
type TelegramUser struct {
	UserID   int64
	Username string
	IsAdmin  bool
	IsActive bool
}

// UpsertUser registers or updates a user on /start, keyed by their chat
// user id.
func (s *Store) UpsertUser(ctx context.Context, userID int64, username string) error {
	const q = `
INSERT INTO telegram_users (user_id, username)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username`
	if _, err := s.pool.Exec(ctx, q, userID, username); err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// ListUsers returns every registered user, for the --list-users admin flag.
func (s *Store) ListUsers(ctx context.Context) ([]TelegramUser, error) {
	const q = `SELECT user_id, username, is_admin, is_active FROM telegram_users ORDER BY user_id`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var out []TelegramUser
	for rows.Next() {
		var u TelegramUser
		if err := rows.Scan(&u.UserID, &u.Username, &u.IsAdmin, &u.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetAdmin flips a user's is_admin flag, for the --set-admin admin flag.
func (s *Store) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	const q = `UPDATE telegram_users SET is_admin = $2 WHERE user_id = $1`
	ct, err := s.pool.Exec(ctx, q, userID, admin)
	if err != nil {
		return fmt.Errorf("store: set admin: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateUser flips is_active false, for the --deactivate-user admin
// flag; the Delivery Worker's PickBatch join already excludes inactive
// users so this alone stops further notifications.
func (s *Store) DeactivateUser(ctx context.Context, userID int64) error {
	const q = `UPDATE telegram_users SET is_active = FALSE WHERE user_id = $1`
	ct, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("store: deactivate user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UserByID looks up a user by their chat user id.
func (s *Store) UserByID(ctx context.Context, userID int64) (*TelegramUser, error) {
	const q = `SELECT user_id, username, is_admin, is_active FROM telegram_users WHERE user_id = $1`
	var u TelegramUser
	err := s.pool.QueryRow(ctx, q, userID).Scan(&u.UserID, &u.Username, &u.IsAdmin, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: user by id: %w", err)
	}
	return &u, nil
}
