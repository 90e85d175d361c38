package store

import (
	"context"
	"fmt"
)

// Preferences is one user's notification filter. Every bound field is a
// pointer so NULL means "no constraint"; the match predicate additionally
// treats a present-but-zero Max* as "no upper bound".
type Preferences struct {
	UserID        int64
	Cities        []string
	MinPrice      *int
	MaxPrice      *int
	MinRooms      *int
	MaxRooms      *int
	MinArea       *int
	MaxArea       *int
	Neighborhood  string
	PropertyTypes []string
	Enabled       bool
}

// UpsertPreferences sets or replaces a user's preference row.
func (s *Store) UpsertPreferences(ctx context.Context, p Preferences) error {
	const q = `
INSERT INTO user_preferences (
    user_id, cities, min_price, max_price, min_rooms, max_rooms,
    min_area, max_area, neighborhood, property_types, enabled
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id) DO UPDATE SET
    cities = EXCLUDED.cities,
    min_price = EXCLUDED.min_price,
    max_price = EXCLUDED.max_price,
    min_rooms = EXCLUDED.min_rooms,
    max_rooms = EXCLUDED.max_rooms,
    min_area = EXCLUDED.min_area,
    max_area = EXCLUDED.max_area,
    neighborhood = EXCLUDED.neighborhood,
    property_types = EXCLUDED.property_types,
    enabled = EXCLUDED.enabled`
	if _, err := s.pool.Exec(ctx, q,
		p.UserID, p.Cities, p.MinPrice, p.MaxPrice, p.MinRooms, p.MaxRooms,
		p.MinArea, p.MaxArea, p.Neighborhood, p.PropertyTypes, p.Enabled,
	); err != nil {
		return fmt.Errorf("store: upsert preferences: %w", err)
	}
	return nil
}

// SetPreferencesEnabled toggles a user's notification opt-in.
func (s *Store) SetPreferencesEnabled(ctx context.Context, userID int64, enabled bool) error {
	const q = `UPDATE user_preferences SET enabled = $2 WHERE user_id = $1`
	if _, err := s.pool.Exec(ctx, q, userID, enabled); err != nil {
		return fmt.Errorf("store: set preferences enabled: %w", err)
	}
	return nil
}

// PreferencesByUser loads one user's preference row, for the chat
// command UI's "show my filters" surface.
func (s *Store) PreferencesByUser(ctx context.Context, userID int64) (*Preferences, error) {
	const q = `
SELECT user_id, cities, min_price, max_price, min_rooms, max_rooms,
       min_area, max_area, COALESCE(neighborhood, ''), property_types, enabled
FROM user_preferences WHERE user_id = $1`
	var p Preferences
	err := s.pool.QueryRow(ctx, q, userID).Scan(
		&p.UserID, &p.Cities, &p.MinPrice, &p.MaxPrice, &p.MinRooms, &p.MaxRooms,
		&p.MinArea, &p.MaxArea, &p.Neighborhood, &p.PropertyTypes, &p.Enabled,
	)
	if err != nil {
		return nil, fmt.Errorf("store: preferences by user: %w", err)
	}
	return &p, nil
}
