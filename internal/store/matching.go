package store

import (
	"context"
	"fmt"
)

// EnqueueMatches fans a newly-inserted property out to every enabled,
// active user whose preferences it satisfies, in one statement. City
// membership is mandatory (empty cities never match); price band, rooms
// band, living-area band, property class, and neighborhood substring are
// each optional — NULL/empty means "no constraint", and a present Max*
// of zero means "no upper bound". ON CONFLICT DO NOTHING makes this
// idempotent if the Scheduler ever calls it twice for the same property.
func (s *Store) EnqueueMatches(ctx context.Context, propertyID int64) (int64, error) {
	const q = `
INSERT INTO notification_queue (user_id, property_id, status)
SELECT u.user_id, p.id, 'pending'
FROM properties p
JOIN user_preferences up ON up.enabled
JOIN telegram_users u ON u.user_id = up.user_id AND u.is_active
WHERE p.id = $1
  AND cardinality(up.cities) > 0
  AND p.city = ANY(up.cities)
  AND (up.min_price IS NULL OR p.price_numeric >= up.min_price)
  AND (up.max_price IS NULL OR up.max_price = 0 OR p.price_numeric <= up.max_price)
  AND (up.min_rooms IS NULL OR p.rooms >= up.min_rooms)
  AND (up.max_rooms IS NULL OR up.max_rooms = 0 OR p.rooms <= up.max_rooms)
  AND (up.min_area IS NULL OR p.living_area >= up.min_area)
  AND (up.max_area IS NULL OR up.max_area = 0 OR p.living_area <= up.max_area)
  AND (cardinality(up.property_types) = 0 OR p.property_type = ANY(up.property_types))
  AND (up.neighborhood IS NULL OR up.neighborhood = '' OR p.neighborhood ILIKE '%' || up.neighborhood || '%')
ON CONFLICT (user_id, property_id) DO NOTHING`

	ct, err := s.pool.Exec(ctx, q, propertyID)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue matches: %w", err)
	}
	return ct.RowsAffected(), nil
}
