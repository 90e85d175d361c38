package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/huisjacht/huisjacht/internal/listing"
)

const uniqueViolation = "23505"

// UpsertListing inserts l or, when (source, source_id) already exists,
// updates the mutable fields (price, description, availability) in
// place. The natural key wins ties against property_hash, so a listing
// whose address text changed slightly still updates the same row instead
// of inserting a duplicate. Returns whether the row was newly inserted.
func (s *Store) UpsertListing(ctx context.Context, l *listing.Listing) (inserted bool, id int64, err error) {
	l.FillContentHash()

	images, err := json.Marshal(l.Images)
	if err != nil {
		return false, 0, fmt.Errorf("store: marshal images: %w", err)
	}
	features, err := json.Marshal(l.Features)
	if err != nil {
		return false, 0, fmt.Errorf("store: marshal features: %w", err)
	}

	var coordJSON, locationSQL interface{}
	if l.Coordinates != nil {
		cj, err := json.Marshal(l.Coordinates)
		if err != nil {
			return false, 0, fmt.Errorf("store: marshal coordinates: %w", err)
		}
		coordJSON = cj
		locationSQL = fmt.Sprintf("SRID=4326;POINT(%f %f)", l.Coordinates.Lon, l.Coordinates.Lat)
	}

	const q = `
INSERT INTO properties (
    source, source_id, url, title, address, postal_code, city, neighborhood,
    price, price_numeric, price_period, service_costs, description,
    property_type, offering_type, living_area, plot_area, volume,
    rooms, bedrooms, bathrooms, floors, balcony, garden, parking,
    construction_year, energy_label, interior, coordinates, location,
    date_listed, date_available, images, features, property_hash
) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
    $21,$22,$23,$24,$25,$26,$27,$28,$29,
    CASE WHEN $30::text IS NULL THEN NULL ELSE ST_GeogFromText($30::text) END,
    $31,$32,$33,$34,$35
)
ON CONFLICT (source, source_id) DO UPDATE SET
    title = EXCLUDED.title,
    price = EXCLUDED.price,
    price_numeric = EXCLUDED.price_numeric,
    price_period = EXCLUDED.price_period,
    service_costs = EXCLUDED.service_costs,
    description = EXCLUDED.description,
    date_available = EXCLUDED.date_available,
    images = EXCLUDED.images,
    features = EXCLUDED.features,
    property_hash = EXCLUDED.property_hash
RETURNING id, (xmax = 0) AS inserted`

	row := s.pool.QueryRow(ctx, q,
		l.Source, l.SourceID, l.URL, l.Title, l.Address, l.PostalCode, l.City, l.Neighborhood,
		l.Price, l.PriceNumeric, string(l.PricePeriod), l.ServiceCosts, l.Description,
		string(l.PropertyType), string(l.OfferingType), l.LivingAreaM2, l.PlotAreaM2, l.VolumeM3,
		l.Rooms, l.Bedrooms, l.Bathrooms, l.Floors, l.Balcony, l.Garden, l.Parking,
		l.ConstructionYear, l.EnergyLabel, string(l.Interior), coordJSON, locationSQL,
		l.DateListed, l.DateAvailable, images, features, l.ContentHash,
	)

	if err := row.Scan(&id, &inserted); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// The ON CONFLICT target already absorbs (source, source_id)
			// collisions, so the violation is on property_hash: the same
			// property re-indexed under a new natural key. That is an
			// UPDATE of the existing row, never a second insert.
			return s.updateByContentHash(ctx, l)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, ErrNotFound
		}
		return false, 0, fmt.Errorf("store: upsert listing: %w", err)
	}
	l.ID = id
	return inserted, id, nil
}

// updateByContentHash refreshes the mutable fields of the row already
// holding l.ContentHash, leaving its natural key and first_scraped alone.
func (s *Store) updateByContentHash(ctx context.Context, l *listing.Listing) (bool, int64, error) {
	const q = `
UPDATE properties SET
    title = $2,
    price = $3,
    price_numeric = $4,
    price_period = $5,
    service_costs = $6,
    description = $7,
    date_available = $8
WHERE property_hash = $1
RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, q,
		l.ContentHash, l.Title, l.Price, l.PriceNumeric, string(l.PricePeriod),
		l.ServiceCosts, l.Description, l.DateAvailable,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, ErrNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("store: update by content hash: %w", err)
	}
	l.ID = id
	return false, id, nil
}

// GetListing loads one listing by id for delivery message rendering.
func (s *Store) GetListing(ctx context.Context, id int64) (*listing.Listing, error) {
	const q = `
SELECT id, source, source_id, url, title, address, postal_code, city, neighborhood,
       price, price_numeric, price_period, service_costs, description,
       property_type, offering_type, living_area, plot_area, volume,
       rooms, bedrooms, bathrooms, floors, balcony, garden, parking,
       construction_year, energy_label, interior, coordinates,
       date_listed, date_available, date_scraped, images, features,
       property_hash, first_scraped
FROM properties WHERE id = $1`

	var l listing.Listing
	var imagesRaw, featuresRaw, coordsRaw []byte

	err := s.pool.QueryRow(ctx, q, id).Scan(
		&l.ID, &l.Source, &l.SourceID, &l.URL, &l.Title, &l.Address, &l.PostalCode, &l.City, &l.Neighborhood,
		&l.Price, &l.PriceNumeric, &l.PricePeriod, &l.ServiceCosts, &l.Description,
		&l.PropertyType, &l.OfferingType, &l.LivingAreaM2, &l.PlotAreaM2, &l.VolumeM3,
		&l.Rooms, &l.Bedrooms, &l.Bathrooms, &l.Floors, &l.Balcony, &l.Garden, &l.Parking,
		&l.ConstructionYear, &l.EnergyLabel, &l.Interior, &coordsRaw,
		&l.DateListed, &l.DateAvailable, &l.DateScraped, &imagesRaw, &featuresRaw,
		&l.ContentHash, &l.FirstScraped,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get listing: %w", err)
	}

	if len(coordsRaw) > 0 {
		var c listing.Coordinates
		if json.Unmarshal(coordsRaw, &c) == nil {
			l.Coordinates = &c
		}
	}
	_ = json.Unmarshal(imagesRaw, &l.Images)
	_ = json.Unmarshal(featuresRaw, &l.Features)

	return &l, nil
}
