package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/huisjacht/huisjacht/internal/dedup"
)

// DuplicateCandidate is one cross-source pair scored by FindDuplicates.
type DuplicateCandidate struct {
	SourceA, SourceIDA string
	SourceB, SourceIDB string
	Hash               string
	Similarity         float64
	DistanceMeters     *float64
}

// FindDuplicates scans the listing set for cross-source pairs with equal
// content hashes whose address similarity also clears threshold. Pairs
// come back canonically ordered, (source_a, source_id_a) before
// (source_b, source_id_b). It
// compares listings within the same city only, since cross-city
// duplicates aren't a real scenario this system needs to catch.
func (s *Store) FindDuplicates(ctx context.Context, threshold float64) ([]DuplicateCandidate, error) {
	const q = `
SELECT source, source_id, address, city, property_hash,
       ST_Y(location::geometry), ST_X(location::geometry)
FROM properties
ORDER BY city, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: find duplicates: %w", err)
	}
	defer rows.Close()

	type row struct {
		source, sourceID, address, city, hash string
		lat, lon                              *float64
	}
	var byCity = map[string][]row{}
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.source, &r.sourceID, &r.address, &r.city, &r.hash, &r.lat, &r.lon); err != nil {
			return nil, fmt.Errorf("store: scan duplicate row: %w", err)
		}
		byCity[r.city] = append(byCity[r.city], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []DuplicateCandidate
	for _, group := range byCity {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.source == b.source {
					continue
				}
				sim := dedup.AddressSimilarity(a.address, b.address)
				if a.hash != b.hash || sim < threshold {
					continue
				}
				cand := DuplicateCandidate{
					SourceA: a.source, SourceIDA: a.sourceID,
					SourceB: b.source, SourceIDB: b.sourceID,
					Hash:       a.hash,
					Similarity: sim,
				}
				if !lessPair(cand.SourceA, cand.SourceIDA, cand.SourceB, cand.SourceIDB) {
					cand.SourceA, cand.SourceIDA, cand.SourceB, cand.SourceIDB =
						cand.SourceB, cand.SourceIDB, cand.SourceA, cand.SourceIDA
				}
				if a.lat != nil && a.lon != nil && b.lat != nil && b.lon != nil {
					m, known := dedup.DistanceFactor(true, true, *a.lat, *a.lon, *b.lat, *b.lon)
					if known {
						cand.DistanceMeters = &m
					}
				}
				out = append(out, cand)
			}
		}
	}
	return out, nil
}

// RecordDuplicatePair persists a detected duplicate, canonicalizing
// (source_a, source_id_a) < (source_b, source_id_b) so the same pair
// detected in either order maps onto the same unique row.
func (s *Store) RecordDuplicatePair(ctx context.Context, c DuplicateCandidate) error {
	sa, ia, sb, ib := c.SourceA, c.SourceIDA, c.SourceB, c.SourceIDB
	if !lessPair(sa, ia, sb, ib) {
		sa, ia, sb, ib = sb, ib, sa, ia
	}

	const q = `
INSERT INTO duplicate_properties (source_1, source_id_1, source_2, source_id_2, property_hash, similarity, distance_meters)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (source_1, source_id_1, source_2, source_id_2) DO UPDATE SET
    property_hash = EXCLUDED.property_hash,
    similarity = EXCLUDED.similarity,
    distance_meters = EXCLUDED.distance_meters`
	if _, err := s.pool.Exec(ctx, q, sa, ia, sb, ib, c.Hash, c.Similarity, c.DistanceMeters); err != nil {
		return fmt.Errorf("store: record duplicate pair: %w", err)
	}
	return nil
}

func lessPair(sa, ia, sb, ib string) bool {
	keys := []string{sa + "\x00" + ia, sb + "\x00" + ib}
	sort.Strings(keys)
	return keys[0] == sa+"\x00"+ia
}
