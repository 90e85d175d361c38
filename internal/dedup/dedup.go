// Package dedup holds the two pure-function scoring primitives duplicate
// detection combines: an address-similarity ratio and a
// geographic-distance factor.
package dedup

import (
	"math"

	"github.com/agnivade/levenshtein"
)

// AddressSimilarity returns a 0..1 ratio: 1 for identical strings, 0 for
// totally dissimilar ones, derived from Levenshtein edit distance
// normalized by the longer string's length.
func AddressSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two lat/lon
// points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DistanceFactor computes the haversine distance between two listings
// when both carry coordinates; without coordinates on both sides it
// reports known=false. The distance is recorded on a duplicate pair but
// does not enter the similarity score, which is the address-similarity
// ratio alone.
func DistanceFactor(hasCoordsA, hasCoordsB bool, lat1, lon1, lat2, lon2 float64) (meters float64, known bool) {
	if !hasCoordsA || !hasCoordsB {
		return 0, false
	}
	return HaversineMeters(lat1, lon1, lat2, lon2), true
}
