// Package listing defines the normalized rental-listing record every source
// adapter produces and the Listing Store persists. It is the one data
// boundary every other package imports but never mutates directly.
package listing

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Period is the cadence a textual price refers to.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)

// Interior is the finish level a rental is offered in.
type Interior string

const (
	InteriorShell       Interior = "shell"
	InteriorUpholstered Interior = "upholstered"
	InteriorFurnished   Interior = "furnished"
)

// Class is the kind of property being offered.
type Class string

const (
	ClassApartment Class = "apartment"
	ClassHouse     Class = "house"
	ClassRoom      Class = "room"
	ClassStudio    Class = "studio"
)

// Offering distinguishes rental listings from sale listings.
type Offering string

const (
	OfferingRental Offering = "rental"
	OfferingSale   Offering = "sale"
)

// Coordinates is an optional lat/lon pair attached to a listing.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Listing is the normalized shape every source adapter must produce from a
// list-page response. Fields map 1:1 onto the `properties` table (see
// internal/store/migrations).
type Listing struct {
	ID int64

	Source   string
	SourceID string

	URL          string
	Title        string
	Address      string
	PostalCode   string
	City         string
	Neighborhood string

	Price        string
	PriceNumeric int
	PricePeriod  Period
	ServiceCosts int

	Description string

	PropertyType Class
	OfferingType Offering

	LivingAreaM2 int
	PlotAreaM2   int
	VolumeM3     int
	Rooms        int
	Bedrooms     int
	Bathrooms    int
	Floors       int

	Balcony bool
	Garden  bool
	Parking bool

	ConstructionYear int
	EnergyLabel      string
	Interior         Interior

	Coordinates *Coordinates

	DateListed    *time.Time
	DateAvailable *time.Time
	DateScraped   time.Time

	Images   []string
	Features map[string]string

	ContentHash string

	FirstScraped time.Time
}

// Normalize upper-cases the city for storage and trims
// whitespace-only adapter output, and defaults an empty price period to
// month. The Scheduler calls this on every parsed listing before
// Store.UpsertListing; the Store does not normalize on its own.
func (l *Listing) Normalize(upper func(string) string) {
	l.City = upper(strings.TrimSpace(l.City))
	l.Address = strings.TrimSpace(l.Address)
	l.Neighborhood = strings.TrimSpace(l.Neighborhood)
	if l.PricePeriod == "" {
		l.PricePeriod = PeriodMonth
	}
}

// ContentHashOf computes the deterministic cross-source dedup key: a 128-bit
// xxh3 digest over the pipe-joined non-null components (url, address,
// source_id, city), in that order. The hash only deduplicates, so a fast
// non-cryptographic 128-bit digest is enough; what matters is that the
// canonicalization of the input tuple never changes.
func ContentHashOf(url, address, sourceID, city string) string {
	parts := []string{url, address, sourceID, city}
	nonNull := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonNull = append(nonNull, p)
		}
	}
	sum := xxh3.Hash128([]byte(strings.Join(nonNull, "|"))).Bytes()
	return hex.EncodeToString(sum[:])
}

// FillContentHash recomputes and sets l.ContentHash from the current field
// values. Store.UpsertListing calls this before every write so a mutation
// of any component never leaves a stale hash behind.
func (l *Listing) FillContentHash() {
	l.ContentHash = ContentHashOf(l.URL, l.Address, l.SourceID, l.City)
}
