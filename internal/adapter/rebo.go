package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Rebo adapts rebohuurwoning.nl, whose search backend answers with an
// Algolia-style JSON document of "hits". The hits carry a creation
// timestamp, so the adapter sorts newest-first before returning them.
type Rebo struct{}

func NewRebo() *Rebo { return &Rebo{} }

func (Rebo) Name() string { return "rebo" }

func (Rebo) BuildURL(city string, page int) (string, error) {
	slug := citySlug(city)
	if slug == "" {
		return "", fmt.Errorf("rebo: city required")
	}
	return fmt.Sprintf("https://www.rebohuurwoning.nl/api/aanbod?city=%s&page=%d", slug, page), nil
}

func (Rebo) StopAfterNoResult() bool { return true }

type reboResponse struct {
	Hits []reboHit `json:"hits"`
}

type reboHit struct {
	ObjectID         string  `json:"objectID"`
	Slug             string  `json:"slug"`
	URI              string  `json:"uri"`
	Address          string  `json:"address"`
	Title            string  `json:"title"`
	City             string  `json:"city"`
	Price            flexInt `json:"price"`
	PriceType        string  `json:"price_type"`
	SurfaceLiving    flexInt `json:"surface_living"`
	NumberOfBedrooms flexInt `json:"number_of_bedrooms"`
	ObjectType       string  `json:"object_type"`
	ObjectSubtype    string  `json:"object_subtype"`
	ConstructionYear string  `json:"construction_year"`
	SourceCreatedAt  int64   `json:"source_created_at"`
	MainImage        string  `json:"main_image"`
	Geoloc           struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"_geoloc"`
}

func (Rebo) ParseListingPage(ctx context.Context, body []byte, city, sourceURL string) (Page, error) {
	var resp reboResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("rebo: decode hits: %w", err)
	}

	hits := resp.Hits
	sort.Slice(hits, func(i, j int) bool { return hits[i].SourceCreatedAt > hits[j].SourceCreatedAt })

	var out []listing.Listing
	for _, hit := range hits {
		sourceID := hit.ObjectID
		if sourceID == "" {
			sourceID = hit.Slug
		}
		if sourceID == "" {
			continue
		}

		l := listing.Listing{
			Source:           "rebo",
			SourceID:         sourceID,
			URL:              absoluteURL("https://www.rebohuurwoning.nl", hit.URI),
			Title:            hit.Address,
			Address:          hit.Address,
			PostalCode:       spacedPostalCode(extractPostalCode(hit.Title)),
			City:             hit.City,
			PriceNumeric:     int(hit.Price),
			PricePeriod:      reboPricePeriod(hit.PriceType),
			LivingAreaM2:     int(hit.SurfaceLiving),
			Bedrooms:         int(hit.NumberOfBedrooms),
			Rooms:            int(hit.NumberOfBedrooms),
			PropertyType:     reboPropertyType(hit.ObjectType, hit.ObjectSubtype),
			OfferingType:     listing.OfferingRental,
			ConstructionYear: firstNumber(hit.ConstructionYear),
		}
		if l.PriceNumeric > 0 {
			l.Price = fmt.Sprintf("€ %d,-", l.PriceNumeric)
		}
		if l.City == "" {
			l.City = city
		}
		if hit.ObjectSubtype != "" && hit.ObjectSubtype != "Onbekend" {
			l.Features = map[string]string{"property_subtype": hit.ObjectSubtype}
		}
		if hit.MainImage != "" {
			l.Images = []string{hit.MainImage}
		}
		if hit.Geoloc.Lat != 0 || hit.Geoloc.Lng != 0 {
			l.Coordinates = &listing.Coordinates{Lat: hit.Geoloc.Lat, Lon: hit.Geoloc.Lng}
		}

		out = append(out, l)
	}

	return Page{Listings: out, HasMore: false}, nil
}

func reboPricePeriod(priceType string) listing.Period {
	if strings.Contains(strings.ToLower(priceType), "week") {
		return listing.PeriodWeek
	}
	return listing.PeriodMonth
}

// reboPropertyType consults object_type first and falls back to the finer
// object_subtype taxonomy REBO uses for flats and row houses.
func reboPropertyType(objectType, objectSubtype string) listing.Class {
	switch objectType {
	case "Appartement":
		return listing.ClassApartment
	case "Woonhuis", "Eengezinswoning":
		return listing.ClassHouse
	}
	switch objectSubtype {
	case "Appartement", "portiekflat", "galerijflat", "portiekwoning", "APP", "Appartementen", "maisonnette":
		return listing.ClassApartment
	case "Eengezinswoning", "Tussenwoning", "Hoekwoning", "Eindwoning", "2-onder-1-kapwoning":
		return listing.ClassHouse
	}
	return listing.ClassApartment
}
