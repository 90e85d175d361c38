package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Bouwinvest adapts wonenbijbouwinvest.nl, which exposes a JSON filter
// API rather than server-rendered HTML, so ParseListingPage decodes JSON
// instead of walking a goquery document.
type Bouwinvest struct{}

func NewBouwinvest() *Bouwinvest { return &Bouwinvest{} }

func (Bouwinvest) Name() string { return "bouwinvest" }

func (Bouwinvest) BuildURL(city string, page int) (string, error) {
	if page < 1 {
		page = 1
	}
	base := "https://www.wonenbijbouwinvest.nl/api/filter"
	slug := citySlug(city)
	if slug == "" {
		return fmt.Sprintf("%s?page=%d&order=created_at&dir=desc", base, page), nil
	}
	return fmt.Sprintf("%s?city=%s&page=%d&order=created_at&dir=desc", base, slug, page), nil
}

func (Bouwinvest) StopAfterNoResult() bool { return true }

// bouwinvestResponse mirrors the slice of the filter API's payload the
// adapter reads. Unknown fields are ignored by encoding/json.
type bouwinvestResponse struct {
	Data []bouwinvestProperty `json:"data"`
}

type bouwinvestProperty struct {
	Class       string `json:"class"`
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     struct {
		City    string `json:"city"`
		Zipcode string `json:"zipcode"`
	} `json:"address"`
	Price struct {
		Price       flexInt `json:"price"`
		ServiceCost flexInt `json:"service_cost"`
	} `json:"price"`
	Properties struct {
		TotalRooms         flexInt `json:"total_rooms"`
		TotalSleepingrooms flexInt `json:"total_sleepingrooms"`
		BuildYear          flexInt `json:"build_year"`
		TotalFloors        flexInt `json:"total_floors"`
		Type               string  `json:"type"`
	} `json:"properties"`
	Sizes struct {
		Surface      flexInt `json:"surface"`
		TotalContent flexInt `json:"total_content"`
	} `json:"sizes"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Images struct {
		Main  []string `json:"main"`
		Extra []string `json:"extra"`
	} `json:"images"`
}

func (Bouwinvest) ParseListingPage(ctx context.Context, body []byte, city, sourceURL string) (Page, error) {
	var resp bouwinvestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("bouwinvest: decode filter response: %w", err)
	}

	var out []listing.Listing
	for _, prop := range resp.Data {
		// The API mixes project containers into the result set; only
		// ProjectProperty entries are rentable units.
		if prop.Class != "ProjectProperty" {
			continue
		}

		price := int(prop.Price.Price)
		l := listing.Listing{
			Source:           "bouwinvest",
			SourceID:         strconv.FormatInt(prop.ID, 10),
			URL:              prop.URL,
			Title:            prop.Name,
			Address:          prop.Name,
			PostalCode:       spacedPostalCode(prop.Address.Zipcode),
			City:             prop.Address.City,
			Description:      prop.Description,
			Price:            fmt.Sprintf("€ %d per maand", price),
			PriceNumeric:     price,
			PricePeriod:      listing.PeriodMonth,
			ServiceCosts:     int(prop.Price.ServiceCost),
			Rooms:            int(prop.Properties.TotalRooms),
			Bedrooms:         int(prop.Properties.TotalSleepingrooms),
			Floors:           int(prop.Properties.TotalFloors),
			ConstructionYear: int(prop.Properties.BuildYear),
			LivingAreaM2:     int(prop.Sizes.Surface),
			VolumeM3:         int(prop.Sizes.TotalContent),
			PropertyType:     propertyTypeFromDutch(prop.Properties.Type),
			OfferingType:     listing.OfferingRental,
		}
		if l.City == "" {
			l.City = city
		}
		if prop.Coordinates.Latitude != 0 || prop.Coordinates.Longitude != 0 {
			l.Coordinates = &listing.Coordinates{Lat: prop.Coordinates.Latitude, Lon: prop.Coordinates.Longitude}
		}
		l.Images = append(l.Images, prop.Images.Main...)
		l.Images = append(l.Images, prop.Images.Extra...)

		out = append(out, l)
	}

	return Page{Listings: out, HasMore: len(out) > 0}, nil
}

// flexInt tolerates the API's habit of sending the same numeric field as
// a number, a numeric string, or null depending on the property.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(f)
	return nil
}
