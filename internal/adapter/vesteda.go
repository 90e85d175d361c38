package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Vesteda adapts vesteda.com's unit-search API, a JSON endpoint that
// groups results by recency bucket ("today", "week"). New listings land
// in the today bucket; when it is empty the week bucket stands in so a
// quiet day doesn't read as a broken portal.
type Vesteda struct{}

func NewVesteda() *Vesteda { return &Vesteda{} }

func (Vesteda) Name() string { return "vesteda" }

func (Vesteda) BuildURL(city string, page int) (string, error) {
	slug := citySlug(city)
	if slug == "" {
		return "", fmt.Errorf("vesteda: city required")
	}
	return fmt.Sprintf("https://www.vesteda.com/api/units/search/facet?city=%s&page=%d", slug, page), nil
}

func (Vesteda) StopAfterNoResult() bool { return true }

type vestedaResponse struct {
	Results struct {
		Objects struct {
			Today []vestedaUnit `json:"today"`
			Week  []vestedaUnit `json:"week"`
		} `json:"objects"`
	} `json:"results"`
}

type vestedaUnit struct {
	ID                  int64   `json:"id"`
	URL                 string  `json:"url"`
	Street              string  `json:"street"`
	HouseNumber         flexInt `json:"houseNumber"`
	HouseNumberAddition string  `json:"houseNumberAddition"`
	PostalCode          string  `json:"postalCode"`
	City                string  `json:"city"`
	District            string  `json:"district"`
	Price               string  `json:"price"`
	PriceUnformatted    flexInt `json:"priceUnformatted"`
	Size                flexInt `json:"size"`
	NumberOfBedRooms    flexInt `json:"numberOfBedRooms"`
	EntitySubtypeLabel  string  `json:"entitysubtypelabel"`
	ImageBig            string  `json:"imageBig"`
	ImageSmall          string  `json:"imageSmall"`
}

func (Vesteda) ParseListingPage(ctx context.Context, body []byte, city, sourceURL string) (Page, error) {
	var resp vestedaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("vesteda: decode search response: %w", err)
	}

	units := resp.Results.Objects.Today
	if len(units) == 0 {
		units = resp.Results.Objects.Week
	}

	var out []listing.Listing
	for _, u := range units {
		address := u.Street
		if u.HouseNumber > 0 {
			address += " " + strconv.Itoa(int(u.HouseNumber))
		}
		if u.HouseNumberAddition != "" {
			address += " " + u.HouseNumberAddition
		}
		address = strings.TrimSpace(address)

		l := listing.Listing{
			Source:       "vesteda",
			SourceID:     strconv.FormatInt(u.ID, 10),
			URL:          absoluteURL("https://www.vesteda.com", u.URL),
			Title:        address,
			Address:      address,
			PostalCode:   spacedPostalCode(u.PostalCode),
			City:         u.City,
			Neighborhood: u.District,
			Price:        u.Price,
			PriceNumeric: int(u.PriceUnformatted),
			PricePeriod:  listing.PeriodMonth,
			LivingAreaM2: int(u.Size),
			Bedrooms:     int(u.NumberOfBedRooms),
			Rooms:        int(u.NumberOfBedRooms),
			PropertyType: vestedaPropertyType(u.EntitySubtypeLabel),
			OfferingType: listing.OfferingRental,
		}
		if l.City == "" {
			l.City = city
		}
		if img := firstNonEmpty(u.ImageBig, u.ImageSmall); img != "" {
			l.Images = []string{img}
		}

		out = append(out, l)
	}

	return Page{Listings: out, HasMore: false}, nil
}

// vestedaPropertyType maps Vesteda's entity subtype labels onto the
// closed Class set.
func vestedaPropertyType(label string) listing.Class {
	switch label {
	case "Eengezinswoning", "Maisonette":
		return listing.ClassHouse
	case "Studio":
		return listing.ClassStudio
	default:
		return listing.ClassApartment
	}
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
