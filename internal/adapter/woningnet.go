package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// WoningNet adapts the WoningNet social-housing publication API. The
// payload is a deeply-nested JSON document whose publication list mixes
// dwellings with parking spots and cluster advertisements; the adapter
// keeps only the Woonruimte entries and reads price/size either from the
// unit itself or from its cluster bounds.
type WoningNet struct{}

func NewWoningNet() *WoningNet { return &WoningNet{} }

func (WoningNet) Name() string { return "woningnet" }

func (WoningNet) BuildURL(city string, page int) (string, error) {
	slug := citySlug(city)
	if slug == "" {
		return "", fmt.Errorf("woningnet: city required")
	}
	return fmt.Sprintf("https://www.woningnetregioamsterdam.nl/webapi/zoeken/publicaties?woonplaats=%s&paginanummer=%d", slug, page), nil
}

func (WoningNet) StopAfterNoResult() bool { return true }

type woningnetResponse struct {
	Data struct {
		PublicatieLijst struct {
			List []woningnetPublication `json:"List"`
		} `json:"PublicatieLijst"`
	} `json:"data"`
}

type woningnetPublication struct {
	ID              string `json:"Id"`
	EenheidSoort    string `json:"EenheidSoort"`
	PublicatieLabel string `json:"PublicatieLabel"`
	PublicatieDatum string `json:"PublicatieDatum"`
	Opleverdatum    string `json:"Opleverdatum"`
	FotoLocatie     string `json:"Foto_Locatie"`
	Adres           struct {
		Straatnaam           string `json:"Straatnaam"`
		Huisnummer           string `json:"Huisnummer"`
		Huisletter           string `json:"Huisletter"`
		HuisnummerToevoeging string `json:"HuisnummerToevoeging"`
		Postcode             string `json:"Postcode"`
		Woonplaats           string `json:"Woonplaats"`
		Wijk                 string `json:"Wijk"`
	} `json:"Adres"`
	Eenheid struct {
		DetailSoort          string  `json:"DetailSoort"`
		AantalKamers         flexInt `json:"AantalKamers"`
		WoonVertrekkenTotOpp flexInt `json:"WoonVertrekkenTotOpp"`
		NettoHuurBekend      bool    `json:"NettoHuurBekend"`
		NettoHuur            flexInt `json:"NettoHuur"`
		Brutohuur            flexInt `json:"Brutohuur"`
		EnergieLabel         string  `json:"EnergieLabel"`
	} `json:"Eenheid"`
	Cluster struct {
		WoonOppervlakteMinBekend bool    `json:"WoonOppervlakteMinBekend"`
		WoonVertrekkenTotOppMin  flexInt `json:"WoonVertrekkenTotOppMin"`
		WoonOppervlakteMaxBekend bool    `json:"WoonOppervlakteMaxBekend"`
		WoonVertrekkenTotOppMax  flexInt `json:"WoonVertrekkenTotOppMax"`
		PrijsMinBekend           bool    `json:"PrijsMinBekend"`
		PrijsMin                 flexInt `json:"PrijsMin"`
		PrijsMaxBekend           bool    `json:"PrijsMaxBekend"`
		PrijsMax                 flexInt `json:"PrijsMax"`
	} `json:"Cluster"`
}

func (WoningNet) ParseListingPage(ctx context.Context, body []byte, city, sourceURL string) (Page, error) {
	var resp woningnetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("woningnet: decode publication list: %w", err)
	}

	pubs := resp.Data.PublicatieLijst.List
	sort.SliceStable(pubs, func(i, j int) bool {
		return parseISODate(pubs[i].PublicatieDatum).After(parseISODate(pubs[j].PublicatieDatum))
	})

	var out []listing.Listing
	for _, pub := range pubs {
		if pub.EenheidSoort != "Woonruimte" || strings.Contains(pub.PublicatieLabel, "Parkeren") {
			continue
		}
		if pub.ID == "" || pub.Adres.Straatnaam == "" {
			continue
		}

		address := pub.Adres.Straatnaam
		if pub.Adres.Huisnummer != "" {
			address += " " + pub.Adres.Huisnummer
		}
		if pub.Adres.Huisletter != "" {
			address += pub.Adres.Huisletter
		}
		if pub.Adres.HuisnummerToevoeging != "" {
			address += "-" + pub.Adres.HuisnummerToevoeging
		}

		l := listing.Listing{
			Source:       "woningnet",
			SourceID:     pub.ID,
			URL:          "https://www.woningnetregioamsterdam.nl/aanbod/" + pub.ID,
			Title:        address,
			Address:      address,
			PostalCode:   spacedPostalCode(pub.Adres.Postcode),
			City:         pub.Adres.Woonplaats,
			Neighborhood: pub.Adres.Wijk,
			Rooms:        int(pub.Eenheid.AantalKamers),
			EnergyLabel:  pub.Eenheid.EnergieLabel,
			PricePeriod:  listing.PeriodMonth,
			PropertyType: propertyTypeFromDutch(pub.Eenheid.DetailSoort),
			OfferingType: listing.OfferingRental,
		}
		if l.City == "" {
			l.City = city
		}

		switch {
		case int(pub.Eenheid.WoonVertrekkenTotOpp) > 0:
			l.LivingAreaM2 = int(pub.Eenheid.WoonVertrekkenTotOpp)
		case pub.Cluster.WoonOppervlakteMinBekend && int(pub.Cluster.WoonVertrekkenTotOppMin) > 0:
			l.LivingAreaM2 = int(pub.Cluster.WoonVertrekkenTotOppMin)
		case pub.Cluster.WoonOppervlakteMaxBekend && int(pub.Cluster.WoonVertrekkenTotOppMax) > 0:
			l.LivingAreaM2 = int(pub.Cluster.WoonVertrekkenTotOppMax)
		}

		switch {
		case pub.Eenheid.NettoHuurBekend && int(pub.Eenheid.NettoHuur) > 0:
			l.PriceNumeric = int(pub.Eenheid.NettoHuur)
		case pub.Cluster.PrijsMinBekend && int(pub.Cluster.PrijsMin) > 0:
			l.PriceNumeric = int(pub.Cluster.PrijsMin)
		case pub.Cluster.PrijsMaxBekend && int(pub.Cluster.PrijsMax) > 0:
			l.PriceNumeric = int(pub.Cluster.PrijsMax)
		}
		if l.PriceNumeric > 0 {
			l.Price = fmt.Sprintf("€ %d per maand", l.PriceNumeric)
		}
		if gross := int(pub.Eenheid.Brutohuur); gross > l.PriceNumeric {
			l.ServiceCosts = gross - l.PriceNumeric
		}

		if t := parseISODate(pub.PublicatieDatum); !t.IsZero() {
			listed := t
			l.DateListed = &listed
		}
		if t := parseISODate(pub.Opleverdatum); !t.IsZero() {
			avail := t
			l.DateAvailable = &avail
		}
		if pub.FotoLocatie != "" {
			l.Images = []string{pub.FotoLocatie}
		}

		out = append(out, l)
	}

	return Page{Listings: out, HasMore: false}, nil
}

func parseISODate(v string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
