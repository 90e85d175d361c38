package adapter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Kamernet adapts kamernet.nl's room/studio listing pages.
type Kamernet struct{}

func NewKamernet() *Kamernet { return &Kamernet{} }

func (Kamernet) Name() string { return "kamernet" }

func (Kamernet) BuildURL(city string, page int) (string, error) {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(city), " ", "-"))
	if slug == "" {
		return "", fmt.Errorf("kamernet: city required")
	}
	return fmt.Sprintf("https://kamernet.nl/en/for-rent/rooms-%s?page=%d", slug, page), nil
}

func (Kamernet) StopAfterNoResult() bool { return true }

func (Kamernet) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("kamernet: parse html: %w", err)
	}

	var out []listing.Listing
	doc.Find("[data-testid='listing-card']").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Find("a").First().Attr("href")
		title := strings.TrimSpace(sel.Find("[data-testid='listing-card-title']").Text())
		priceText := strings.TrimSpace(sel.Find("[data-testid='listing-card-price']").Text())

		if href == "" || title == "" {
			return
		}

		l := listing.Listing{
			Source:       "kamernet",
			SourceID:     sourceIDFromURL(href),
			URL:          absoluteKamernetURL(href),
			Title:        title,
			Address:      title,
			City:         city,
			Price:        priceText,
			PriceNumeric: parsePriceNumeric(priceText),
			PropertyType: listing.ClassRoom,
			OfferingType: listing.OfferingRental,
		}
		out = append(out, l)
	})

	hasMore := doc.Find("[data-testid='pagination-next']").Length() > 0

	return Page{Listings: out, HasMore: hasMore}, nil
}

func absoluteKamernetURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return "https://kamernet.nl" + href
}
