package adapter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Pararius adapts pararius.com's rental search result pages. Pararius is
// the portal that redirects to a different final URL once pagination
// runs out rather than rendering an empty grid; the Scheduler detects
// that by comparing the Fetcher's FinalURL against the URL it requested,
// not through this adapter.
type Pararius struct{}

func NewPararius() *Pararius { return &Pararius{} }

func (Pararius) Name() string { return "pararius" }

func (Pararius) BuildURL(city string, page int) (string, error) {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(city), " ", "-"))
	if slug == "" {
		return "", fmt.Errorf("pararius: city required")
	}
	if page <= 1 {
		return fmt.Sprintf("https://www.pararius.com/apartments/%s", slug), nil
	}
	return fmt.Sprintf("https://www.pararius.com/apartments/%s/page-%d", slug, page), nil
}

// StopAfterNoResult is true: an empty result grid on a Pararius page is
// a reliable "no more listings" signal.
func (Pararius) StopAfterNoResult() bool { return true }

func (Pararius) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("pararius: parse html: %w", err)
	}

	var out []listing.Listing
	doc.Find("section.listing-search-item").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Find("a.listing-search-item__link--title").Attr("href")
		title := strings.TrimSpace(sel.Find("a.listing-search-item__link--title").Text())
		address := strings.TrimSpace(sel.Find(".listing-search-item__sub-title").Text())
		priceText := strings.TrimSpace(sel.Find(".listing-search-item__price").Text())

		if href == "" || title == "" {
			return
		}

		l := listing.Listing{
			Source:       "pararius",
			SourceID:     sourceIDFromURL(href),
			URL:          absoluteParariusURL(href),
			Title:        title,
			Address:      address,
			City:         city,
			Price:        priceText,
			PriceNumeric: parsePriceNumeric(priceText),
			PropertyType: listing.ClassApartment,
			OfferingType: listing.OfferingRental,
		}
		out = append(out, l)
	})

	hasMore := doc.Find("a.pagination__link--next").Length() > 0

	return Page{Listings: out, HasMore: hasMore}, nil
}

func absoluteParariusURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return "https://www.pararius.com" + href
}
