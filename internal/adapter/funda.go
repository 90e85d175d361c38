package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Funda adapts funda.nl's rental search result pages.
type Funda struct{}

func NewFunda() *Funda { return &Funda{} }

func (Funda) Name() string { return "funda" }

func (Funda) BuildURL(city string, page int) (string, error) {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(city), " ", "-"))
	if slug == "" {
		return "", fmt.Errorf("funda: city required")
	}
	u := fmt.Sprintf("https://www.funda.nl/zoeken/huur/?selected_area=%%5B%%22%s%%22%%5D&search_result=%d",
		url.QueryEscape(slug), page)
	return u, nil
}

// StopAfterNoResult is false: an empty or redirected funda query-URL page
// does not by itself end the source's cycle, so the Scheduler moves on to
// the remaining query URLs. An empty first page of a cycle still marks the
// source broken, as for every source.
func (Funda) StopAfterNoResult() bool { return false }

func (Funda) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("funda: parse html: %w", err)
	}

	var out []listing.Listing
	doc.Find("[data-test-id='search-result-item']").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Find("a[data-test-id='object-image-link']").Attr("href")
		if href == "" {
			href, _ = sel.Find("a").First().Attr("href")
		}
		title := strings.TrimSpace(sel.Find("[data-test-id='street-name-house-number']").Text())
		location := strings.TrimSpace(sel.Find("[data-test-id='postal-code-city']").Text())
		priceText := strings.TrimSpace(sel.Find("[data-test-id='price-rent']").Text())

		if href == "" || title == "" {
			return
		}

		l := listing.Listing{
			Source:       "funda",
			SourceID:     sourceIDFromURL(href),
			URL:          absoluteFundaURL(href),
			Title:        title,
			Address:      title,
			City:         city,
			Price:        priceText,
			PriceNumeric: parsePriceNumeric(priceText),
			PropertyType: listing.ClassApartment,
			OfferingType: listing.OfferingRental,
		}
		if location != "" {
			postal, locCity, _ := splitLocation(location)
			l.PostalCode = postal
			if locCity != "" {
				l.City = locCity
			}
		}
		out = append(out, l)
	})

	hasMore := doc.Find("[data-test-id='pagination-next']").Length() > 0

	return Page{Listings: out, HasMore: hasMore}, nil
}

func absoluteFundaURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return "https://www.funda.nl" + href
}

func sourceIDFromURL(href string) string {
	trimmed := strings.TrimRight(href, "/")
	parts := strings.Split(trimmed, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return trimmed
}

func parsePriceNumeric(text string) int {
	var digits []byte
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}
	if len(digits) == 0 {
		return 0
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0
	}
	return n
}
