package adapter

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Huurwoningen adapts huurwoningen.nl's rental search pages. The portal
// runs on the same platform as Pararius, so the card markup is the
// familiar listing-search-item family; what differs is the URL layout and
// the "Nieuw"/"Topwoning" labels it decorates cards with.
type Huurwoningen struct{}

func NewHuurwoningen() *Huurwoningen { return &Huurwoningen{} }

func (Huurwoningen) Name() string { return "huurwoningen" }

func (Huurwoningen) BuildURL(city string, page int) (string, error) {
	slug := citySlug(city)
	if slug == "" {
		return "https://www.huurwoningen.nl/aanbod-huurwoningen/", nil
	}
	if page <= 1 {
		return fmt.Sprintf("https://www.huurwoningen.nl/huren/%s/", slug), nil
	}
	return fmt.Sprintf("https://www.huurwoningen.nl/huren/%s/?page=%d", slug, page), nil
}

func (Huurwoningen) StopAfterNoResult() bool { return true }

func (Huurwoningen) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("huurwoningen: parse html: %w", err)
	}

	var out []listing.Listing
	doc.Find("section.listing-search-item").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Find(".listing-search-item__link--title").Attr("href")
		if href == "" {
			return
		}

		// Promoted "Topwoning" cards repeat stale listings; skip them so
		// re-scrapes don't keep resurfacing the same promoted property.
		if label := sel.Find(".listing-label--featured").Text(); strings.Contains(label, "Topwoning") {
			return
		}

		title := strings.TrimSpace(sel.Find(".listing-search-item__title").Text())
		priceText := strings.TrimSpace(sel.Find(".listing-search-item__price").Text())
		if priceText == "Prijs op aanvraag" {
			return
		}

		l := listing.Listing{
			Source:       "huurwoningen",
			SourceID:     huurwoningenSourceID(href),
			URL:          "https://www.huurwoningen.nl" + href,
			Title:        title,
			Address:      title,
			Price:        strings.TrimSpace(strings.SplitN(priceText, " per maand", 2)[0]),
			PriceNumeric: parsePriceNumeric(priceText),
			PricePeriod:  listing.PeriodMonth,
			OfferingType: listing.OfferingRental,
			PropertyType: listing.ClassApartment,
		}
		if strings.HasPrefix(href, "http") {
			l.URL = href
		}

		if loc := strings.TrimSpace(sel.Find(".listing-search-item__sub-title").Text()); loc != "" {
			postal, locCity, hood := splitLocation(loc)
			l.PostalCode = postal
			l.City = locCity
			l.Neighborhood = hood
		}
		if l.City == "" {
			l.City = city
		}

		features := sel.Find(".illustrated-features")
		l.LivingAreaM2 = parseAreaM2(features.Find(".illustrated-features__item--surface-area").Text())
		l.Rooms = parseRoomCount(features.Find(".illustrated-features__item--number-of-rooms").Text())
		l.Interior = interiorFromDutch(features.Find(".illustrated-features__item--interior").Text())
		if yearText := strings.TrimSpace(features.Find(".illustrated-features__item--construction-period").Text()); yearText != "" {
			if year, err := strconv.Atoi(yearText); err == nil {
				l.ConstructionYear = year
			}
		}

		if src, ok := sel.Find(".picture__image").Attr("src"); ok && !strings.HasPrefix(src, "data:image") {
			l.Images = []string{src}
		}
		if sel.Find(".listing-search-item__exclusivity-mark").Length() > 0 {
			l.Features = map[string]string{"exclusive_listing": "yes"}
		}

		out = append(out, l)
	})

	hasMore := doc.Find("a.pagination__link--next").Length() > 0

	return Page{Listings: out, HasMore: hasMore}, nil
}

// huurwoningenSourceID pulls the numeric id out of a detail href like
// /huurwoningen/amsterdam/appartement-123456/.
func huurwoningenSourceID(href string) string {
	for _, part := range strings.Split(strings.Trim(href, "/"), "/") {
		if n := firstNumber(part); n > 0 {
			return strconv.Itoa(n)
		}
	}
	return sourceIDFromURL(href)
}
