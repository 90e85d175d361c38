package adapter

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// OneTwoThreeWonen adapts 123wonen.nl's rental search pages. The cards
// carry their specifications as label/value span pairs, so parsing is a
// small dispatch over the Dutch label text.
type OneTwoThreeWonen struct{}

func NewOneTwoThreeWonen() *OneTwoThreeWonen { return &OneTwoThreeWonen{} }

func (OneTwoThreeWonen) Name() string { return "123wonen" }

func (OneTwoThreeWonen) BuildURL(city string, page int) (string, error) {
	base := "https://www.123wonen.nl/huurwoningen"
	url := base + "/sort/newest"
	if page > 1 {
		url = fmt.Sprintf("%s/page/%d/sort/newest", base, page)
	}
	if city != "" {
		url += "?location=" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "+")
	}
	return url, nil
}

func (OneTwoThreeWonen) StopAfterNoResult() bool { return true }

var oneTwoThreeIDRe = regexp.MustCompile(`/huur/.*-(\d+)-\d+`)

func (OneTwoThreeWonen) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("123wonen: parse html: %w", err)
	}

	var out []listing.Listing
	doc.Find(".pandlist-container").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Find(`a[href*="/huur/"]`).First().Attr("href")
		if href == "" {
			return
		}
		url := absoluteURL("https://www.123wonen.nl", href)

		l := listing.Listing{
			Source:       "123wonen",
			SourceID:     sourceIDFromURL(url),
			URL:          url,
			Title:        strings.TrimSpace(sel.Find(".pand-slogan span").Text()),
			OfferingType: listing.OfferingRental,
			PropertyType: listing.ClassApartment,
		}
		if m := oneTwoThreeIDRe.FindStringSubmatch(url); m != nil {
			l.SourceID = m[1]
		}

		// The card title reads "City, Street 12".
		if addr := strings.TrimSpace(sel.Find(".pand-title").Text()); addr != "" {
			if comma := strings.Index(addr, ","); comma >= 0 {
				l.City = strings.TrimSpace(addr[:comma])
				l.Address = strings.TrimSpace(addr[comma+1:])
			} else {
				l.Address = addr
			}
		}
		if l.City == "" {
			l.City = city
		}
		if l.Title == "" {
			l.Title = l.Address
		}

		priceText := strings.TrimSpace(sel.Find(".pand-price").Text())
		l.PriceNumeric = parsePriceNumeric(priceText)
		l.PricePeriod = listing.PeriodMonth
		if strings.Contains(strings.ToLower(priceText), "week") {
			l.PricePeriod = listing.PeriodWeek
		}
		if l.PriceNumeric > 0 {
			l.Price = fmt.Sprintf("€ %d per %s", l.PriceNumeric, l.PricePeriod)
		}

		sel.Find(".pand-specs li").Each(func(_ int, item *goquery.Selection) {
			spans := item.Find("span")
			if spans.Length() < 2 {
				return
			}
			name := strings.ToLower(strings.TrimSpace(spans.Eq(0).Text()))
			value := strings.TrimSpace(spans.Eq(1).Text())
			switch name {
			case "type":
				l.PropertyType = propertyTypeFromDutch(value)
			case "interieur":
				l.Interior = interiorFromDutch(value)
			case "woonoppervlakte":
				l.LivingAreaM2 = parseAreaM2(value)
			case "slaapkamers":
				l.Rooms = firstNumber(value)
			case "energielabel":
				l.EnergyLabel = strings.ToUpper(strings.TrimSpace(value))
			}
		})

		sel.Find(".pand-image").Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("data-src"); ok && src != "" {
				l.Images = append(l.Images, src)
			}
		})

		out = append(out, l)
	})

	hasMore := doc.Find(`a[href*="/page/"]`).Length() > 0

	return Page{Listings: out, HasMore: hasMore}, nil
}
