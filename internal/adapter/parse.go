package adapter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// citySlug normalizes a city name into the lower-case, dash-joined form
// most Dutch portals use in their URL paths.
func citySlug(city string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(city), " ", "-"))
}

var (
	areaRe   = regexp.MustCompile(`(\d+)\s*m²`)
	roomsRe  = regexp.MustCompile(`(\d+)\s*kamer`)
	postalRe = regexp.MustCompile(`(\d{4}\s*[A-Z]{2})`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// parseAreaM2 extracts the living area from text like "175 m²".
func parseAreaM2(text string) int {
	m := areaRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// parseRoomCount extracts a room count from Dutch text like "5 kamers".
func parseRoomCount(text string) int {
	m := roomsRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// extractPostalCode pulls a Dutch postal code ("1012 AB") out of text,
// returning "" when none is present.
func extractPostalCode(text string) string {
	return postalRe.FindString(text)
}

// firstNumber extracts the first integer appearing in text.
func firstNumber(text string) int {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

// propertyTypeFromDutch maps the portals' Dutch property-type labels onto
// the closed Class set, defaulting to apartment the way the portals
// themselves do for unknown labels.
func propertyTypeFromDutch(text string) listing.Class {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "kamer"):
		return listing.ClassRoom
	case strings.Contains(t, "studio"):
		return listing.ClassStudio
	case strings.Contains(t, "woning"), strings.Contains(t, "huis"),
		strings.Contains(t, "eengezins"), strings.Contains(t, "tussenwoning"),
		strings.Contains(t, "hoek"):
		return listing.ClassHouse
	default:
		return listing.ClassApartment
	}
}

// interiorFromDutch maps "gemeubileerd"/"gestoffeerd"/"kaal" onto the
// Interior set; unknown labels stay empty.
func interiorFromDutch(text string) listing.Interior {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "gemeubileerd"):
		return listing.InteriorFurnished
	case strings.Contains(t, "gestoffeerd"):
		return listing.InteriorUpholstered
	case strings.Contains(t, "kaal"):
		return listing.InteriorShell
	default:
		return ""
	}
}

// splitLocation breaks a "1791 TL Den Burg (Centrum)" sub-title into its
// postal code, city, and neighborhood components.
func splitLocation(text string) (postal, city, neighborhood string) {
	postal = extractPostalCode(text)
	rest := strings.Replace(text, postal, "", 1)

	if open := strings.Index(rest, "("); open >= 0 {
		if close := strings.Index(rest[open:], ")"); close > 0 {
			neighborhood = strings.TrimSpace(rest[open+1 : open+close])
			rest = rest[:open] + rest[open+close+1:]
		}
	}
	city = strings.TrimSpace(rest)
	return postal, city, neighborhood
}

// spacedPostalCode inserts the conventional space into a compact postal
// code ("1012AB" becomes "1012 AB").
func spacedPostalCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 6 && code[4] != ' ' {
		return code[:4] + " " + code[4:]
	}
	return code
}
