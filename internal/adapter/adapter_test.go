package adapter

import (
	"context"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(
		NewFunda(), NewPararius(), NewKamernet(),
		NewHuurwoningen(), NewBouwinvest(), NewOneTwoThreeWonen(),
		NewRebo(), NewVesteda(), NewWoningNet(),
	)

	if _, ok := r.Get("funda"); !ok {
		t.Fatalf("expected funda registered")
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatalf("expected nonexistent source to be absent")
	}
	if len(r.Names()) != 9 {
		t.Fatalf("expected 9 registered sources, got %d", len(r.Names()))
	}
}

func TestFundaBuildURLDeterministic(t *testing.T) {
	f := NewFunda()
	a, err := f.BuildURL("Amsterdam", 1)
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	b, _ := f.BuildURL("Amsterdam", 1)
	if a != b {
		t.Fatalf("expected deterministic url, got %q and %q", a, b)
	}
}

func TestFundaBuildURLRequiresCity(t *testing.T) {
	f := NewFunda()
	if _, err := f.BuildURL("", 1); err == nil {
		t.Fatalf("expected error for empty city")
	}
}

func TestParariusParseListingPage(t *testing.T) {
	html := []byte(`
<html><body>
<section class="listing-search-item">
  <a class="listing-search-item__link--title" href="/apartment-for-rent/amsterdam/abc123/main-st">Main St 1</a>
  <p class="listing-search-item__sub-title">1012AB Amsterdam</p>
  <div class="listing-search-item__price">€ 1,500 per month</div>
</section>
</body></html>`)

	p := NewPararius()
	page, err := p.ParseListingPage(context.Background(), html, "Amsterdam", "https://www.pararius.com/apartments/amsterdam")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(page.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(page.Listings))
	}
	if page.Listings[0].PriceNumeric != 1500 {
		t.Fatalf("expected price 1500, got %d", page.Listings[0].PriceNumeric)
	}
}
