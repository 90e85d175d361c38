// Package adapter defines the closed interface each rental portal
// implements, plus a registry the Scheduler looks adapters up in by
// name. HTML portals parse with goquery; API portals decode JSON.
package adapter

import (
	"context"
	"fmt"

	"github.com/huisjacht/huisjacht/internal/listing"
)

// Page is one fetched and parsed list page: the listings found on it plus
// whether the adapter believes another page exists.
type Page struct {
	Listings []listing.Listing
	HasMore  bool
}

// Adapter is the contract every source implements. BuildURL must be a
// pure, deterministic function of city and page so the Scheduler can
// reason about pagination without adapter-specific state.
type Adapter interface {
	// Name is the stable source identifier stored in properties.source.
	Name() string
	// BuildURL returns the list-page URL for city at the given 1-based page.
	BuildURL(city string, page int) (string, error)
	// ParseListingPage extracts listings from raw HTML fetched from url.
	ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (Page, error)
	// StopAfterNoResult reports whether the Scheduler applies its
	// pagination stop rules to this source's query URLs: when true, a
	// query URL that redirects to a different final URL or yields zero
	// listings ends the source's cycle. When false, those two signals are
	// ignored and no extra page is fetched either way.
	StopAfterNoResult() bool
}

// Registry maps a source name to its constructed Adapter.
type Registry struct {
	byName map[string]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by Name().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byName[a.Name()] = a
	}
	return r
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names lists every registered source name, for --list-sources.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// ErrUnknownSource names a lookup of an unregistered source name.
// Registry.Get reports absence through its bool result instead, and the
// Scheduler logs an unknown source and moves on without returning it.
var ErrUnknownSource = fmt.Errorf("adapter: unknown source")
