package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/huisjacht/huisjacht/internal/adapter"
	"github.com/huisjacht/huisjacht/internal/fetchkit"
	"github.com/huisjacht/huisjacht/internal/listing"
	"github.com/huisjacht/huisjacht/internal/store"
)

// fakeFetcher returns a canned Result per URL, or an error if configured.
type fakeFetcher struct {
	results map[string]*fetchkit.Result
	err     error
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, opts fetchkit.Options) (*fetchkit.Result, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[url]; ok {
		return r, nil
	}
	return &fetchkit.Result{FinalURL: url}, nil
}

// fakeAdapter returns a fixed Page per city/url, or a parse error.
type fakeAdapter struct {
	name       string
	pages      map[string]adapter.Page
	stopAfter  bool
	parseErr   error
	buildCalls []string
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) BuildURL(city string, page int) (string, error) {
	a.buildCalls = append(a.buildCalls, city)
	return "https://example.test/" + a.name + "/" + city, nil
}
func (a *fakeAdapter) ParseListingPage(ctx context.Context, html []byte, city, sourceURL string) (adapter.Page, error) {
	if a.parseErr != nil {
		return adapter.Page{}, a.parseErr
	}
	return a.pages[sourceURL], nil
}
func (a *fakeAdapter) StopAfterNoResult() bool { return a.stopAfter }

// fakeStore is an in-memory double for the slice of *store.Store the
// Scheduler needs.
type fakeStore struct {
	lastScan         map[string]time.Time
	queryURLs        map[string][]store.QueryURL
	upserted         map[string]bool // source_id -> is_new already seen
	history          []store.ScanHistory
	enqueueCalls     []int64
	scannedQueryURLs []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lastScan:  map[string]time.Time{},
		queryURLs: map[string][]store.QueryURL{},
		upserted:  map[string]bool{},
	}
}

func (f *fakeStore) EnabledQueryURLs(ctx context.Context, source string) ([]store.QueryURL, error) {
	return f.queryURLs[source], nil
}

func (f *fakeStore) MarkQueryURLScanned(ctx context.Context, id int64) error {
	f.scannedQueryURLs = append(f.scannedQueryURLs, id)
	return nil
}

func (f *fakeStore) LastScanTime(ctx context.Context, source, key string) (time.Time, bool, error) {
	t, ok := f.lastScan[source+"|"+key]
	return t, ok, nil
}

func (f *fakeStore) UpdateScanHistory(ctx context.Context, source, key, url string, newCount, total int, duration time.Duration, status, detail string) error {
	f.lastScan[source+"|"+key] = time.Now()
	f.history = append(f.history, store.ScanHistory{
		Source: source, Key: key, URL: url, NewCount: newCount, TotalCount: total, Status: status, Detail: detail,
	})
	return nil
}

func (f *fakeStore) UpsertListing(ctx context.Context, l *listing.Listing) (bool, int64, error) {
	id := int64(len(f.upserted) + 1)
	if f.upserted[l.Source+"|"+l.SourceID] {
		return false, id, nil
	}
	f.upserted[l.Source+"|"+l.SourceID] = true
	return true, id, nil
}

func (f *fakeStore) EnqueueMatches(ctx context.Context, propertyID int64) (int64, error) {
	f.enqueueCalls = append(f.enqueueCalls, propertyID)
	return 1, nil
}

func (f *fakeStore) FindDuplicates(ctx context.Context, threshold float64) ([]store.DuplicateCandidate, error) {
	return nil, nil
}

func (f *fakeStore) RecordDuplicatePair(ctx context.Context, c store.DuplicateCandidate) error {
	return nil
}

func testScheduler(deps Deps, cfg Config) *Scheduler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return New(deps, cfg)
}

func TestScanSourceBrokenOnFirstEmptyPage(t *testing.T) {
	a := &fakeAdapter{name: "funda", pages: map[string]adapter.Page{}}
	fs := newFakeStore()
	ff := &fakeFetcher{results: map[string]*fetchkit.Result{}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"funda"}, Cities: []string{"Amsterdam", "Utrecht"},
	})
	s.scanSource(context.Background(), "funda", a)

	// Only the first city should have been fetched; BROKEN stops the rest.
	if len(ff.calls) != 1 {
		t.Fatalf("expected 1 fetch call after BROKEN, got %d: %v", len(ff.calls), ff.calls)
	}
	if fs.history[0].Status != "empty" && fs.history[0].Status != "error" {
		t.Fatalf("expected empty/error status, got %q", fs.history[0].Status)
	}
}

func TestScanSourceExhaustedStopsRemaining(t *testing.T) {
	a := &fakeAdapter{name: "funda"}
	url1 := "https://example.test/funda/Amsterdam"
	url2 := "https://example.test/funda/Utrecht"
	a.pages = map[string]adapter.Page{
		url1: {Listings: []listing.Listing{{Source: "funda", SourceID: "1", City: "AMSTERDAM"}}},
		url2: {Listings: []listing.Listing{{Source: "funda", SourceID: "2", City: "UTRECHT"}}},
	}
	fs := newFakeStore()
	// pre-seed as already known so this "first scan" sees new==0, total>0.
	fs.upserted["funda|1"] = true

	ff := &fakeFetcher{results: map[string]*fetchkit.Result{
		url1: {FinalURL: url1}, url2: {FinalURL: url2},
	}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"funda"}, Cities: []string{"Amsterdam", "Utrecht"},
	})
	s.scanSource(context.Background(), "funda", a)

	if len(ff.calls) != 1 {
		t.Fatalf("expected scheduler to stop after first exhausted scan, got %d calls: %v", len(ff.calls), ff.calls)
	}
}

func TestScanSourceParariusRedirectStopsPagination(t *testing.T) {
	a := &fakeAdapter{name: "pararius", stopAfter: true}
	page1 := "https://www.pararius.com/apartments/amsterdam/page-9"
	page2 := "https://www.pararius.com/apartments/amsterdam/page-10"
	redirectedTo := "https://www.pararius.com/apartments/amsterdam/page-1"
	a.pages = map[string]adapter.Page{
		page1: {Listings: []listing.Listing{{Source: "pararius", SourceID: "x", City: "AMSTERDAM"}}},
	}
	fs := newFakeStore()
	fs.queryURLs["pararius"] = []store.QueryURL{
		{ID: 1, Source: "pararius", URL: page1, Enabled: true},
		{ID: 2, Source: "pararius", URL: page2, Enabled: true},
	}
	ff := &fakeFetcher{results: map[string]*fetchkit.Result{
		page1: {FinalURL: redirectedTo}, // Pararius redirects once pagination ends.
	}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"pararius"},
	})
	s.scanSource(context.Background(), "pararius", a)

	if len(ff.calls) != 1 {
		t.Fatalf("expected pagination to stop after the redirect, got %d calls: %v", len(ff.calls), ff.calls)
	}
}

func TestCityScansIgnorePaginationStop(t *testing.T) {
	a := &fakeAdapter{name: "pararius", stopAfter: true}
	amsterdam := "https://example.test/pararius/Amsterdam"
	utrecht := "https://example.test/pararius/Utrecht"
	leiden := "https://example.test/pararius/Leiden"
	a.pages = map[string]adapter.Page{
		amsterdam: {Listings: []listing.Listing{{Source: "pararius", SourceID: "1", City: "AMSTERDAM"}}},
		// Utrecht has no matches today; Leiden still must be scanned,
		// since city pairs carry no pagination state.
		leiden: {Listings: []listing.Listing{{Source: "pararius", SourceID: "2", City: "LEIDEN"}}},
	}
	fs := newFakeStore()
	ff := &fakeFetcher{results: map[string]*fetchkit.Result{
		amsterdam: {FinalURL: amsterdam}, utrecht: {FinalURL: utrecht}, leiden: {FinalURL: leiden},
	}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"pararius"}, Cities: []string{"Amsterdam", "Utrecht", "Leiden"},
	})
	s.scanSource(context.Background(), "pararius", a)

	if len(ff.calls) != 3 {
		t.Fatalf("expected all 3 cities fetched, got %d: %v", len(ff.calls), ff.calls)
	}
}

func TestQueryURLScanStampsLastScanTime(t *testing.T) {
	a := &fakeAdapter{name: "funda"}
	url := "https://example.test/funda/custom-search"
	a.pages = map[string]adapter.Page{
		url: {Listings: []listing.Listing{{Source: "funda", SourceID: "1", City: "AMSTERDAM"}}},
	}
	fs := newFakeStore()
	fs.queryURLs["funda"] = []store.QueryURL{{ID: 42, Source: "funda", URL: url, Enabled: true}}
	ff := &fakeFetcher{results: map[string]*fetchkit.Result{url: {FinalURL: url}}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"funda"},
	})
	s.scanSource(context.Background(), "funda", a)

	if len(fs.scannedQueryURLs) != 1 || fs.scannedQueryURLs[0] != 42 {
		t.Fatalf("expected query url 42 stamped, got %v", fs.scannedQueryURLs)
	}
	if len(fs.history) != 1 || fs.history[0].Key != "query_url_42" {
		t.Fatalf("expected scan history under the query sentinel, got %+v", fs.history)
	}
}

func TestIntervalGateSkipsRecentScan(t *testing.T) {
	a := &fakeAdapter{name: "funda"}
	fs := newFakeStore()
	fs.lastScan["funda|AMSTERDAM"] = time.Now()
	ff := &fakeFetcher{}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(a)}, Config{
		Sources: []string{"funda"}, Cities: []string{"Amsterdam"}, MinInterval: time.Hour,
	})
	s.scanSource(context.Background(), "funda", a)

	if len(ff.calls) != 0 {
		t.Fatalf("expected no fetch within min interval, got %d calls", len(ff.calls))
	}
}

func TestAdapterFailureIsolatesSource(t *testing.T) {
	broken := &fakeAdapter{name: "funda", parseErr: errParse}
	ok := &fakeAdapter{name: "pararius"}
	url := "https://example.test/pararius/Amsterdam"
	ok.pages = map[string]adapter.Page{
		url: {Listings: []listing.Listing{{Source: "pararius", SourceID: "1", City: "AMSTERDAM"}}},
	}
	fs := newFakeStore()
	ff := &fakeFetcher{results: map[string]*fetchkit.Result{url: {FinalURL: url}}}

	s := testScheduler(Deps{Fetcher: ff, Store: fs, Registry: adapter.NewRegistry(broken, ok)}, Config{
		Sources: []string{"funda", "pararius"}, Cities: []string{"Amsterdam"},
	})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(fs.enqueueCalls) != 1 {
		t.Fatalf("expected pararius's listing to still be enqueued despite funda failing, got %d", len(fs.enqueueCalls))
	}
	var fundaRow, parariusRow *store.ScanHistory
	for i, h := range fs.history {
		if h.Source == "funda" {
			fundaRow = &fs.history[i]
		}
		if h.Source == "pararius" {
			parariusRow = &fs.history[i]
		}
	}
	if fundaRow == nil || fundaRow.NewCount != 0 || fundaRow.TotalCount != 0 {
		t.Fatalf("expected funda scan_history new=0 total=0, got %+v", fundaRow)
	}
	if parariusRow == nil || parariusRow.NewCount != 1 {
		t.Fatalf("expected pararius scan_history new=1, got %+v", parariusRow)
	}
}

var errParse = &parseError{"boom"}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
