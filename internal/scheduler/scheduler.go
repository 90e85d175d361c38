// Package scheduler drives repeated scan cycles over every configured
// source, honoring per-(source,key) minimum intervals, the
// pagination-stop state machine, and failure isolation between sources:
// a broken adapter, a throttled fetch, or an exhausted portal must never
// stall the other sources in the same cycle.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/huisjacht/huisjacht/internal/adapter"
	"github.com/huisjacht/huisjacht/internal/fetchkit"
	"github.com/huisjacht/huisjacht/internal/listing"
	"github.com/huisjacht/huisjacht/internal/obs"
	"github.com/huisjacht/huisjacht/internal/store"
)

var upperCaser = cases.Upper(language.Dutch)

func upper(s string) string { return upperCaser.String(s) }

// querySentinel formats a query URL's scan_history key: the city column
// carries "query_url_{id}" for query-URL scans.
func querySentinel(id int64) string { return fmt.Sprintf("query_url_%d", id) }

// Config tunes one Scheduler instance. MinInterval gates both query-URL
// and city scans per (source, key); the CLI exposes a single --interval
// flag, so the same duration serves as both the cycle cadence and the
// per-key gate and a source is never rescanned faster than the loop
// itself runs.
type Config struct {
	Sources       []string
	Cities        []string
	SkipCities    map[string]bool
	SkipQueryURLs map[int64]bool
	MinInterval   time.Duration
	MaxResults    int

	// DuplicateThreshold is the address-similarity bound for the
	// end-of-cycle cross-source duplicate sweep; zero disables the sweep.
	DuplicateThreshold float64
}

// fetcher is the slice of *fetchkit.Fetcher the Scheduler needs, narrow
// enough that a test fake can stand in for live HTTP.
type fetcher interface {
	Fetch(ctx context.Context, url string, opts fetchkit.Options) (*fetchkit.Result, error)
}

// listingStore is the slice of *store.Store the Scheduler drives, narrow
// enough that a test fake can stand in for Postgres.
type listingStore interface {
	EnabledQueryURLs(ctx context.Context, source string) ([]store.QueryURL, error)
	MarkQueryURLScanned(ctx context.Context, id int64) error
	LastScanTime(ctx context.Context, source, key string) (time.Time, bool, error)
	UpdateScanHistory(ctx context.Context, source, key, url string, newCount, total int, duration time.Duration, status, detail string) error
	UpsertListing(ctx context.Context, l *listing.Listing) (inserted bool, id int64, err error)
	EnqueueMatches(ctx context.Context, propertyID int64) (int64, error)
	FindDuplicates(ctx context.Context, threshold float64) ([]store.DuplicateCandidate, error)
	RecordDuplicatePair(ctx context.Context, c store.DuplicateCandidate) error
}

// Deps are the collaborators the Scheduler drives but does not own.
type Deps struct {
	Fetcher  fetcher
	Registry *adapter.Registry
	Store    listingStore
	Metrics  *obs.Metrics
	Log      *zap.Logger
}

// Scheduler drives the ingest side of the pipeline: Scheduler → Fetcher →
// Source Adapter → Listing Store → Preference Store (fan-out).
type Scheduler struct {
	deps Deps
	cfg  Config
}

// New builds a Scheduler over deps and cfg.
func New(deps Deps, cfg Config) *Scheduler {
	return &Scheduler{deps: deps, cfg: cfg}
}

// Run loops RunCycle on interval until stop fires or ctx is cancelled,
// whichever comes first.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, stop <-chan struct{}) error {
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.deps.Log.Error("scan cycle failed", zap.Error(err))
		}
		select {
		case <-time.After(interval):
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunCycle scans every configured source once. A panic or error inside
// one source's scan never stops the others.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	for _, name := range s.cfg.Sources {
		a, ok := s.deps.Registry.Get(name)
		if !ok {
			s.deps.Log.Warn("unknown source requested", zap.String("source", name))
			continue
		}
		s.scanSourceSafely(ctx, name, a)
	}
	s.sweepDuplicates(ctx)
	return nil
}

// sweepDuplicates runs the end-of-cycle cross-source duplicate pass:
// every pair that is hash-identical and clears the address-similarity
// threshold is recorded in duplicate_properties. A failed sweep is
// logged and dropped; the next cycle rescans the full set anyway.
func (s *Scheduler) sweepDuplicates(ctx context.Context) {
	if s.cfg.DuplicateThreshold <= 0 {
		return
	}
	pairs, err := s.deps.Store.FindDuplicates(ctx, s.cfg.DuplicateThreshold)
	if err != nil {
		s.deps.Log.Error("duplicate sweep failed", zap.Error(err))
		return
	}
	for _, pair := range pairs {
		if err := s.deps.Store.RecordDuplicatePair(ctx, pair); err != nil {
			s.deps.Log.Error("record duplicate pair failed",
				zap.String("source_a", pair.SourceA), zap.String("source_b", pair.SourceB), zap.Error(err))
		}
	}
	if len(pairs) > 0 {
		s.deps.Log.Info("duplicate sweep recorded pairs", zap.Int("count", len(pairs)))
	}
}

// scanSourceSafely recovers from a panicking adapter or bug in scanSource
// itself so one misbehaving source never aborts the cycle.
func (s *Scheduler) scanSourceSafely(ctx context.Context, name string, a adapter.Adapter) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Log.Error("recovered panic scanning source", zap.String("source", name), zap.Any("panic", r))
		}
	}()
	s.scanSource(ctx, name, a)
}

// job is one fetchable unit within a source's cycle: either a query URL
// (pagination state applies) or a city search (no pagination state).
type job struct {
	key        string // scan_history key: "query_url_{id}" or the city
	url        string
	cityHint   string
	isQueryURL bool
	queryURLID int64
	method     string
	body       string
	headers    map[string]string
}

// queryURLExtras is the JSON shape stored in query_urls.extra_options:
// optional request overrides populated only when an operator passes them
// via --add-query-url.
type queryURLExtras struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// scanSource runs one source's cycle: query URLs first (ascending id
// order), then city pairs, sharing one broken/exhausted/first-scan state
// across both since both are URLs of the same source within one cycle.
func (s *Scheduler) scanSource(ctx context.Context, name string, a adapter.Adapter) {
	log := s.deps.Log.With(zap.String("source", name))
	jobs := s.buildJobs(ctx, name, log)

	firstScan := true
	broken := false
	exhausted := false

	for _, j := range jobs {
		if broken || exhausted {
			break
		}

		skip, err := s.intervalGate(ctx, name, j.key)
		if err != nil {
			log.Error("interval gate check failed", zap.String("key", j.key), zap.Error(err))
			continue
		}
		if skip {
			continue
		}

		total, newCount, finalURL, runErr := s.runJob(ctx, name, a, j)
		if j.isQueryURL {
			if err := s.deps.Store.MarkQueryURLScanned(ctx, j.queryURLID); err != nil {
				log.Error("mark query url scanned failed", zap.Int64("query_url_id", j.queryURLID), zap.Error(err))
			}
		}
		if runErr != nil {
			log.Error("scan job failed", zap.String("key", j.key), zap.Error(runErr))
			continue
		}

		if firstScan {
			firstScan = false
			switch {
			case total == 0:
				broken = true
				log.Warn("source marked broken: first scan of cycle returned zero total", zap.String("key", j.key))
			case newCount == 0:
				exhausted = true
			}
		} else if newCount == 0 && total > 0 {
			exhausted = true
		}

		// Pagination stop rules only exist for query URLs; a city pair is
		// one URL with no pagination state behind it.
		if j.isQueryURL && a.StopAfterNoResult() {
			if finalURL != "" && !sameURL(finalURL, j.url) {
				// Pararius special case: pagination redirected to a
				// different final URL, meaning it ran out of pages.
				exhausted = true
			}
			if total == 0 {
				exhausted = true
			}
		}
	}
}

// buildJobs assembles the ordered job list for one source: enabled query
// URLs in ascending id order, followed by city pairs, each filtered by
// the configured skip lists.
func (s *Scheduler) buildJobs(ctx context.Context, source string, log *zap.Logger) []job {
	var jobs []job

	qurls, err := s.deps.Store.EnabledQueryURLs(ctx, source)
	if err != nil {
		log.Error("list query urls failed", zap.Error(err))
	}
	for _, qu := range qurls {
		if s.cfg.SkipQueryURLs[qu.ID] {
			continue
		}
		j := job{
			key:        querySentinel(qu.ID),
			url:        qu.URL,
			cityHint:   s.cityFromURL(qu.URL),
			isQueryURL: true,
			queryURLID: qu.ID,
			method:     qu.Method,
		}
		if len(qu.ExtraOptions) > 0 {
			var extras queryURLExtras
			if err := json.Unmarshal(qu.ExtraOptions, &extras); err != nil {
				log.Warn("ignoring malformed extra_options", zap.Int64("query_url_id", qu.ID), zap.Error(err))
			} else {
				j.body = extras.Body
				j.headers = extras.Headers
			}
		}
		jobs = append(jobs, j)
	}

	for _, city := range s.cfg.Cities {
		if s.cfg.SkipCities[city] {
			continue
		}
		a, ok := s.deps.Registry.Get(source)
		if !ok {
			continue
		}
		url, err := a.BuildURL(city, 1)
		if err != nil {
			log.Error("build url failed", zap.String("city", city), zap.Error(err))
			continue
		}
		jobs = append(jobs, job{
			key:      upper(city),
			url:      url,
			cityHint: city,
		})
	}

	return jobs
}

// cityFromURL guesses the city a query URL targets by substring-matching
// it against the configured city list, falling back to "unknown".
func (s *Scheduler) cityFromURL(url string) string {
	lower := strings.ToLower(url)
	for _, city := range s.cfg.Cities {
		if strings.Contains(lower, strings.ToLower(city)) {
			return city
		}
	}
	return "unknown"
}

// intervalGate reports whether key's last scan is too recent to rerun;
// a gated key is never fetched this cycle.
func (s *Scheduler) intervalGate(ctx context.Context, source, key string) (skip bool, err error) {
	last, ok, err := s.deps.Store.LastScanTime(ctx, source, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return time.Since(last) < s.cfg.MinInterval, nil
}

// runJob fetches and parses one job, upserts every listing it finds, and
// fans new listings out to matching users. Scan history is recorded at
// the end regardless of outcome.
func (s *Scheduler) runJob(ctx context.Context, source string, a adapter.Adapter, j job) (total, newCount int, finalURL string, err error) {
	start := time.Now()
	status := "ok"
	detail := ""

	defer func() {
		duration := time.Since(start)
		if herr := s.deps.Store.UpdateScanHistory(ctx, source, j.key, j.url, newCount, total, duration, status, detail); herr != nil {
			s.deps.Log.Error("update scan history failed", zap.String("source", source), zap.String("key", j.key), zap.Error(herr))
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ScrapeDuration.WithLabelValues(source).Observe(duration.Seconds())
			s.deps.Metrics.ListingsSeen.WithLabelValues(source).Add(float64(total))
			s.deps.Metrics.ListingsNew.WithLabelValues(source).Add(float64(newCount))
		}
	}()

	opts := fetchkit.Options{Headers: j.headers}
	if j.method != "" {
		opts.Method = j.method
	}
	if j.body != "" {
		opts.Body = strings.NewReader(j.body)
	}

	res, ferr := s.deps.Fetcher.Fetch(ctx, j.url, opts)
	if ferr != nil {
		status, detail = "error", ferr.Error()
		err = fmt.Errorf("scheduler: fetch %s: %w", j.url, ferr)
		return
	}
	finalURL = res.FinalURL

	page, perr := parseSafely(ctx, a, res.Body, j.cityHint, j.url)
	if perr != nil {
		status, detail = "error", perr.Error()
		err = fmt.Errorf("scheduler: parse %s: %w", j.url, perr)
		return
	}

	total = len(page.Listings)
	if s.cfg.MaxResults > 0 && total > s.cfg.MaxResults {
		page.Listings = page.Listings[:s.cfg.MaxResults]
	}

	for i := range page.Listings {
		l := page.Listings[i]
		if l.City == "" {
			l.City = j.cityHint
		}
		l.Normalize(upper)
		l.DateScraped = time.Now()

		inserted, id, uerr := s.deps.Store.UpsertListing(ctx, &l)
		if uerr != nil {
			s.deps.Log.Error("upsert listing failed", zap.String("source", source), zap.String("source_id", l.SourceID), zap.Error(uerr))
			continue
		}
		if inserted {
			newCount++
			if _, merr := s.deps.Store.EnqueueMatches(ctx, id); merr != nil {
				s.deps.Log.Error("enqueue matches failed", zap.Int64("listing_id", id), zap.Error(merr))
			}
		}
	}

	if total == 0 {
		status = "empty"
	} else if newCount == 0 {
		status = "exhausted"
	}
	return
}

// parseSafely wraps Adapter.ParseListingPage so a panicking parser
// degrades to an error for this URL instead of taking the whole
// Scheduler down.
func parseSafely(ctx context.Context, a adapter.Adapter, html []byte, city, sourceURL string) (page adapter.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return a.ParseListingPage(ctx, html, city, sourceURL)
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
