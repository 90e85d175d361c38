// Command huisjacht-scraper runs the ingest side of the pipeline: the
// Scheduler drives the Fetcher and the source adapters over every
// configured source, upserting listings and fanning matches out to the
// notification queue. It also exposes the one-shot query-URL admin
// commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/huisjacht/huisjacht/internal/adapter"
	"github.com/huisjacht/huisjacht/internal/config"
	"github.com/huisjacht/huisjacht/internal/fetchkit"
	"github.com/huisjacht/huisjacht/internal/obs"
	"github.com/huisjacht/huisjacht/internal/proxypool"
	"github.com/huisjacht/huisjacht/internal/scheduler"
	"github.com/huisjacht/huisjacht/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "huisjacht-scraper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, cli, err := config.ParseScraperArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	log, err := obs.NewLogger(os.Getenv("ENV") == "dev")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(cfg.DatabaseDSN); err != nil {
		return err
	}

	registry := adapter.NewRegistry(
		adapter.NewFunda(),
		adapter.NewPararius(),
		adapter.NewKamernet(),
		adapter.NewHuurwoningen(),
		adapter.NewBouwinvest(),
		adapter.NewOneTwoThreeWonen(),
		adapter.NewRebo(),
		adapter.NewVesteda(),
		adapter.NewWoningNet(),
	)

	// One-shot admin/query-URL commands exit before any scanning starts.
	if handled, err := runCLICommands(ctx, db, registry, cli); handled {
		return err
	}

	profiles, err := loadProfiles()
	if err != nil {
		return err
	}

	var transport http.RoundTripper
	var pool *proxypool.Pool
	if cfg.UseProxies && len(cfg.ProxyList) > 0 {
		pool = proxypool.New(cfg.ProxyList, proxypool.Strategy(cfg.ProxyRotation), log)
		transport = &proxyRoundTripper{pool: pool, log: log}
	}

	fetcher := fetchkit.New(cfg.MaxConcurrent, cfg.HTTPTimeout, cfg.RetryAttempts, transport, profiles, log)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)
	if pool != nil {
		go superviseProxyHealth(ctx, pool, metrics, cfg.ProxyProviderURL, log)
	}

	skipCities := map[string]bool{}
	for _, c := range cfg.SkipCities {
		skipCities[c] = true
	}
	skipQueryURLs := map[int64]bool{}
	for _, id := range cfg.SkipQueryURLs {
		skipQueryURLs[id] = true
	}

	sources := cfg.Sources
	if len(sources) == 0 {
		sources = registry.Names()
	}

	sched := scheduler.New(scheduler.Deps{
		Fetcher:  fetcher,
		Registry: registry,
		Store:    db,
		Metrics:  metrics,
		Log:      log,
	}, scheduler.Config{
		Sources:       sources,
		Cities:        cfg.Cities,
		SkipCities:    skipCities,
		SkipQueryURLs: skipQueryURLs,
		MinInterval:   cfg.ScanInterval,
		MaxResults:    cfg.MaxResults,

		DuplicateThreshold: 0.8,
	})

	srv := obs.NewServer(reg, log)
	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- obs.Serve(ctx, srv, fmt.Sprintf(":%d", cfg.HealthPort), log)
	}()

	if cfg.Once {
		if err := sched.RunCycle(ctx); err != nil {
			return err
		}
		stop()
		return <-srvErrCh
	}

	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()
	if err := sched.Run(ctx, cfg.ScanInterval, stopCh); err != nil && ctx.Err() == nil {
		return err
	}
	return <-srvErrCh
}

// runCLICommands executes at most one of the docopt-parsed one-shot
// commands and reports whether it handled the invocation (in which case
// main should return immediately rather than starting the scan loop).
func runCLICommands(ctx context.Context, db *store.Store, registry *adapter.Registry, cli *config.ScraperCLI) (bool, error) {
	switch {
	case cli.ListSources:
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return true, nil
	case cli.AddQueryURL != "":
		source, url, ok := splitSourceURL(cli.AddQueryURL)
		if !ok {
			return true, fmt.Errorf("--add-query-url expects source:url, got %q", cli.AddQueryURL)
		}
		extras, err := buildExtraOptions(cli.QueryBody, cli.QueryHeaders)
		if err != nil {
			return true, err
		}
		id, err := db.AddQueryURL(ctx, source, url, cli.QueryMethod, cli.QueryDesc, extras)
		if err != nil {
			return true, err
		}
		fmt.Printf("added query url %d\n", id)
		return true, nil
	case cli.ListQueryURLs:
		urls, err := db.ListQueryURLs(ctx)
		if err != nil {
			return true, err
		}
		for _, u := range urls {
			last := "never"
			if u.LastScanTime != nil {
				last = u.LastScanTime.Format(time.RFC3339)
			}
			fmt.Printf("%d\t%s\t%s %s\tenabled=%v\tlast=%s\t%s\n", u.ID, u.Source, u.Method, u.URL, u.Enabled, last, u.Description)
		}
		return true, nil
	case cli.HasToggle:
		if err := db.ToggleQueryURL(ctx, cli.ToggleQueryURL); err != nil {
			return true, err
		}
		return true, nil
	case cli.HasDelete:
		if err := db.DeleteQueryURL(ctx, cli.DeleteQueryURL); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

func splitSourceURL(s string) (source, url string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func buildExtraOptions(body, headers string) ([]byte, error) {
	if body == "" && headers == "" {
		return nil, nil
	}
	extras := struct {
		Body    string            `json:"body"`
		Headers map[string]string `json:"headers"`
	}{Body: body, Headers: parseHeaderList(headers)}
	return json.Marshal(extras)
}

func parseHeaderList(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range splitSemicolons(s) {
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				out[pair[:i]] = pair[i+1:]
				break
			}
		}
	}
	return out
}

func splitSemicolons(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func loadProfiles() ([]fetchkit.Profile, error) {
	overrides, err := config.LoadEvasionOverrides(os.Getenv("EVASION_OVERRIDES_PATH"))
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		return nil, nil
	}
	profiles := make([]fetchkit.Profile, 0, len(overrides.Profiles))
	for _, p := range overrides.Profiles {
		profiles = append(profiles, fetchkit.Profile{
			UserAgent:      p.UserAgent,
			AcceptLanguage: p.AcceptLanguage,
		})
	}
	return profiles, nil
}

// proxyRoundTripper picks a fresh proxy out of the pool on every request
// and feeds the outcome back into its health tracking.
type proxyRoundTripper struct {
	pool *proxypool.Pool
	log  *zap.Logger
}

func (rt *proxyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	addr, ok := rt.pool.Next()
	if !ok {
		return http.DefaultTransport.RoundTrip(req)
	}
	transport, err := proxypool.Transport(addr)
	if err != nil {
		rt.pool.RecordResult(addr, false, 0)
		rt.log.Warn("proxy transport build failed", zap.String("proxy", addr), zap.Error(err))
		return nil, err
	}
	start := time.Now()
	resp, err := transport.RoundTrip(req)
	rt.pool.RecordResult(addr, err == nil, time.Since(start))
	return resp, err
}

// superviseProxyHealth keeps the healthy-proxy gauge current and, when
// the healthy count drops below half of the pool, refreshes the set from
// the provider endpoint (falling back to ResetAll without one).
func superviseProxyHealth(ctx context.Context, pool *proxypool.Pool, metrics *obs.Metrics, providerURL string, log *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.ProxyHealthy.Set(float64(pool.HealthyCount()))
			if !pool.BelowHalfHealthy() {
				continue
			}
			if providerURL == "" {
				log.Warn("over half the proxy pool unhealthy, resetting all")
				pool.ResetAll()
				continue
			}
			if err := pool.Refresh(ctx, providerURL); err != nil {
				log.Warn("proxy pool refresh failed, resetting instead", zap.Error(err))
				pool.ResetAll()
			}
		case <-ctx.Done():
			return
		}
	}
}
