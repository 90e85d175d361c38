// Package fetchkit is the HTTP fetcher: browser-profile rotation,
// multi-codec response decoding, anti-bot retry/evasion, and a global
// concurrency cap, all behind one Fetch call adapters use without
// knowing any of this machinery exists.
package fetchkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Result is one successful fetch: the final URL after redirects, status
// code, headers, and decoded body.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// Options tunes one Fetch call beyond the Fetcher's defaults.
type Options struct {
	Method  string
	Body    io.Reader
	Headers map[string]string
}

// Fetcher is the shared, concurrency-capped HTTP client every adapter
// fetches through. One Fetcher is constructed per process and reused.
type Fetcher struct {
	client      *http.Client
	log         *zap.Logger
	sem         chan struct{}
	profiles    []Profile
	maxAttempts int

	// referers tracks the last URL fetched per host, keyed by host, so a
	// retry can present a plausible Referer instead of none at all.
	referers *xsync.Map[string, string]

	mu         sync.Mutex
	profileIdx int
}

const maxRedirects = 10

// New builds a Fetcher with the given concurrency cap, timeout, and
// anti-bot retry budget. transport may be nil to use
// http.DefaultTransport's settings (when proxies are in use the scraper
// passes a round tripper that takes a proxy from its proxypool.Pool on
// every request).
func New(maxConcurrent int, timeout time.Duration, retryAttempts int, transport http.RoundTripper, profiles []Profile, log *zap.Logger) *Fetcher {
	if len(profiles) == 0 {
		profiles = defaultProfiles
	}
	if retryAttempts <= 0 {
		retryAttempts = 2
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{
		client:      client,
		log:         log,
		sem:         make(chan struct{}, maxConcurrent),
		profiles:    profiles,
		maxAttempts: retryAttempts,
		referers:    xsync.NewMap[string, string](),
	}
}

// nextProfile rotates round-robin through the profile table; retries after
// an anti-bot block always advance to the next profile.
func (f *Fetcher) nextProfile() Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[f.profileIdx%len(f.profiles)]
	f.profileIdx++
	return p
}

// Fetch retrieves url, decoding the body and classifying the outcome
// into the typed error set. It applies the global concurrency semaphore,
// a correlation id for logs, and the anti-bot retry loop with profile
// rotation.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reqID := uuid.New().String()
	log := f.log.With(zap.String("request_id", reqID), zap.String("url", rawURL))

	// Buffer the request body so a retry re-sends it instead of an
	// already-drained reader.
	var bodyBytes []byte
	if opts.Body != nil {
		b, err := io.ReadAll(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read request body: %v", ErrTransport, err)
		}
		bodyBytes = b
	}

	var lastErr error
	rateLimitRetried := false
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if bodyBytes != nil {
			opts.Body = bytes.NewReader(bodyBytes)
		}
		res, retryAfter, err := f.attempt(ctx, rawURL, opts, attempt, log)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, ErrAntiBotBlocked) && !errors.Is(err, ErrRateLimited) {
			break
		}

		wait := time.Duration(500+rand.Intn(1000)) * time.Millisecond
		if errors.Is(err, ErrRateLimited) {
			// Retry-After gets exactly one honored retry; a second 429
			// degrades to a transport failure.
			if rateLimitRetried {
				lastErr = fmt.Errorf("%w: still throttled after honoring retry-after", ErrTransport)
				break
			}
			rateLimitRetried = true
			if retryAfter > 0 {
				wait = retryAfter
			}
		}

		log.Warn("retrying after anti-bot/rate-limit signal", zap.Error(err), zap.Int("attempt", attempt))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

const maxRetryAfter = 2 * time.Minute

func (f *Fetcher) attempt(ctx context.Context, rawURL string, opts Options, attempt int, log *zap.Logger) (*Result, time.Duration, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, opts.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}

	profile := f.nextProfile()
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept-Language", profile.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	if profile.SecChUA != "" {
		req.Header.Set("Sec-Ch-Ua", profile.SecChUA)
	}
	if ref, ok := f.referers.Load(req.URL.Host); ok {
		req.Header.Set("Referer", ref)
	}
	if attempt > 0 {
		req.Header.Set("Cookie", evasionCookies())
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	f.referers.Store(req.URL.Host, rawURL)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, 0, fmt.Errorf("%w: status %d", ErrAntiBotBlocked, resp.StatusCode)
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode == http.StatusOK && !looksLikeText(body) {
		// Some edges serve compressed bytes without a Content-Encoding
		// header. Re-run the raw bytes through each codec before giving
		// up.
		body, err = decodeAnyCodec(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: no codec produced text (%d raw bytes)", ErrDecode, len(raw))
		}
	}
	if looksLikeAntiBot(body) {
		return nil, 0, fmt.Errorf("%w: body fingerprint matched", ErrAntiBotBlocked)
	}

	log.Debug("fetch complete", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, 0, nil
}

// parseRetryAfter reads a seconds-valued Retry-After header, clamped so a
// hostile server can't park the scraper for hours.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// evasionCookies fabricates the Cloudflare/Akamai clearance-shaped
// cookies retries present alongside the rotated browser profile.
func evasionCookies() string {
	buf := make([]byte, 18)
	for i := range buf {
		buf[i] = byte('a' + rand.Intn(26))
	}
	return fmt.Sprintf("__cf_chl_rc_m=1; __cf_chl_tk=%s; bm_sz=%s", buf[:9], buf[9:])
}

func looksLikeAntiBot(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range antiBotMarkers {
		if bytes.Contains(lower, []byte(strings.ToLower(marker))) {
			return true
		}
	}
	return false
}
