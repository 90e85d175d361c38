// Package proxypool manages a set of outbound proxies
// with per-proxy health tracking, three rotation strategies, and a dialer
// builder that plugs straight into net/http's Transport.Proxy for
// HTTP(S) proxies or golang.org/x/net/proxy for SOCKS5.
package proxypool

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Strategy selects how Next() walks the proxy set.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyFallback   Strategy = "fallback"
)

// MaxFailures is the consecutive-failure threshold past which a proxy is
// marked unhealthy and skipped by Next() until Reset or a success.
const MaxFailures = 3

// health is the mutable state tracked per proxy URL.
type health struct {
	successes       int64
	failures        int64
	consecutiveFail int
	healthy         bool
	avgRespMillis   float64
	lastUsed        time.Time
	lastSuccess     time.Time
}

// Pool is the concurrent, health-tracked set of proxies. Mutations to a
// single proxy's health are lock-free (xsync.Map); selecting the next
// proxy to use is serialized behind mu so round-robin/fallback ordering
// stays consistent under concurrent adapters.
type Pool struct {
	mu       sync.Mutex
	order    []string
	rrIndex  int
	strategy Strategy
	health   *xsync.Map[string, *health]
	log      *zap.Logger
}

// New builds a Pool over the given proxy URLs (each "socks5://host:port"
// or "http://host:port"), all initially marked healthy.
func New(proxies []string, strategy Strategy, log *zap.Logger) *Pool {
	p := &Pool{
		order:    append([]string(nil), proxies...),
		strategy: strategy,
		health:   xsync.NewMap[string, *health](),
		log:      log,
	}
	for _, addr := range proxies {
		p.health.Store(addr, &health{healthy: true})
	}
	return p
}

// Next picks the next proxy URL to use per the configured strategy,
// skipping unhealthy entries unless every proxy is unhealthy (in which
// case it applies the same strategy across the full proxy list rather
// than stalling the scraper entirely).
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return "", false
	}

	healthyOnly := p.healthyAddrs()
	candidates := healthyOnly
	if len(candidates) == 0 {
		candidates = p.order
	}

	switch p.strategy {
	case StrategyRandom:
		addr := candidates[randIntn(len(candidates))]
		p.touch(addr)
		return addr, true
	case StrategyFallback:
		addr := candidates[0]
		p.touch(addr)
		return addr, true
	default: // round robin
		addr := candidates[p.rrIndex%len(candidates)]
		p.rrIndex++
		p.touch(addr)
		return addr, true
	}
}

func (p *Pool) healthyAddrs() []string {
	var out []string
	for _, addr := range p.order {
		if h, ok := p.health.Load(addr); ok && h.healthy {
			out = append(out, addr)
		}
	}
	return out
}

func (p *Pool) touch(addr string) {
	if h, ok := p.health.Load(addr); ok {
		h.lastUsed = time.Now()
	}
}

// RecordResult updates a proxy's health after use. Crossing MaxFailures
// consecutive failures marks it unhealthy; any success resets the streak.
func (p *Pool) RecordResult(addr string, ok bool, latency time.Duration) {
	h, loaded := p.health.Load(addr)
	if !loaded {
		h = &health{healthy: true}
	}
	if ok {
		h.successes++
		h.consecutiveFail = 0
		h.healthy = true
		h.lastSuccess = time.Now()
		if h.avgRespMillis == 0 {
			h.avgRespMillis = float64(latency.Milliseconds())
		} else {
			h.avgRespMillis = h.avgRespMillis*0.9 + float64(latency.Milliseconds())*0.1
		}
	} else {
		h.failures++
		h.consecutiveFail++
		if h.consecutiveFail >= MaxFailures {
			h.healthy = false
		}
	}
	p.health.Store(addr, h)
}

// HealthyCount reports how many proxies are currently healthy, for the
// /metrics gauge.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.healthyAddrs())
}

// ResetAll marks every proxy healthy again, clearing failure streaks.
func (p *Pool) ResetAll() {
	for _, addr := range p.order {
		p.health.Store(addr, &health{healthy: true})
	}
}

// Transport builds an *http.Transport whose outbound connections route
// through addr: http.Transport's own Proxy func for http(s) proxies, or a
// golang.org/x/net/proxy SOCKS5 dialer wrapped into DialContext otherwise.
func Transport(addr string) (*http.Transport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("proxypool: parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxypool: socks5 dialer: %w", err)
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}, nil
	default:
		return nil, fmt.Errorf("proxypool: unsupported proxy scheme %q", u.Scheme)
	}
}

func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}

// Refresh replaces the pool's proxy set with a fresh list fetched from a
// provider endpoint (one proxy URL per line, or comma-separated). Meant
// for when the healthy count drops below half of the total and ResetAll
// would only resurrect known-bad exits.
func (p *Pool) Refresh(ctx context.Context, providerURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, providerURL, nil)
	if err != nil {
		return fmt.Errorf("proxypool: refresh request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxypool: refresh fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxypool: refresh status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("proxypool: refresh read: %w", err)
	}

	var fresh []string
	for _, line := range strings.FieldsFunc(string(raw), func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.TrimSpace(line)
		if line != "" {
			fresh = append(fresh, line)
		}
	}
	if len(fresh) == 0 {
		return fmt.Errorf("proxypool: provider returned no proxies")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = fresh
	p.rrIndex = 0
	p.health = xsync.NewMap[string, *health]()
	for _, addr := range fresh {
		p.health.Store(addr, &health{healthy: true})
	}
	p.log.Info("proxy pool refreshed from provider", zap.Int("count", len(fresh)))
	return nil
}

// BelowHalfHealthy reports whether fewer than half the proxies are
// healthy, the trigger for Refresh or ResetAll.
func (p *Pool) BelowHalfHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return false
	}
	return len(p.healthyAddrs())*2 < len(p.order)
}
