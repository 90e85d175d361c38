package fetchkit

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetchDecodesGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<html>listing</html>"))
		_ = gz.Close()
	}))
	defer srv.Close()

	f := New(4, 5*time.Second, 2, nil, nil, zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Contains(res.Body, []byte("listing")) {
		t.Fatalf("expected decoded body, got %q", res.Body)
	}
}

func TestFetchDetectsAntiBotBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Please complete the captcha to continue"))
	}))
	defer srv.Close()

	f := New(4, 5*time.Second, 2, nil, nil, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err == nil {
		t.Fatalf("expected an anti-bot error")
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(4, 5*time.Second, 2, nil, nil, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err == nil {
		t.Fatalf("expected a rate-limited error")
	}
}

func TestFetchRotatesProfileAndAddsEvasionCookiesOnRetry(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	var cookies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		cookies = append(cookies, r.Header.Get("Cookie"))
		n := len(agents)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(4, 5*time.Second, 3, nil, nil, zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d", res.StatusCode)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(agents) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(agents))
	}
	if agents[0] == agents[1] {
		t.Fatalf("expected a different browser profile on retry")
	}
	if cookies[0] != "" {
		t.Fatalf("first attempt should carry no evasion cookies, got %q", cookies[0])
	}
	if !strings.Contains(cookies[1], "__cf_chl") || !strings.Contains(cookies[1], "bm_sz") {
		t.Fatalf("retry should carry evasion cookies, got %q", cookies[1])
	}
}

func TestFetchReportsFinalURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/page-9", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page-1", http.StatusFound)
	})
	mux.HandleFunc("/page-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>first page</html>"))
	})

	f := New(4, 5*time.Second, 2, nil, nil, zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL+"/page-9", Options{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.HasSuffix(res.FinalURL, "/page-1") {
		t.Fatalf("expected final url to reflect the redirect, got %q", res.FinalURL)
	}
}

func TestFetchHonorsRetryAfterOnce(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(4, 5*time.Second, 5, nil, nil, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL, Options{})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected degradation to ErrTransport after the honored retry, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Fatalf("expected exactly 2 attempts (one honored retry), got %d", hits)
	}
}

func TestFetchConcurrencyCap(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(2, 5*time.Second, 2, nil, nil, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Fetch(context.Background(), srv.URL, Options{})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("semaphore let %d requests run concurrently, cap is 2", peak)
	}
}
