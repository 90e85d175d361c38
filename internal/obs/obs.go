// Package obs wires the observability surface shared by both binaries:
// a zap logger and the chi-mounted /healthz + /metrics server. Operator
// tooling only; neither process serves product traffic over HTTP.
package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewLogger builds the single *zap.Logger a process threads through its
// constructors. dev selects the human-readable console encoder; production
// processes use the JSON encoder.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Metrics groups the Prometheus collectors both processes register into,
// each only touched by the component it names.
type Metrics struct {
	ScrapeDuration  *prometheus.HistogramVec
	ListingsNew     *prometheus.CounterVec
	ListingsSeen    *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	DeliverySuccess prometheus.Counter
	DeliveryFailure prometheus.Counter
	ProxyHealthy    prometheus.Gauge
}

// NewMetrics registers and returns the collector set against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "huisjacht",
			Subsystem: "scraper",
			Name:      "scrape_duration_seconds",
			Help:      "Duration of one source/query-URL scan cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		ListingsNew: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huisjacht",
			Subsystem: "scraper",
			Name:      "listings_new_total",
			Help:      "Listings inserted for the first time, by source.",
		}, []string{"source"}),
		ListingsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "huisjacht",
			Subsystem: "scraper",
			Name:      "listings_seen_total",
			Help:      "Listings observed (new or repeat), by source.",
		}, []string{"source"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huisjacht",
			Subsystem: "notifier",
			Name:      "queue_depth",
			Help:      "Pending notification_queue rows.",
		}),
		DeliverySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huisjacht",
			Subsystem: "notifier",
			Name:      "delivery_success_total",
			Help:      "Notifications successfully delivered.",
		}),
		DeliveryFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huisjacht",
			Subsystem: "notifier",
			Name:      "delivery_failure_total",
			Help:      "Notifications marked failed.",
		}),
		ProxyHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huisjacht",
			Subsystem: "scraper",
			Name:      "proxy_healthy_count",
			Help:      "Proxies currently marked healthy in the pool.",
		}),
	}
	reg.MustRegister(
		m.ScrapeDuration, m.ListingsNew, m.ListingsSeen,
		m.QueueDepth, m.DeliverySuccess, m.DeliveryFailure, m.ProxyHealthy,
	)
	return m
}

// NewServer mounts /healthz and /metrics behind the usual middleware
// stack: RealIP/RequestID/Recoverer/Heartbeat first, then a rate-limited
// mux.
func NewServer(reg *prometheus.Registry, log *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(httprate.LimitByIP(100, time.Minute))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Serve starts srv on addr and blocks until ctx is cancelled, then shuts
// down gracefully.
func Serve(ctx context.Context, srv *http.Server, addr string, log *zap.Logger) error {
	srv.Addr = addr
	errCh := make(chan error, 1)
	go func() {
		log.Info("obs server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
