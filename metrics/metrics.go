package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/pricehound/models"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg prometheus.Registerer

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CacheLookupsTotal *prometheus.CounterVec

	ScrapeAttemptsTotal *prometheus.CounterVec
	ScrapeDuration      prometheus.Histogram
	ProductsScraped     prometheus.Histogram

	ProbesTotal *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricehound_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"path"},
		),

		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_cache_lookups_total",
				Help: "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),

		ScrapeAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_scrape_attempts_total",
				Help: "Scrape attempts by outcome (ok or an error code)",
			},
			[]string{"outcome"},
		),
		ScrapeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricehound_scrape_duration_seconds",
				Help:    "Duration of a whole scrape including retries",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		ProductsScraped: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricehound_products_scraped",
				Help:    "Number of products returned by one scrape",
				Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50, 100},
			},
		),

		ProbesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_enrich_probes_total",
				Help: "Enrichment probes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WatchPool exports gauges that read stats on every scrape of /metrics.
func (m *Metrics) WatchPool(stats func() models.PoolStats) {
	if m == nil {
		return
	}
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pricehound_pool_idle_sessions",
		Help: "Rendering sessions waiting in the pool",
	}, func() float64 { return float64(stats().Idle) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pricehound_pool_in_use_sessions",
		Help: "Rendering sessions currently checked out",
	}, func() float64 { return float64(stats().InUse) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "pricehound_pool_sessions_created_total",
		Help: "Rendering sessions created",
	}, func() float64 { return float64(stats().Created) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "pricehound_pool_sessions_destroyed_total",
		Help: "Rendering sessions destroyed",
	}, func() float64 { return float64(stats().Destroyed) })
}

func (m *Metrics) RecordRequest(path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(path, status).Inc()
	m.RequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordCacheLookup counts a lookup. tier is "page", "full" or "none"; hit
// reports whether that tier served it.
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) RecordScrapeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ScrapeAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordScrape(products int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProductsScraped.Observe(float64(products))
	m.ScrapeDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordProbe(outcome string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(outcome).Inc()
}
