package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/pricehound/api/handler"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/models"
)

type stubScraper struct {
	calls    atomic.Int32
	products []models.Product
	panics   bool
}

func (s *stubScraper) Scrape(context.Context, string) []models.Product {
	s.calls.Add(1)
	if s.panics {
		panic("element handle vanished")
	}
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

type stubEnricher struct{ calls atomic.Int32 }

func (e *stubEnricher) Enrich(_ context.Context, ps []models.Product) []models.Product {
	e.calls.Add(1)
	out := make([]models.Product, len(ps))
	for i, p := range ps {
		if p.NeedsEnrichment() {
			p = p.WithImage("enriched")
		}
		out[i] = p
	}
	return out
}

func catalog(n int) []models.Product {
	out := make([]models.Product, n)
	for i := range out {
		out[i] = models.Product{
			Name:   fmt.Sprintf("Item %d", i),
			Price:  "$1",
			BuyURL: fmt.Sprintf("https://m.example/%d", i),
			Source: "Shop",
		}
	}
	return out
}

type fixture struct {
	router *gin.Engine
	sc     *stubScraper
	en     *stubEnricher
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, cfg *config.Config, sc *stubScraper) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.Load()
	}
	cfg.Server.Mode = gin.TestMode

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	layer := cache.NewLayer(cache.NewMemoryStore(100, 0), 15*time.Minute, 5*time.Minute, m)
	en := &stubEnricher{}

	r := NewRouter(ctx, cfg, Deps{
		Scraper:        sc,
		Enricher:       en,
		Cache:          layer,
		PoolStats:      func() models.PoolStats { return models.PoolStats{Target: 3, Idle: 3} },
		Metrics:        m,
		MetricsHandler: metrics.HandlerFor(reg),
	}, time.Now())
	return &fixture{router: r, sc: sc, en: en, reg: reg}
}

func (f *fixture) get(t *testing.T, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestProducts_Validation(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{products: catalog(3)})

	tests := []struct {
		target  string
		wantErr string
	}{
		{"/api/v1/products", "No query provided"},
		{"/api/v1/products?q=%20%20", "No query provided"},
		{"/api/v1/products?q=shoes&start=abc", "start must be an integer"},
		{"/api/v1/products?q=shoes&limit=1.5", "limit must be an integer"},
	}
	for _, tt := range tests {
		w := f.get(t, tt.target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.target, w.Code)
			continue
		}
		var body models.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error != tt.wantErr {
			t.Errorf("%s: error = %q, want %q", tt.target, body.Error, tt.wantErr)
		}
	}
	if f.sc.calls.Load() != 0 {
		t.Error("scraper called for invalid requests")
	}
}

func TestProducts_MissThenHits(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{products: catalog(10)})

	w := f.get(t, "/api/v1/products?q=running+shoes&start=2&limit=3")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Cache"); got != "miss" {
		t.Errorf("X-Cache = %q, want miss", got)
	}
	var page []models.Product
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].Name != "Item 2" || page[2].Name != "Item 4" {
		t.Fatalf("page = %+v", page)
	}
	if page[0].Image != "enriched" {
		t.Errorf("image = %q, want enriched", page[0].Image)
	}

	// Same window: page tier.
	w = f.get(t, "/api/v1/products?q=Running%20Shoes&start=2&limit=3")
	if got := w.Header().Get("X-Cache"); got != "hit-page" {
		t.Errorf("X-Cache = %q, want hit-page", got)
	}

	// Different window: full tier, sliced locally.
	w = f.get(t, "/api/v1/products?q=running+shoes&start=8&limit=5")
	if got := w.Header().Get("X-Cache"); got != "hit-full" {
		t.Errorf("X-Cache = %q, want hit-full", got)
	}
	page = nil
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page) != 2 || page[0].Name != "Item 8" {
		t.Errorf("full-tier page = %+v", page)
	}

	if f.sc.calls.Load() != 1 || f.en.calls.Load() != 1 {
		t.Errorf("scrape calls = %d, enrich calls = %d, want 1 and 1", f.sc.calls.Load(), f.en.calls.Load())
	}
}

func TestProducts_DefaultsAndClamping(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{products: catalog(120)})

	var page []models.Product
	w := f.get(t, "/api/v1/products?q=tv")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page) != models.DefaultLimit {
		t.Errorf("default page len = %d, want %d", len(page), models.DefaultLimit)
	}

	page = nil
	w = f.get(t, "/api/v1/products?q=tv&start=-4&limit=500")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page) != models.MaxLimit || page[0].Name != "Item 0" {
		t.Errorf("clamped page len = %d", len(page))
	}

	page = nil
	w = f.get(t, "/api/v1/products?q=tv&start=500")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page == nil || len(page) != 0 {
		t.Errorf("past-the-end page = %s, want []", w.Body.String())
	}
}

func TestProducts_EmptyResultIsNotCached(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{})

	for i := 0; i < 2; i++ {
		w := f.get(t, "/api/v1/products?q=unobtainium")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body models.EmptyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Message != "No products found" || body.Results == nil || len(body.Results) != 0 {
			t.Errorf("body = %s", w.Body.String())
		}
	}
	if f.sc.calls.Load() != 2 {
		t.Errorf("scrape calls = %d, want 2", f.sc.calls.Load())
	}
	if f.en.calls.Load() != 0 {
		t.Error("enricher called for an empty result")
	}
}

func TestProducts_PanicBecomes500(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{panics: true})

	w := f.get(t, "/api/v1/products?q=lamp")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body models.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "An error occurred while processing your request" {
		t.Errorf("error = %q", body.Error)
	}

	// The server keeps serving.
	if w := f.get(t, "/api/v1/health"); w.Code != http.StatusOK {
		t.Errorf("health after panic = %d", w.Code)
	}
}

func TestAuthProtectsProductsNotHealth(t *testing.T) {
	cfg := config.Load()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"k1"}
	f := newFixture(t, cfg, &stubScraper{products: catalog(1)})

	if w := f.get(t, "/api/v1/products?q=x"); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := f.get(t, "/api/v1/products?q=x", "X-API-Key", "k1"); w.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", w.Code)
	}
	if w := f.get(t, "/api/v1/health"); w.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil, &stubScraper{products: catalog(1)})

	w := f.get(t, "/api/v1/health")
	var h models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.PoolStats.Target != 3 {
		t.Errorf("health = %+v", h)
	}

	f.get(t, "/api/v1/products?q=x")
	w = f.get(t, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`pricehound_http_requests_total{path="/api/v1/products",status="200"} 1`,
		`pricehound_cache_lookups_total{result="miss",tier="page"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestHealthDegradesUnderLoad(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	stats := models.PoolStats{Target: 3, InUse: 3}
	r.GET("/h", handler.Health(func() models.PoolStats { return stats }, time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/h", nil))
	var h models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "degraded" {
		t.Errorf("status = %q, want degraded", h.Status)
	}
}
