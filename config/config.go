package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Selectors SelectorConfig
	Enrich    EnrichConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds how long in-flight requests may drain.
	ShutdownTimeout time.Duration // default: 5s
}

// BrowserConfig controls the Rod browser instance and its session pool.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// PoolSize is the number of sessions kept warm (the pool target).
	PoolSize int // default: 3

	// SessionMaxAge retires a session on release once it is this old. 0 disables.
	SessionMaxAge time.Duration // default: 50m

	// Proxy is the proxy URL used by the browser.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth creates sessions with navigator.webdriver masking.
	Stealth bool // default: true

	// UserAgent overrides the session user agent when non-empty.
	UserAgent string

	// AcceptLanguage is sent as an extra header on every navigation.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad/tracking domains.
	BlockAds bool // default: true
}

// ScraperConfig controls the search-and-extract orchestration.
type ScraperConfig struct {
	// SearchURL is the shopping search endpoint; the query string is appended.
	SearchURL string // default: "https://www.google.com/search"

	// MaxResults is sent as the num= parameter.
	MaxResults int // default: 50

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 15s

	// WaitTimeout is the max time to wait for the result grid marker.
	WaitTimeout time.Duration // default: 8s

	// Retries is the total number of attempts per scrape.
	Retries int // default: 2

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration // default: 1s

	// ChunkSize is the number of containers extracted in parallel.
	ChunkSize int // default: 10

	// ContainerMode is "live" (CDP element lookups) or "snapshot" (parse rendered HTML once).
	ContainerMode string // default: "live"
}

// SelectorConfig holds the CSS selectors used against the rendered listing.
type SelectorConfig struct {
	Marker    string // default: "div.sh-dgr__content"
	Container string // default: "div.sh-dgr__content"
	Name      string // default: ".tAxDx"
	Price     string // default: ".a8Pemb"
	Link      string // default: "a.shntl"
	Image     string // default: "div.ArOc1c img[role='presentation']"
	Source    string // default: "div.aULzUe.IuHnof"
}

// EnrichConfig controls the asynchronous enrichment stage.
type EnrichConfig struct {
	Enabled bool // default: true

	// BatchSize is the number of candidates probed per batch.
	BatchSize int // default: 20

	// MaxConns bounds concurrent probe connections.
	MaxConns int // default: 20

	// ProbeTimeout is the hard deadline for one probe.
	ProbeTimeout time.Duration // default: 5s

	// ClientTimeout is the overall http.Client timeout.
	ClientTimeout time.Duration // default: 10s

	// BatchPause is the delay inserted between batches.
	BatchPause time.Duration // default: 100ms
}

// CacheConfig controls the two-tier result cache.
type CacheConfig struct {
	// Backend selects the store: "memory" or "redis".
	Backend string // default: "memory"

	// MaxEntries caps the memory store.
	MaxEntries int // default: 1000

	// FullTTL is the lifetime of full result sets.
	FullTTL time.Duration // default: 15m

	// PageTTL is the lifetime of paginated slices. Must be shorter than FullTTL.
	PageTTL time.Duration // default: 5m

	RedisAddr     string // default: "127.0.0.1:6379"
	RedisPassword string
	RedisDB       int // default: 0
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            envOr("PRICEHOUND_HOST", "0.0.0.0"),
			Port:            envIntOr("PRICEHOUND_PORT", 8080),
			Mode:            envOr("PRICEHOUND_MODE", "release"),
			ShutdownTimeout: envDurationOr("PRICEHOUND_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("PRICEHOUND_HEADLESS", true),
			PoolSize:       envIntOr("PRICEHOUND_POOL_SIZE", 3),
			SessionMaxAge:  envDurationOr("PRICEHOUND_SESSION_MAX_AGE", 50*time.Minute),
			Proxy:          os.Getenv("PRICEHOUND_PROXY"),
			NoSandbox:      envBoolOr("PRICEHOUND_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PRICEHOUND_BROWSER_BIN"),
			Stealth:        envBoolOr("PRICEHOUND_STEALTH", true),
			UserAgent:      os.Getenv("PRICEHOUND_USER_AGENT"),
			AcceptLanguage: envOr("PRICEHOUND_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("PRICEHOUND_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("PRICEHOUND_BLOCK_ADS", true),
		},
		Scraper: ScraperConfig{
			SearchURL:         envOr("PRICEHOUND_SEARCH_URL", "https://www.google.com/search"),
			MaxResults:        envIntOr("PRICEHOUND_MAX_RESULTS", 50),
			NavigationTimeout: envDurationOr("PRICEHOUND_NAV_TIMEOUT", 15*time.Second),
			WaitTimeout:       envDurationOr("PRICEHOUND_WAIT_TIMEOUT", 8*time.Second),
			Retries:           envIntOr("PRICEHOUND_RETRIES", 2),
			RetryDelay:        envDurationOr("PRICEHOUND_RETRY_DELAY", time.Second),
			ChunkSize:         envIntOr("PRICEHOUND_CHUNK_SIZE", 10),
			ContainerMode:     envOr("PRICEHOUND_CONTAINER_MODE", "live"),
		},
		Selectors: SelectorConfig{
			Marker:    envOr("PRICEHOUND_SEL_MARKER", "div.sh-dgr__content"),
			Container: envOr("PRICEHOUND_SEL_CONTAINER", "div.sh-dgr__content"),
			Name:      envOr("PRICEHOUND_SEL_NAME", ".tAxDx"),
			Price:     envOr("PRICEHOUND_SEL_PRICE", ".a8Pemb"),
			Link:      envOr("PRICEHOUND_SEL_LINK", "a.shntl"),
			Image:     envOr("PRICEHOUND_SEL_IMAGE", "div.ArOc1c img[role='presentation']"),
			Source:    envOr("PRICEHOUND_SEL_SOURCE", "div.aULzUe.IuHnof"),
		},
		Enrich: EnrichConfig{
			Enabled:       envBoolOr("PRICEHOUND_ENRICH", true),
			BatchSize:     envIntOr("PRICEHOUND_ENRICH_BATCH", 20),
			MaxConns:      envIntOr("PRICEHOUND_ENRICH_MAX_CONNS", 20),
			ProbeTimeout:  envDurationOr("PRICEHOUND_PROBE_TIMEOUT", 5*time.Second),
			ClientTimeout: envDurationOr("PRICEHOUND_PROBE_CLIENT_TIMEOUT", 10*time.Second),
			BatchPause:    envDurationOr("PRICEHOUND_ENRICH_PAUSE", 100*time.Millisecond),
		},
		Cache: CacheConfig{
			Backend:       envOr("PRICEHOUND_CACHE_BACKEND", "memory"),
			MaxEntries:    envIntOr("PRICEHOUND_CACHE_MAX_ENTRIES", 1000),
			FullTTL:       envDurationOr("PRICEHOUND_CACHE_FULL_TTL", 15*time.Minute),
			PageTTL:       envDurationOr("PRICEHOUND_CACHE_PAGE_TTL", 5*time.Minute),
			RedisAddr:     envOr("PRICEHOUND_REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: os.Getenv("PRICEHOUND_REDIS_PASSWORD"),
			RedisDB:       envIntOr("PRICEHOUND_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICEHOUND_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PRICEHOUND_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICEHOUND_RATE_RPS", 5.0),
			Burst:             envIntOr("PRICEHOUND_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("PRICEHOUND_LOG_LEVEL", "info"),
			Format: envOr("PRICEHOUND_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Browser.PoolSize < 1 {
		return fmt.Errorf("config: pool size must be >= 1, got %d", c.Browser.PoolSize)
	}
	if c.Scraper.Retries < 1 {
		return fmt.Errorf("config: retries must be >= 1, got %d", c.Scraper.Retries)
	}
	if c.Scraper.ChunkSize < 1 {
		return fmt.Errorf("config: chunk size must be >= 1, got %d", c.Scraper.ChunkSize)
	}
	if c.Scraper.MaxResults < 1 {
		return fmt.Errorf("config: max results must be >= 1, got %d", c.Scraper.MaxResults)
	}
	switch c.Scraper.ContainerMode {
	case "live", "snapshot":
	default:
		return fmt.Errorf("config: unknown container mode %q", c.Scraper.ContainerMode)
	}
	if c.Scraper.NavigationTimeout <= 0 || c.Scraper.WaitTimeout <= 0 {
		return fmt.Errorf("config: navigation timeout (%s) and wait timeout (%s) must be positive",
			c.Scraper.NavigationTimeout, c.Scraper.WaitTimeout)
	}
	if c.Enrich.ProbeTimeout <= 0 {
		return fmt.Errorf("config: probe timeout must be positive, got %s", c.Enrich.ProbeTimeout)
	}
	if c.Enrich.BatchSize < 1 || c.Enrich.MaxConns < 1 {
		return fmt.Errorf("config: enrichment batch size and max conns must be >= 1")
	}
	if c.Cache.PageTTL <= 0 || c.Cache.PageTTL >= c.Cache.FullTTL {
		return fmt.Errorf("config: page TTL (%s) must be positive and shorter than full TTL (%s)",
			c.Cache.PageTTL, c.Cache.FullTTL)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}

	for name, sel := range c.Selectors.byName() {
		if _, err := cascadia.Parse(sel); err != nil {
			return fmt.Errorf("config: invalid %s selector %q: %w", name, sel, err)
		}
	}
	return nil
}

func (s SelectorConfig) byName() map[string]string {
	return map[string]string{
		"marker":    s.Marker,
		"container": s.Container,
		"name":      s.Name,
		"price":     s.Price,
		"link":      s.Link,
		"image":     s.Image,
		"source":    s.Source,
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
