package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Browser.PoolSize != 3 {
		t.Errorf("PoolSize = %d, want 3", cfg.Browser.PoolSize)
	}
	if cfg.Browser.SessionMaxAge != 50*time.Minute {
		t.Errorf("SessionMaxAge = %s, want 50m", cfg.Browser.SessionMaxAge)
	}
	if cfg.Scraper.Retries != 2 {
		t.Errorf("Retries = %d, want 2", cfg.Scraper.Retries)
	}
	if cfg.Scraper.WaitTimeout != 8*time.Second {
		t.Errorf("WaitTimeout = %s, want 8s", cfg.Scraper.WaitTimeout)
	}
	if cfg.Scraper.ChunkSize != 10 {
		t.Errorf("ChunkSize = %d, want 10", cfg.Scraper.ChunkSize)
	}
	if cfg.Enrich.BatchSize != 20 || cfg.Enrich.MaxConns != 20 {
		t.Errorf("enrich batch/conns = %d/%d, want 20/20", cfg.Enrich.BatchSize, cfg.Enrich.MaxConns)
	}
	if cfg.Cache.FullTTL != 15*time.Minute || cfg.Cache.PageTTL != 5*time.Minute {
		t.Errorf("cache TTLs = %s/%s, want 15m/5m", cfg.Cache.FullTTL, cfg.Cache.PageTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRICEHOUND_POOL_SIZE", "7")
	t.Setenv("PRICEHOUND_WAIT_TIMEOUT", "3s")
	t.Setenv("PRICEHOUND_BLOCKED_RESOURCES", "Image, Font ,")
	t.Setenv("PRICEHOUND_ENRICH", "false")
	t.Setenv("PRICEHOUND_RETRIES", "not-a-number")

	cfg := Load()

	if cfg.Browser.PoolSize != 7 {
		t.Errorf("PoolSize = %d, want 7", cfg.Browser.PoolSize)
	}
	if cfg.Scraper.WaitTimeout != 3*time.Second {
		t.Errorf("WaitTimeout = %s, want 3s", cfg.Scraper.WaitTimeout)
	}
	if got := cfg.Browser.BlockedResourceTypes; len(got) != 2 || got[0] != "Image" || got[1] != "Font" {
		t.Errorf("BlockedResourceTypes = %v, want [Image Font]", got)
	}
	if cfg.Enrich.Enabled {
		t.Error("Enrich.Enabled should be false")
	}
	if cfg.Scraper.Retries != 2 {
		t.Errorf("unparsable Retries should fall back to 2, got %d", cfg.Scraper.Retries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool", func(c *Config) { c.Browser.PoolSize = 0 }},
		{"zero retries", func(c *Config) { c.Scraper.Retries = 0 }},
		{"zero chunk", func(c *Config) { c.Scraper.ChunkSize = 0 }},
		{"bad container mode", func(c *Config) { c.Scraper.ContainerMode = "xpath" }},
		{"zero navigation timeout", func(c *Config) { c.Scraper.NavigationTimeout = 0 }},
		{"negative wait timeout", func(c *Config) { c.Scraper.WaitTimeout = -time.Second }},
		{"zero probe timeout", func(c *Config) { c.Enrich.ProbeTimeout = 0 }},
		{"page ttl not shorter", func(c *Config) { c.Cache.PageTTL = c.Cache.FullTTL }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"bad selector", func(c *Config) { c.Selectors.Price = "div[" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
