package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/models"
)

const keyPrefix = "pricehound"

// Tier identifies which cache entry served a lookup.
type Tier string

const (
	TierNone Tier = "none"
	TierPage Tier = "page"
	TierFull Tier = "full"
)

// Layer is the two-tier product cache: full result sets keyed by query, and
// paginated slices keyed by query and window. Store failures never surface;
// they read as misses and writes are dropped.
type Layer struct {
	store   Store
	fullTTL time.Duration
	pageTTL time.Duration
	metrics *metrics.Metrics
}

// NewLayer creates a Layer over store. m may be nil.
func NewLayer(store Store, fullTTL, pageTTL time.Duration, m *metrics.Metrics) *Layer {
	return &Layer{store: store, fullTTL: fullTTL, pageTTL: pageTTL, metrics: m}
}

// normalize makes equivalent queries share a key.
func normalize(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func queryHash(q string) string {
	sum := sha256.Sum256([]byte(normalize(q)))
	return hex.EncodeToString(sum[:])
}

// FullKey is the key of the complete result set for q.
func FullKey(q string) string {
	return keyPrefix + ":full:" + queryHash(q)
}

// PageKey is the key of the [start, start+limit) window for q.
func PageKey(q string, start, limit int) string {
	return fmt.Sprintf("%s:page:%s:%d:%d", keyPrefix, queryHash(q), start, limit)
}

// Window returns records[start:start+limit], clipped to the slice. It never
// panics and returns an empty, non-nil slice when start is past the end.
func Window(records []models.Product, start, limit int) []models.Product {
	if start < 0 {
		start = 0
	}
	if limit < 0 {
		limit = 0
	}
	if start >= len(records) {
		return []models.Product{}
	}
	end := min(start+limit, len(records))
	return records[start:end]
}

func (l *Layer) GetFull(ctx context.Context, q string) ([]models.Product, bool) {
	return l.get(ctx, FullKey(q))
}

func (l *Layer) GetPage(ctx context.Context, q string, start, limit int) ([]models.Product, bool) {
	return l.get(ctx, PageKey(q, start, limit))
}

func (l *Layer) SetFull(ctx context.Context, q string, records []models.Product) {
	l.set(ctx, FullKey(q), records, l.fullTTL)
}

func (l *Layer) SetPage(ctx context.Context, q string, start, limit int, records []models.Product) {
	l.set(ctx, PageKey(q, start, limit), records, l.pageTTL)
}

// Lookup serves a window from the page tier, then from the full tier
// (writing the derived page back), and reports which tier answered.
func (l *Layer) Lookup(ctx context.Context, q string, start, limit int) ([]models.Product, Tier) {
	if page, ok := l.GetPage(ctx, q, start, limit); ok {
		l.metrics.RecordCacheLookup(string(TierPage), true)
		return page, TierPage
	}
	l.metrics.RecordCacheLookup(string(TierPage), false)

	if full, ok := l.GetFull(ctx, q); ok {
		l.metrics.RecordCacheLookup(string(TierFull), true)
		page := Window(full, start, limit)
		l.SetPage(ctx, q, start, limit, page)
		return page, TierFull
	}
	l.metrics.RecordCacheLookup(string(TierFull), false)
	return nil, TierNone
}

// Close closes the underlying store.
func (l *Layer) Close() error {
	return l.store.Close()
}

func (l *Layer) get(ctx context.Context, key string) ([]models.Product, bool) {
	b, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			slog.Warn("cache: get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var records []models.Product
	if err := json.Unmarshal(b, &records); err != nil {
		slog.Warn("cache: decode failed", "key", key, "error", err)
		return nil, false
	}
	return records, true
}

func (l *Layer) set(ctx context.Context, key string, records []models.Product, ttl time.Duration) {
	if records == nil {
		records = []models.Product{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		slog.Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	if err := l.store.Set(ctx, key, b, ttl); err != nil {
		slog.Warn("cache: set failed", "key", key, "error", err)
	}
}
