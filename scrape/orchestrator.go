package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/renderer"
	"golang.org/x/sync/errgroup"
)

// Runner runs fn on a pooled session, releasing it afterwards.
// *renderer.Pool implements it.
type Runner interface {
	Do(fn func(renderer.Session) error) error
}

// Orchestrator turns a query into product records by driving a rendering
// session through navigate, wait and extract, retrying on failure.
// It is safe for concurrent use.
type Orchestrator struct {
	runner    Runner
	cfg       config.ScraperConfig
	marker    string
	container string
	extractor *extract.Extractor
	metrics   *metrics.Metrics
}

// New creates an Orchestrator. m may be nil.
func New(runner Runner, cfg config.ScraperConfig, sel config.SelectorConfig, m *metrics.Metrics) (*Orchestrator, error) {
	origin, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: invalid search url %q: %w", cfg.SearchURL, err)
	}
	ext := extract.NewExtractor(extract.Selectors{
		Name:   sel.Name,
		Price:  sel.Price,
		Link:   sel.Link,
		Image:  sel.Image,
		Source: sel.Source,
	}, origin)

	return &Orchestrator{
		runner:    runner,
		cfg:       cfg,
		marker:    sel.Marker,
		container: sel.Container,
		extractor: ext,
		metrics:   m,
	}, nil
}

// SearchURL builds the shopping search URL for query.
func (o *Orchestrator) SearchURL(query string) string {
	return fmt.Sprintf("%s?tbm=shop&hl=en&psb=1&q=%s&num=%d",
		o.cfg.SearchURL, url.QueryEscape(query), o.cfg.MaxResults)
}

// Scrape returns the products listed for query in page order. It never
// fails: when every attempt fails it returns an empty slice.
func (o *Orchestrator) Scrape(ctx context.Context, query string) []models.Product {
	start := time.Now()
	target := o.SearchURL(query)

	for attempt := 1; attempt <= o.cfg.Retries; attempt++ {
		var products []models.Product
		err := o.runner.Do(func(s renderer.Session) error {
			var err error
			products, err = o.attempt(ctx, s, target)
			return err
		})
		if err == nil {
			o.metrics.RecordScrapeAttempt("ok")
			o.metrics.RecordScrape(len(products), time.Since(start))
			slog.Info("scrape: completed",
				"query", query,
				"attempt", attempt,
				"products", len(products),
				"elapsed", time.Since(start),
			)
			return products
		}

		code := errorCode(err)
		o.metrics.RecordScrapeAttempt(code)
		slog.Warn("scrape: attempt failed",
			"query", query,
			"attempt", attempt,
			"of", o.cfg.Retries,
			"code", code,
			"error", err,
		)

		if attempt == o.cfg.Retries || !sleep(ctx, o.cfg.RetryDelay) {
			break
		}
	}

	slog.Error("scrape: giving up", "query", query, "elapsed", time.Since(start))
	o.metrics.RecordScrape(0, time.Since(start))
	return []models.Product{}
}

func (o *Orchestrator) attempt(ctx context.Context, s renderer.Session, target string) ([]models.Product, error) {
	navCtx, cancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
	err := s.Navigate(navCtx, target)
	cancel()
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeNavigation, "navigation failed")
	}

	if err := s.WaitFor(ctx, o.marker, o.cfg.WaitTimeout); err != nil {
		return nil, categorizeError(err, models.ErrCodeContentNotFound, "result grid did not appear")
	}

	containers, err := s.Containers(ctx, o.container)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeBrowserCrash, "failed to collect listings")
	}

	return o.extractAll(ctx, containers)
}

// extractAll extracts containers chunk by chunk. Containers inside a chunk
// are extracted concurrently; the result keeps container order.
func (o *Orchestrator) extractAll(ctx context.Context, containers []extract.Container) ([]models.Product, error) {
	out := make([]models.Product, len(containers))
	chunk := max(o.cfg.ChunkSize, 1)

	for lo := 0; lo < len(containers); lo += chunk {
		if err := ctx.Err(); err != nil {
			return nil, categorizeError(err, models.ErrCodeTimeout, "extraction interrupted")
		}
		hi := min(lo+chunk, len(containers))

		var g errgroup.Group
		g.SetLimit(chunk)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				out[i] = o.extractor.Extract(containers[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return out, nil
}

// categorizeError maps deadline and cancellation to SCRAPE_TIMEOUT and
// everything else to code.
func categorizeError(err error, code, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(code, msg, err)
	}
}

func errorCode(err error) string {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return models.ErrCodeInternal
}

// sleep waits d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
