package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/models"
)

// Prober looks for a missing field of one product. On error the caller keeps
// the original record. A Probe that outlives its deadline keeps its
// connection slot until it returns.
type Prober interface {
	Probe(ctx context.Context, p models.Product) (models.Product, error)
}

// Pipeline enriches product records that lack an image.
// It is safe for concurrent use; all calls share MaxConns probe slots.
type Pipeline struct {
	prober  Prober
	cfg     config.EnrichConfig
	metrics *metrics.Metrics
	sem     chan struct{}
}

// NewPipeline creates a Pipeline. m may be nil.
func NewPipeline(prober Prober, cfg config.EnrichConfig, m *metrics.Metrics) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}
	return &Pipeline{
		prober:  prober,
		cfg:     cfg,
		metrics: m,
		sem:     make(chan struct{}, cfg.MaxConns),
	}
}

type probeResult struct {
	product models.Product
	outcome string
	err     error
}

// Enrich returns a new slice with the same length and order as products.
// Candidates (no image, some buy URL) are probed in batches; every probe
// that fails or times out leaves its record unchanged.
func (pl *Pipeline) Enrich(ctx context.Context, products []models.Product) []models.Product {
	out := make([]models.Product, len(products))
	copy(out, products)
	if !pl.cfg.Enabled || pl.prober == nil {
		return out
	}

	var candidates []int
	for i, p := range out {
		if p.NeedsEnrichment() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return out
	}

	start := time.Now()
	enriched := 0
	for lo := 0; lo < len(candidates); lo += pl.cfg.BatchSize {
		if lo > 0 && !sleep(ctx, pl.cfg.BatchPause) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		hi := min(lo+pl.cfg.BatchSize, len(candidates))
		enriched += pl.runBatch(ctx, out, candidates[lo:hi])
	}

	slog.Debug("enrich: done",
		"candidates", len(candidates),
		"enriched", enriched,
		"elapsed", time.Since(start),
	)
	return out
}

// runBatch probes the records at idx concurrently and writes successful
// results back into out. It returns how many records gained an image.
func (pl *Pipeline) runBatch(ctx context.Context, out []models.Product, idx []int) int {
	futures := make([]chan probeResult, len(idx))

	for j, i := range idx {
		fut := make(chan probeResult, 1)
		futures[j] = fut
		p := out[i]
		go func() {
			select {
			case pl.sem <- struct{}{}:
			case <-ctx.Done():
				fut <- probeResult{product: p, outcome: "canceled", err: ctx.Err()}
				return
			}
			r, finished := pl.probe(ctx, p)
			fut <- r
			<-finished
			<-pl.sem
		}()
	}

	enriched := 0
	for j, i := range idx {
		r := <-futures[j]
		pl.metrics.RecordProbe(r.outcome)
		if r.err != nil {
			slog.Debug("enrich: probe failed", "url", out[i].BuyURL, "outcome", r.outcome, "error", r.err)
			continue
		}
		if r.product.Image != "" && out[i].Image == "" {
			enriched++
		}
		out[i] = r.product
	}
	return enriched
}

// probe runs one probe under the per-probe deadline. The deadline holds even
// when the prober ignores its context; finished closes once Probe returns.
func (pl *Pipeline) probe(ctx context.Context, p models.Product) (probeResult, <-chan struct{}) {
	pctx, cancel := context.WithTimeout(ctx, pl.cfg.ProbeTimeout)

	done := make(chan probeResult, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				done <- probeResult{product: p, outcome: "panic", err: fmt.Errorf("enrich: probe panicked: %v", rec)}
			}
		}()
		got, err := pl.prober.Probe(pctx, p)
		switch {
		case err != nil && errors.Is(err, context.DeadlineExceeded):
			done <- probeResult{product: p, outcome: "timeout", err: err}
		case err != nil:
			done <- probeResult{product: p, outcome: "error", err: err}
		case got.Image != "":
			done <- probeResult{product: got, outcome: "found"}
		default:
			done <- probeResult{product: got, outcome: "not_found"}
		}
	}()

	select {
	case r := <-done:
		return r, finished
	case <-pctx.Done():
		return probeResult{product: p, outcome: "timeout", err: pctx.Err()}, finished
	}
}

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
