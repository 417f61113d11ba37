package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/models"
)

// Scraper produces the full product list for a query. It never fails; an
// empty result means nothing could be scraped.
type Scraper interface {
	Scrape(ctx context.Context, query string) []models.Product
}

// Enricher fills in missing product fields, preserving length and order.
type Enricher interface {
	Enrich(ctx context.Context, products []models.Product) []models.Product
}

const noProductsMessage = "No products found"

// Search returns a handler for GET /api/v1/products.
//
// Flow: validate, cache lookup (page tier then full tier), scrape on miss,
// enrich, cache the full list and the requested window, respond with the window.
func Search(sc Scraper, en Enricher, cc *cache.Layer) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := models.ParseSearchRequest(c.Query("q"), c.Query("start"), c.Query("limit"))
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()

		if page, tier := cc.Lookup(ctx, req.Query, req.Start, req.Limit); tier != cache.TierNone {
			c.Header("X-Cache", "hit-"+string(tier))
			c.JSON(http.StatusOK, page)
			return
		}
		c.Header("X-Cache", "miss")

		products := sc.Scrape(ctx, req.Query)
		if len(products) == 0 {
			c.JSON(http.StatusOK, models.EmptyResponse{
				Results: []models.Product{},
				Message: noProductsMessage,
			})
			return
		}

		products = en.Enrich(ctx, products)
		page := cache.Window(products, req.Start, req.Limit)

		// The response is already computed; a client that went away must
		// not prevent it from being cached.
		storeCtx := context.WithoutCancel(ctx)
		cc.SetFull(storeCtx, req.Query, products)
		cc.SetPage(storeCtx, req.Query, req.Start, req.Limit, page)

		c.JSON(http.StatusOK, page)
	}
}

// respondError maps a ScrapeError to the matching HTTP status and writes an
// ErrorResponse.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), scrapeErr.ToResponse())
}

// mapErrorToStatus translates error codes to HTTP status codes. Scrape
// failures never reach the handler; they degrade to an empty result.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}
