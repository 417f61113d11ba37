package models

import (
	"strconv"
	"strings"
)

// Pagination limits for GET /api/v1/products.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// SearchRequest is one inbound product search. It is never persisted.
type SearchRequest struct {
	// Query is the raw search text. Required, non-blank.
	Query string

	// Start is the zero-based offset into the full result list.
	Start int

	// Limit is the page size, within [1, MaxLimit].
	Limit int
}

// ParseSearchRequest builds a SearchRequest from raw query-string values.
//
// A blank query or a non-integer start/limit yields an ErrCodeInvalidInput
// error. Start is clamped to >= 0; an absent limit defaults to DefaultLimit
// and any limit is clamped to [1, MaxLimit].
func ParseSearchRequest(query, start, limit string) (SearchRequest, error) {
	req := SearchRequest{
		Query: strings.TrimSpace(query),
		Limit: DefaultLimit,
	}
	if req.Query == "" {
		return req, NewScrapeError(ErrCodeInvalidInput, "No query provided", nil)
	}

	if start = strings.TrimSpace(start); start != "" {
		n, err := strconv.Atoi(start)
		if err != nil {
			return req, NewScrapeError(ErrCodeInvalidInput, "start must be an integer", err)
		}
		req.Start = n
	}
	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return req, NewScrapeError(ErrCodeInvalidInput, "limit must be an integer", err)
		}
		req.Limit = n
	}

	req.clamp()
	return req, nil
}

func (r *SearchRequest) clamp() {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.Limit < 1 {
		r.Limit = 1
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
}
