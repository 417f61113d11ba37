package extract

import (
	"fmt"
	"net/url"

	"github.com/use-agent/pricehound/models"
)

// Selectors locate each field inside a listing container.
type Selectors struct {
	Name   string
	Price  string
	Link   string // href is read from this element
	Image  string // src is read from this element
	Source string
}

// FieldResult is the outcome of one field lookup: a value, or the error
// that made it unavailable.
type FieldResult struct {
	Value string
	Err   error
}

// Or returns the looked-up value, or def when the lookup failed or came back empty.
func (r FieldResult) Or(def string) string {
	if r.Err != nil || r.Value == "" {
		return def
	}
	return r.Value
}

// OK reports whether the field was found with a non-empty value.
func (r FieldResult) OK() bool {
	return r.Err == nil && r.Value != ""
}

// Fields holds the independent result of every field of one container.
type Fields struct {
	Name   FieldResult
	Price  FieldResult
	BuyURL FieldResult
	Image  FieldResult
	Source FieldResult
}

// Product applies the documented defaults and returns the finished record.
func (f Fields) Product() models.Product {
	return models.Product{
		Name:   f.Name.Or(models.NoName),
		Price:  f.Price.Or(models.NoPrice),
		Image:  f.Image.Or(""),
		BuyURL: f.BuyURL.Or(""),
		Source: f.Source.Or(models.NoSource),
	}
}

// Extractor maps listing containers to products.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	sel    Selectors
	origin *url.URL
}

// NewExtractor creates an Extractor. origin is the search page origin used
// to resolve relative buy links; it may be nil.
func NewExtractor(sel Selectors, origin *url.URL) *Extractor {
	return &Extractor{sel: sel, origin: origin}
}

// Extract returns the product for c. It never fails: any field that cannot
// be looked up gets its default.
func (e *Extractor) Extract(c Container) models.Product {
	return e.Fields(c).Product()
}

// Fields looks up every field of c independently.
func (e *Extractor) Fields(c Container) Fields {
	f := Fields{
		Name:  lookup(func() (string, error) { return c.LookupText(e.sel.Name) }),
		Price: lookup(func() (string, error) { return c.LookupText(e.sel.Price) }),
		BuyURL: lookup(func() (string, error) {
			href, err := c.LookupAttribute(e.sel.Link, "href")
			if err != nil {
				return "", err
			}
			return NormalizeBuyURL(href, e.origin), nil
		}),
		Image:  lookup(func() (string, error) { return c.LookupAttribute(e.sel.Image, "src") }),
		Source: lookup(func() (string, error) { return c.LookupText(e.sel.Source) }),
	}
	return f
}

// lookup runs fn, converting a panic from the container backend into an error.
func lookup(fn func() (string, error)) (r FieldResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r = FieldResult{Err: fmt.Errorf("extract: lookup panicked: %v", rec)}
		}
	}()
	v, err := fn()
	return FieldResult{Value: v, Err: err}
}
