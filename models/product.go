package models

// Sentinel values substituted for fields that could not be extracted.
const (
	NoName   = "No name"
	NoPrice  = "No price"
	NoSource = "No source"
)

// Product is one structured shopping listing.
//
// Product is a value type: every stage after extraction passes copies along,
// and helpers such as WithImage return a new value instead of mutating.
type Product struct {
	Name   string `json:"name"`
	Price  string `json:"price"`
	Image  string `json:"image"`
	BuyURL string `json:"buy_url"`
	Source string `json:"source"`
}

// EmptyProduct returns a Product with every field set to its default.
func EmptyProduct() Product {
	return Product{
		Name:   NoName,
		Price:  NoPrice,
		Source: NoSource,
	}
}

// WithImage returns a copy of p with Image replaced.
func (p Product) WithImage(image string) Product {
	p.Image = image
	return p
}

// NeedsEnrichment reports whether p lacks an image but has somewhere to look for one.
func (p Product) NeedsEnrichment() bool {
	return p.Image == "" && p.BuyURL != ""
}
