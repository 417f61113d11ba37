package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/pricehound/models"
	"golang.org/x/net/html"
)

// maxProbeBody caps how much of a merchant page is read.
const maxProbeBody = 2 << 20

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// HTTPProber fetches a product's merchant page and fills in a missing image
// from its social preview meta tags, falling back to readability's lead image.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober using client, typically from NewClient.
func NewHTTPProber(client *http.Client) *HTTPProber {
	return &HTTPProber{client: client}
}

// Probe returns p with Image set when the merchant page advertises one, or p
// unchanged when it does not.
func (hp *HTTPProber) Probe(ctx context.Context, p models.Product) (models.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BuyURL, nil)
	if err != nil {
		return p, fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := hp.client.Do(req)
	if err != nil {
		return p, fmt.Errorf("enrich: fetch %s: %w", p.BuyURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !isHTMLContentType(resp.Header.Get("Content-Type")) {
		return p, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return p, fmt.Errorf("enrich: read %s: %w", p.BuyURL, err)
	}

	final := resp.Request.URL
	img := previewImage(bytes.NewReader(body))
	if img == "" {
		img = leadImage(body, final)
	}
	if img == "" {
		return p, nil
	}
	if ref, err := url.Parse(img); err == nil {
		img = final.ResolveReference(ref).String()
	}
	return p.WithImage(img), nil
}

// leadImage runs readability over the whole document. It catches images
// declared outside the head, where previewImage stops looking.
func leadImage(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		slog.Debug("enrich: readability failed", "url", pageURL.String(), "error", err)
		return ""
	}
	return strings.TrimSpace(article.Image)
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// previewImage scans the document head for og:image, falling back to
// twitter:image. It stops at </head> or <body>.
func previewImage(r io.Reader) string {
	z := html.NewTokenizer(r)
	var twitter string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return twitter
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return twitter
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return twitter
			case "meta":
				if !hasAttr {
					continue
				}
				key, content := metaAttrs(z)
				switch key {
				case "og:image", "og:image:url", "og:image:secure_url":
					if content != "" {
						return content
					}
				case "twitter:image", "twitter:image:src":
					if twitter == "" {
						twitter = content
					}
				}
			}
		}
	}
}

// metaAttrs returns the property (or name) and content of a meta tag.
func metaAttrs(z *html.Tokenizer) (key, content string) {
	for {
		k, v, more := z.TagAttr()
		switch string(k) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(string(v)))
			}
		case "content":
			content = strings.TrimSpace(string(v))
		}
		if !more {
			return key, content
		}
	}
}
