package renderer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pricehound/extract"
	"github.com/ysmood/gson"
)

// resetTimeout bounds the about:blank navigation done on release.
const resetTimeout = 5 * time.Second

// rodSession is a Session backed by one rod page.
type rodSession struct {
	page     *rod.Page
	router   *rod.HijackRouter
	snapshot bool
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Navigate(url)
}

// WaitFor relies on rod's Element retrying until the context deadline.
func (s *rodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.page.Context(waitCtx).Element(selector); err != nil {
		return fmt.Errorf("renderer: wait for %q: %w", selector, err)
	}
	return nil
}

func (s *rodSession) Containers(ctx context.Context, selector string) ([]extract.Container, error) {
	p := s.page.Context(ctx)

	if s.snapshot {
		rawHTML, err := p.HTML()
		if err != nil {
			return nil, fmt.Errorf("renderer: capture html: %w", err)
		}
		return extract.ContainersFromHTML(rawHTML, selector)
	}

	els, err := p.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("renderer: query %q: %w", selector, err)
	}
	out := make([]extract.Container, len(els))
	for i, el := range els {
		out[i] = elementContainer{el: el}
	}
	return out, nil
}

// Reset uses the page without any request context so it still works after
// the request deadline has passed.
func (s *rodSession) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	p := s.page.Context(ctx)
	if err := p.Navigate("about:blank"); err != nil {
		return fmt.Errorf("renderer: navigate to about:blank: %w", err)
	}
	if err := (proto.NetworkClearBrowserCookies{}).Call(p); err != nil {
		return fmt.Errorf("renderer: clear cookies: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	return s.page.Close()
}

// elementContainer is a live DOM element. Lookups use Has, which does not
// retry, so a missing field fails immediately instead of waiting.
type elementContainer struct {
	el *rod.Element
}

func (c elementContainer) LookupText(selector string) (string, error) {
	el, err := c.find(selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c elementContainer) LookupAttribute(selector, attr string) (string, error) {
	el, err := c.find(selector)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(attr)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%w: %s[%s]", extract.ErrNoAttribute, selector, attr)
	}
	return *v, nil
}

func (c elementContainer) find(selector string) (*rod.Element, error) {
	found, el, err := c.el.Has(selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", extract.ErrNotFound, selector)
	}
	return el, nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
