package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotFound is returned when a selector matches nothing inside a container.
var ErrNotFound = errors.New("extract: element not found")

// ErrNoAttribute is returned when the matched element lacks the requested attribute.
var ErrNoAttribute = errors.New("extract: attribute missing")

// Container is one listing element of a rendered result grid.
//
// Implementations are provided by the rendering backend (live CDP elements)
// and by SelectionContainer (parsed HTML). Both methods look up the first
// descendant matching selector.
type Container interface {
	LookupText(selector string) (string, error)
	LookupAttribute(selector, attr string) (string, error)
}

// SelectionContainer adapts a goquery selection to Container.
type SelectionContainer struct {
	sel *goquery.Selection
}

// NewSelectionContainer wraps s.
func NewSelectionContainer(s *goquery.Selection) SelectionContainer {
	return SelectionContainer{sel: s}
}

func (c SelectionContainer) LookupText(selector string) (string, error) {
	match := c.sel.Find(selector).First()
	if match.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return strings.TrimSpace(match.Text()), nil
}

func (c SelectionContainer) LookupAttribute(selector, attr string) (string, error) {
	match := c.sel.Find(selector).First()
	if match.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	v, ok := match.Attr(attr)
	if !ok {
		return "", fmt.Errorf("%w: %s[%s]", ErrNoAttribute, selector, attr)
	}
	return v, nil
}

// ContainersFromHTML parses rawHTML and returns one container per element
// matching selector, in document order.
func ContainersFromHTML(rawHTML, selector string) ([]Container, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	var out []Container
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, NewSelectionContainer(s))
	})
	return out, nil
}
