package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/models"
	"github.com/use-agent/pricehound/renderer"
)

type fakeSession struct {
	navErr   error
	waitErr  error
	html     string
	visited  []string
	waitUsed time.Duration
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.visited = append(s.visited, url)
	return s.navErr
}

func (s *fakeSession) WaitFor(_ context.Context, _ string, timeout time.Duration) error {
	s.waitUsed = timeout
	return s.waitErr
}

func (s *fakeSession) Containers(_ context.Context, selector string) ([]extract.Container, error) {
	return extract.ContainersFromHTML(s.html, selector)
}

func (s *fakeSession) Reset() error { return nil }
func (s *fakeSession) Close() error { return nil }

// newPool returns a real pool over sessions produced by next.
func newPool(next func() *fakeSession) (*renderer.Pool, *atomic.Int32) {
	var made atomic.Int32
	return renderer.NewPool(1, func() (renderer.Session, error) {
		made.Add(1)
		return next(), nil
	}), &made
}

func testConfig() (config.ScraperConfig, config.SelectorConfig) {
	return config.ScraperConfig{
			SearchURL:         "https://www.google.com/search",
			MaxResults:        50,
			NavigationTimeout: time.Second,
			WaitTimeout:       8 * time.Second,
			Retries:           2,
			RetryDelay:        time.Millisecond,
			ChunkSize:         10,
		}, config.SelectorConfig{
			Marker:    "div.sh-dgr__content",
			Container: "div.sh-dgr__content",
			Name:      ".tAxDx",
			Price:     ".a8Pemb",
			Link:      "a.shntl",
			Image:     "div.ArOc1c img[role='presentation']",
			Source:    "div.aULzUe.IuHnof",
		}
}

// gridOf renders n listings named "Item 0".."Item n-1".
func gridOf(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="sh-dgr__content"><h3 class="tAxDx">Item %d</h3><span class="a8Pemb">$%d.00</span></div>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestScrape_PreservesPageOrderAcrossChunks(t *testing.T) {
	pool, _ := newPool(func() *fakeSession { return &fakeSession{html: gridOf(25)} })
	scfg, sel := testConfig()
	o, err := New(pool, scfg, sel, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := o.Scrape(context.Background(), "running shoes")
	if len(got) != 25 {
		t.Fatalf("got %d products, want 25", len(got))
	}
	for i, p := range got {
		if want := fmt.Sprintf("Item %d", i); p.Name != want {
			t.Errorf("products[%d].Name = %q, want %q", i, p.Name, want)
		}
		if p.Source != models.NoSource {
			t.Errorf("products[%d].Source = %q, want default", i, p.Source)
		}
	}

	st := pool.Stats()
	if st.InUse != 0 || st.Idle != 1 {
		t.Errorf("pool stats = %+v, want the session back idle", st)
	}
}

func TestScrape_RetriesThenGivesUpEmpty(t *testing.T) {
	var navs atomic.Int32
	pool, made := newPool(func() *fakeSession {
		navs.Add(1)
		return &fakeSession{navErr: errors.New("net::ERR_CONNECTION_RESET")}
	})
	scfg, sel := testConfig()
	scfg.Retries = 3
	o, _ := New(pool, scfg, sel, nil)

	got := o.Scrape(context.Background(), "tv")
	if got == nil || len(got) != 0 {
		t.Fatalf("got %v, want empty non-nil slice", got)
	}
	// Every failed attempt discards its session, so each attempt gets a fresh one.
	if made.Load() != 3 {
		t.Errorf("sessions created = %d, want 3", made.Load())
	}
	st := pool.Stats()
	if st.InUse != 0 || st.Idle != 0 || st.Destroyed != 3 {
		t.Errorf("pool stats = %+v", st)
	}
}

func TestScrape_MarkerTimeoutYieldsEmpty(t *testing.T) {
	pool, _ := newPool(func() *fakeSession {
		return &fakeSession{waitErr: context.DeadlineExceeded, html: gridOf(3)}
	})
	scfg, sel := testConfig()
	o, _ := New(pool, scfg, sel, nil)

	if got := o.Scrape(context.Background(), "lamp"); len(got) != 0 {
		t.Errorf("got %d products, want 0", len(got))
	}
}

func TestScrape_SucceedsOnSecondAttempt(t *testing.T) {
	var n atomic.Int32
	pool, _ := newPool(func() *fakeSession {
		if n.Add(1) == 1 {
			return &fakeSession{navErr: errors.New("crash")}
		}
		return &fakeSession{html: gridOf(2)}
	})
	scfg, sel := testConfig()
	o, _ := New(pool, scfg, sel, nil)

	if got := o.Scrape(context.Background(), "desk"); len(got) != 2 {
		t.Fatalf("got %d products, want 2", len(got))
	}
}

func TestScrape_CanceledContextStopsRetries(t *testing.T) {
	pool, made := newPool(func() *fakeSession {
		return &fakeSession{navErr: errors.New("boom")}
	})
	scfg, sel := testConfig()
	scfg.Retries = 5
	scfg.RetryDelay = time.Hour
	o, _ := New(pool, scfg, sel, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan []models.Product, 1)
	go func() { done <- o.Scrape(ctx, "chair") }()

	select {
	case got := <-done:
		if len(got) != 0 {
			t.Errorf("got %d products, want 0", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Scrape did not return after cancellation")
	}
	if made.Load() != 1 {
		t.Errorf("attempts = %d, want 1", made.Load())
	}
}

func TestSearchURL(t *testing.T) {
	scfg, sel := testConfig()
	o, _ := New(nil, scfg, sel, nil)

	got := o.SearchURL("running shoes & socks")
	want := "https://www.google.com/search?tbm=shop&hl=en&psb=1&q=running+shoes+%26+socks&num=50"
	if got != want {
		t.Errorf("SearchURL = %q\nwant %q", got, want)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{context.DeadlineExceeded, models.ErrCodeTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), models.ErrCodeTimeout},
		{errors.New("other"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err, models.ErrCodeNavigation, "x").Code; got != tt.code {
			t.Errorf("categorizeError(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}
