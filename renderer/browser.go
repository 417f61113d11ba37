package renderer

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/models"
)

// Browser owns the headless Chromium process. Each Session it creates is one tab.
// It is safe for concurrent use.
type Browser struct {
	browser *rod.Browser
	cfg     config.BrowserConfig

	// snapshot makes sessions parse the rendered HTML once instead of
	// querying live elements.
	snapshot bool
}

// Launch starts a headless browser and connects to it.
func Launch(cfg config.BrowserConfig, containerMode string) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("disable-notifications"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{
		browser:  browser,
		cfg:      cfg,
		snapshot: containerMode == "snapshot",
	}, nil
}

// NewSession opens a fresh tab configured for shopping-grid rendering.
// It satisfies Factory.
func (b *Browser) NewSession() (Session, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("renderer: open page: %w", err)
	}

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			slog.Warn("renderer: user agent override failed", "error", err)
		}
	}
	if b.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": b.cfg.AcceptLanguage}),
		}.Call(page)
	}

	router := setupHijack(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds)

	return &rodSession{
		page:     page,
		router:   router,
		snapshot: b.snapshot,
	}, nil
}

// Close kills the browser process. Errors are logged, not returned.
func (b *Browser) Close() {
	slog.Info("renderer: closing browser")
	if err := b.browser.Close(); err != nil {
		slog.Warn("renderer: browser close failed", "error", err)
	}
}
