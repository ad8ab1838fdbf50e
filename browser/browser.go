// Package browser owns the Chromium lifecycle and exposes the page
// capability the crawl engine drives: navigate, evaluate, screenshot,
// read DOM. Everything above this package talks to the Page interface
// so heuristics stay testable without a live browser.
package browser

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/storelens/storelens/config"
	"github.com/storelens/storelens/models"
)

// Browser manages the global browser instance and its page pool.
// Safe for concurrent use.
type Browser struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	cfg      config.BrowserConfig
}

// New launches a headless browser and initialises the reusable page pool.
func New(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{
		browser:  b,
		pagePool: rod.NewPagePool(cfg.MaxPages),
		cfg:      cfg,
	}, nil
}

// NewPage borrows a tab from the pool and prepares it for the given
// viewport: stealth JS (installed before any navigation), device
// metrics, stable UA and locale. Callers must Close the returned page
// to return the tab to the pool.
func (b *Browser) NewPage(viewport models.Viewport) (Page, error) {
	raw, err := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, models.NewCrawlError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			err,
		)
	}

	p := &rodPage{raw: raw, pool: &b.pagePool}
	if err := p.prepare(viewport); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Close drains the page pool and kills the browser process.
// Call on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	b.browser.MustClose()
	slog.Info("browser shutdown complete")
}

// desktopUA is the stable user agent for all crawls; a consistent UA
// avoids per-request fingerprint churn that trips bot defenses.
const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

// stabilityPollInterval is the DOM-diff poll used by WaitDOMStable.
const stabilityPollInterval = 300 * time.Millisecond
