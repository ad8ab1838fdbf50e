package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/storelens/storelens/models"
)

// Page is the browser capability surface the crawl engine depends on.
// Implementations must honor context deadlines on every blocking call.
type Page interface {
	// Navigate loads a URL. Timeouts surface as context.DeadlineExceeded;
	// connection-level failures keep their "net::ERR_*" text so the
	// navigation controller can classify them.
	Navigate(ctx context.Context, url string) error

	// Reload re-navigates to the current URL unchanged.
	Reload(ctx context.Context) error

	// StatusCode reports the HTTP status of the last navigation, or 0
	// when unavailable.
	StatusCode(ctx context.Context) int

	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// Eval runs a JS function (arrow or function expression) in the
	// main document and returns its JSON result.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// EvalInFrames runs a JS function in the main document and in each
	// same-process iframe, one level deep. Frames that reject the
	// evaluation (cross-origin) are skipped.
	EvalInFrames(ctx context.Context, js string, args ...any) ([]gson.JSON, error)

	// Click clicks the first element matching the selector if it is
	// visible and stable (not mid-animation or layout shift).
	Click(ctx context.Context, selector string) error

	// WaitNetworkIdle blocks until no network activity occurred for the
	// given window, or the context expires.
	WaitNetworkIdle(ctx context.Context, window time.Duration) error

	// WaitDOMStable blocks until the DOM stopped mutating for the given
	// window, or the context expires.
	WaitDOMStable(ctx context.Context, window time.Duration) error

	// Close returns the tab to the pool.
	Close() error
}

// rodPage implements Page on a pooled rod tab.
type rodPage struct {
	raw  *rod.Page
	pool *rod.Pool[rod.Page]
}

// prepare installs stealth and viewport emulation. Both must happen
// before the first navigation to take effect.
func (p *rodPage) prepare(viewport models.Viewport) error {
	if _, err := p.raw.EvalOnNewDocument(stealth.JS); err != nil {
		return models.NewCrawlError(models.ErrCodeBrowserCrash, "stealth injection failed", err)
	}

	size, ok := models.ViewportSizes[viewport]
	if !ok {
		size = models.ViewportSizes[models.ViewportDesktop]
	}
	mobile := viewport == models.ViewportMobile
	ua := desktopUA
	if mobile {
		ua = mobileUA
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             size.Width,
		Height:            size.Height,
		DeviceScaleFactor: 1,
		Mobile:            mobile,
	}).Call(p.raw); err != nil {
		return models.NewCrawlError(models.ErrCodeBrowserCrash, "viewport emulation failed", err)
	}
	if err := (proto.EmulationSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: "en-US",
	}).Call(p.raw); err != nil {
		return models.NewCrawlError(models.ErrCodeBrowserCrash, "user agent override failed", err)
	}
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return p.raw.Context(ctx).Navigate(url)
}

func (p *rodPage) Reload(ctx context.Context) error {
	return p.raw.Context(ctx).Reload()
}

// StatusCode reads the navigation entry's responseStatus via the
// Performance API; no CDP network listeners needed.
func (p *rodPage) StatusCode(ctx context.Context) int {
	res, err := p.Eval(ctx, `() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Int()
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.Eval(ctx, `() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

func (p *rodPage) BodyText(ctx context.Context) (string, error) {
	res, err := p.Eval(ctx, `() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.raw.Context(ctx).HTML()
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.raw.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := p.raw.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

func (p *rodPage) EvalInFrames(ctx context.Context, js string, args ...any) ([]gson.JSON, error) {
	main, err := p.Eval(ctx, js, args...)
	if err != nil {
		return nil, err
	}
	results := []gson.JSON{main}

	// One level of iframes; cross-origin frames fail Eval and are skipped.
	iframes, err := p.raw.Context(ctx).Elements("iframe")
	if err != nil {
		return results, nil
	}
	for _, el := range iframes {
		frame, ferr := el.Frame()
		if ferr != nil {
			continue
		}
		res, ferr := frame.Context(ctx).Eval(js, args...)
		if ferr != nil {
			continue
		}
		results = append(results, res.Value)
	}
	return results, nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	page := p.raw.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return err
	}
	visible, err := el.Visible()
	if err != nil {
		return err
	}
	if !visible {
		return &rod.ElementNotFoundError{}
	}
	if err := el.WaitStable(stabilityPollInterval); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) WaitNetworkIdle(ctx context.Context, window time.Duration) error {
	page := p.raw.Context(ctx)
	wait := page.WaitRequestIdle(window, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *rodPage) WaitDOMStable(ctx context.Context, window time.Duration) error {
	return p.raw.Context(ctx).WaitDOMStable(window, 0.1)
}

// Close parks the tab on about:blank and returns it to the pool.
// Uses the original page reference (no request context) so cleanup
// succeeds even after the request deadline expired.
func (p *rodPage) Close() error {
	err := p.raw.Navigate("about:blank")
	p.pool.Put(p.raw)
	return err
}
