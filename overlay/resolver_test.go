package overlay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
)

// fakePage implements browser.Page for resolver tests; only Eval,
// EvalInFrames, and Click carry behavior.
type fakePage struct {
	eval         func(js string, args ...any) (gson.JSON, error)
	evalInFrames func(js string, args ...any) ([]gson.JSON, error)
	click        func(selector string) error

	clicks []string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (p *fakePage) Reload(ctx context.Context) error               { return nil }
func (p *fakePage) StatusCode(ctx context.Context) int             { return 200 }
func (p *fakePage) Title(ctx context.Context) (string, error)      { return "", nil }
func (p *fakePage) BodyText(ctx context.Context) (string, error)   { return "", nil }
func (p *fakePage) HTML(ctx context.Context) (string, error)       { return "", nil }
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	if p.eval != nil {
		return p.eval(js, args...)
	}
	return gson.New([]any{}), nil
}

func (p *fakePage) EvalInFrames(ctx context.Context, js string, args ...any) ([]gson.JSON, error) {
	if p.evalInFrames != nil {
		return p.evalInFrames(js, args...)
	}
	return []gson.JSON{gson.New(0)}, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	if p.click != nil {
		return p.click(selector)
	}
	return nil
}

func (p *fakePage) WaitNetworkIdle(ctx context.Context, window time.Duration) error { return nil }
func (p *fakePage) WaitDOMStable(ctx context.Context, window time.Duration) error   { return nil }
func (p *fakePage) Close() error                                                    { return nil }

func testResolver() *Resolver {
	rules, _ := policy.NewRegistry().Resolve("")
	r := NewResolver(rules)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func candidateJSON(cands ...map[string]any) gson.JSON {
	arr := make([]any, 0, len(cands))
	for _, c := range cands {
		arr = append(arr, c)
	}
	return gson.New(arr)
}

func TestIsSafeDismissText(t *testing.T) {
	safe := []string{"Accept all cookies", "No thanks", "GOT IT", "×", "x", "Close", "Continue shopping"}
	for _, s := range safe {
		if !IsSafeDismissText(s) {
			t.Errorf("%q should be safe to click", s)
		}
	}
	unsafe := []string{"", "Learn more", "View details", "xxl size"}
	for _, s := range unsafe {
		if IsSafeDismissText(s) {
			t.Errorf("%q should not be safe to click", s)
		}
	}
}

func TestIsRiskyText(t *testing.T) {
	risky := []string{"Sign up now", "Subscribe", "Add to cart", "Download the app", "Buy now"}
	for _, s := range risky {
		if !IsRiskyText(s) {
			t.Errorf("%q should be risky", s)
		}
	}
	if IsRiskyText("No thanks") {
		t.Error("dismissal text must not be risky")
	}
}

func TestSelectDismissals(t *testing.T) {
	cands := []Candidate{
		{Family: CategoryNewsletter, Selector: ".newsletter", Tag: "a", Text: "Subscribe & close"}, // risky wins
		{Family: CategoryNewsletter, Selector: ".newsletter", Tag: "b", Text: "No thanks"},
		{Family: CategoryNewsletter, Selector: ".newsletter", Tag: "c", Text: "Close"}, // same container, deduped
		{Family: CategoryCookieConsent, Selector: "#onetrust-banner-sdk", Tag: "d", Text: "Accept all"},
		{Family: CategoryGenericModal, Selector: "[role='dialog']", Tag: "e", Text: "Learn more"}, // not safe
	}
	got := SelectDismissals(cands, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 dismissals, got %d: %+v", len(got), got)
	}
	if got[0].Tag != "b" || got[1].Tag != "d" {
		t.Errorf("wrong selection order: %+v", got)
	}
}

func TestSelectDismissals_CapsPerPass(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, Candidate{
			Family:   CategoryGenericModal,
			Selector: "[role='dialog']",
			Tag:      string(rune('a' + i)),
			Text:     "Close",
		})
	}
	// Distinct selectors so dedupe does not kick in.
	for i := range cands {
		cands[i].Selector = cands[i].Selector + cands[i].Tag
	}
	if got := SelectDismissals(cands, 5); len(got) != 5 {
		t.Errorf("expected cap at 5, got %d", len(got))
	}
}

func TestResolve_CleanPageProducesNoEvents(t *testing.T) {
	r := testResolver()
	pg := &fakePage{}

	events := r.Resolve(context.Background(), pg, PageContext{SessionID: "s1"})
	if len(events) != 0 {
		t.Errorf("clean page must yield zero events, got %d", len(events))
	}
	if len(pg.clicks) != 0 {
		t.Errorf("clean page must not be clicked, got %v", pg.clicks)
	}
}

func TestResolve_SecondPassOnlyAfterDismissal(t *testing.T) {
	r := testResolver()
	snapshots := 0
	pg := &fakePage{}
	pg.eval = func(js string, args ...any) (gson.JSON, error) {
		snapshots++
		if snapshots == 1 {
			return candidateJSON(map[string]any{
				"family": "cookie_consent", "selector": "#onetrust-banner-sdk",
				"tag": "sl0", "text": "Accept all",
			}), nil
		}
		return gson.New([]any{}), nil
	}

	events := r.Resolve(context.Background(), pg, PageContext{SessionID: "s1"})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != models.ActionDismissClick || events[0].Result != models.OverlaySuccess {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if snapshots != 2 {
		t.Errorf("a dismissal must trigger the second pass, snapshots = %d", snapshots)
	}
	if len(pg.clicks) != 1 || pg.clicks[0] != `[data-sl-dismiss="sl0"]` {
		t.Errorf("unexpected clicks: %v", pg.clicks)
	}
}

func TestResolveOnce_SinglePassEvenAfterDismissal(t *testing.T) {
	r := testResolver()
	snapshots := 0
	pg := &fakePage{}
	// A dismissible popup appears on every snapshot; the single-pass
	// entry point must still stop after one pass.
	pg.eval = func(js string, args ...any) (gson.JSON, error) {
		snapshots++
		return candidateJSON(map[string]any{
			"family": "cookie_consent", "selector": "#onetrust-banner-sdk",
			"tag": "sl0", "text": "Accept all",
		}), nil
	}

	events := r.ResolveOnce(context.Background(), pg, PageContext{SessionID: "s1"})
	if snapshots != 1 {
		t.Errorf("single pass must snapshot once, got %d", snapshots)
	}
	if len(events) != 1 || len(pg.clicks) != 1 {
		t.Errorf("expected 1 dismissal, got %d events %d clicks", len(events), len(pg.clicks))
	}
}

func TestResolve_ClickFailureSwallowedAndRecorded(t *testing.T) {
	r := testResolver()
	snapshots := 0
	pg := &fakePage{
		click: func(selector string) error { return errors.New("element covered") },
	}
	pg.eval = func(js string, args ...any) (gson.JSON, error) {
		snapshots++
		if snapshots == 1 {
			return candidateJSON(map[string]any{
				"family": "generic_modal", "selector": "[role='dialog']",
				"tag": "sl0", "text": "Close",
			}), nil
		}
		return gson.New([]any{}), nil
	}

	events := r.Resolve(context.Background(), pg, PageContext{SessionID: "s1"})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Result != models.OverlayFailure {
		t.Errorf("failed click must be recorded as failure: %+v", events[0])
	}
	// A failed pass dismissed nothing, so no second pass runs.
	if snapshots != 1 {
		t.Errorf("no dismissal means no second pass, snapshots = %d", snapshots)
	}
}

func TestHideFallback_RunsOncePerPage(t *testing.T) {
	r := testResolver()
	calls := 0
	pg := &fakePage{
		evalInFrames: func(js string, args ...any) ([]gson.JSON, error) {
			calls++
			return []gson.JSON{gson.New(2), gson.New(1)}, nil
		},
	}

	pc := PageContext{SessionID: "s1", PageType: models.PageHomepage, Viewport: models.ViewportDesktop}
	ev := r.HideFallback(context.Background(), pg, pc)
	if ev == nil {
		t.Fatal("first call must produce an event")
	}
	if ev.Action != models.ActionHideFallback || ev.HiddenCount != 3 || ev.FrameCount != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if second := r.HideFallback(context.Background(), pg, pc); second != nil {
		t.Errorf("second call must be a no-op, got %+v", second)
	}
	if calls != 1 {
		t.Errorf("hide JS must run once, ran %d times", calls)
	}
}

func TestIsBlocked(t *testing.T) {
	r := testResolver()
	pg := &fakePage{
		eval: func(js string, args ...any) (gson.JSON, error) { return gson.New(true), nil },
	}
	if !r.IsBlocked(context.Background(), pg) {
		t.Error("expected blocked")
	}

	pg.eval = func(js string, args ...any) (gson.JSON, error) { return gson.New(nil), errors.New("eval failed") }
	if r.IsBlocked(context.Background(), pg) {
		t.Error("eval failure must report not blocked")
	}
}
