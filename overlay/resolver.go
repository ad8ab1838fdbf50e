package overlay

import (
	"context"
	"log/slog"
	"time"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
)

// snapshotJS scans the given selector families for visible popup
// containers, tags every visible control inside them with a
// data-sl-dismiss attribute, and returns the candidates. Tagging lets
// the resolver click a specific control by attribute selector without
// re-querying an unstable DOM.
const snapshotJS = `(families) => {
	const out = [];
	let id = 0;
	const CONTROLS = 'button, a, [role="button"], input[type="button"], input[type="submit"]';
	for (const fam of families) {
		for (const sel of fam.selectors) {
			let nodes;
			try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const node of nodes) {
				const cs = getComputedStyle(node);
				if (cs.display === 'none' || cs.visibility === 'hidden') continue;
				const rect = node.getBoundingClientRect();
				if (rect.width === 0 || rect.height === 0) continue;
				const controls = node.matches(CONTROLS)
					? [node]
					: Array.from(node.querySelectorAll(CONTROLS));
				for (const ctl of controls) {
					const ccs = getComputedStyle(ctl);
					if (ccs.display === 'none' || ccs.visibility === 'hidden') continue;
					const text = (ctl.innerText || ctl.getAttribute('aria-label') || ctl.value || '').trim();
					if (!text) continue;
					const tag = 'sl' + (id++);
					ctl.setAttribute('data-sl-dismiss', tag);
					out.push({family: fam.category, selector: sel, tag: tag, text: text});
				}
			}
		}
	}
	return out;
}`

// familyArg mirrors the shape snapshotJS expects.
type familyArg struct {
	Category  string   `json:"category"`
	Selectors []string `json:"selectors"`
}

// PageContext carries the identity of the page being resolved, for
// event records and logs.
type PageContext struct {
	SessionID string
	PageType  models.PageType
	Viewport  models.Viewport
}

// Resolver dismisses popups on one page load. It is stateful: the hide
// fallback may run at most once per page, so create a new Resolver for
// every page.
type Resolver struct {
	rules    policy.Rules
	sleep    func(ctx context.Context, d time.Duration) error
	hideUsed bool
}

// NewResolver creates a Resolver for a single page load.
func NewResolver(rules policy.Rules) *Resolver {
	return &Resolver{rules: rules, sleep: sleepCtx}
}

// Resolve runs the popup dismissal passes. Pass one always runs; pass
// two runs only if pass one dismissed something, since dismissals can
// reveal stacked popups. Every dismissal attempt is recorded; click
// failures are swallowed so a stubborn popup never fails the page.
func (r *Resolver) Resolve(ctx context.Context, pg browser.Page, pc PageContext) []models.OverlayEvent {
	return r.resolve(ctx, pg, pc, r.rules.PopupPasses)
}

// ResolveOnce runs a single dismissal pass. Used during extraction
// recovery, which gets one pass on top of the pre-capture budget.
func (r *Resolver) ResolveOnce(ctx context.Context, pg browser.Page, pc PageContext) []models.OverlayEvent {
	return r.resolve(ctx, pg, pc, 1)
}

func (r *Resolver) resolve(ctx context.Context, pg browser.Page, pc PageContext, passes int) []models.OverlayEvent {
	log := slog.With(
		"session_id", pc.SessionID,
		"page_type", pc.PageType,
		"viewport", pc.Viewport,
	)

	var events []models.OverlayEvent
	for pass := 1; pass <= passes; pass++ {
		dismissed := 0
		for _, c := range r.findDismissals(ctx, pg) {
			ev := models.OverlayEvent{
				SelectorFamily: string(c.Family),
				Selector:       c.Selector,
				Action:         models.ActionDismissClick,
				PageType:       pc.PageType,
				Viewport:       pc.Viewport,
			}
			if err := pg.Click(ctx, `[data-sl-dismiss="`+c.Tag+`"]`); err != nil {
				ev.Result = models.OverlayFailure
				log.Debug("popup.dismiss_failed",
					"pass", pass, "family", c.Family, "text", c.Text, "error", err.Error())
			} else {
				ev.Result = models.OverlaySuccess
				dismissed++
				log.Info("popup.dismissed",
					"pass", pass, "family", c.Family, "text", c.Text)
			}
			events = append(events, ev)
			if err := r.sleep(ctx, r.rules.PopupSettleDelay); err != nil {
				return events
			}
		}
		// Nothing dismissed means nothing new can have appeared.
		if dismissed == 0 {
			break
		}
	}
	return events
}

// findDismissals snapshots the page and selects the clickable
// candidates for one pass. Snapshot failures yield an empty pass.
func (r *Resolver) findDismissals(ctx context.Context, pg browser.Page) []Candidate {
	args := make([]familyArg, 0, len(Families()))
	for _, f := range Families() {
		args = append(args, familyArg{Category: string(f.Category), Selectors: f.Selectors})
	}
	res, err := pg.Eval(ctx, snapshotJS, args)
	if err != nil {
		slog.Debug("popup.snapshot_failed", "error", err.Error())
		return nil
	}
	var cands []Candidate
	for _, item := range res.Arr() {
		cands = append(cands, Candidate{
			Family:   Category(item.Get("family").Str()),
			Selector: item.Get("selector").Str(),
			Tag:      item.Get("tag").Str(),
			Text:     item.Get("text").Str(),
		})
	}
	return SelectDismissals(cands, r.rules.MaxDismissalsPerPass)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
