package overlay

import (
	"context"
	"log/slog"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/models"
)

// blockedJS reports whether the page content is blocked: a fixed or
// absolute element at or above the z-index floor covers more than the
// viewport-coverage threshold AND either body scroll is locked or the
// viewport-center element sits inside such an overlay.
const blockedJS = `(minZ, minRatio) => {
	const vw = window.innerWidth, vh = window.innerHeight;
	if (vw === 0 || vh === 0) return false;
	const qualifies = (el) => {
		const cs = getComputedStyle(el);
		if (cs.position !== 'fixed' && cs.position !== 'absolute') return false;
		if (cs.display === 'none' || cs.visibility === 'hidden') return false;
		const z = parseInt(cs.zIndex, 10);
		return !isNaN(z) && z >= minZ;
	};
	let covering = false;
	for (const el of document.querySelectorAll('body *')) {
		if (!qualifies(el)) continue;
		const r = el.getBoundingClientRect();
		const w = Math.min(r.right, vw) - Math.max(r.left, 0);
		const h = Math.min(r.bottom, vh) - Math.max(r.top, 0);
		if (w > 0 && h > 0 && (w * h) / (vw * vh) > minRatio) { covering = true; break; }
	}
	if (!covering) return false;
	const scrollLocked =
		getComputedStyle(document.body).overflow === 'hidden' ||
		getComputedStyle(document.documentElement).overflow === 'hidden';
	if (scrollLocked) return true;
	let node = document.elementFromPoint(vw / 2, vh / 2);
	while (node && node !== document.body && node !== document.documentElement) {
		if (qualifies(node)) return true;
		node = node.parentElement;
	}
	return false;
}`

// hideJS hides qualifying overlays with visibility:hidden and restores
// scroll. Nodes are never removed, so page scripts keep their
// references, and structural elements are never touched. Returns the
// number of elements hidden.
const hideJS = `(minZ, minRatio) => {
	const STRUCTURAL = new Set(['HTML', 'BODY', 'MAIN', 'HEADER', 'NAV', 'FOOTER', 'ARTICLE', 'SECTION']);
	const vw = window.innerWidth, vh = window.innerHeight;
	if (vw === 0 || vh === 0) return 0;
	let hidden = 0;
	for (const el of document.querySelectorAll('body *')) {
		if (STRUCTURAL.has(el.tagName)) continue;
		const cs = getComputedStyle(el);
		if (cs.position !== 'fixed' && cs.position !== 'absolute') continue;
		if (cs.display === 'none' || cs.visibility === 'hidden') continue;
		const z = parseInt(cs.zIndex, 10);
		if (isNaN(z) || z < minZ) continue;
		const r = el.getBoundingClientRect();
		const w = Math.min(r.right, vw) - Math.max(r.left, 0);
		const h = Math.min(r.bottom, vh) - Math.max(r.top, 0);
		if (w <= 0 || h <= 0) continue;
		if ((w * h) / (vw * vh) > minRatio) {
			el.style.setProperty('visibility', 'hidden', 'important');
			hidden++;
		}
	}
	if (hidden > 0) {
		document.body.style.setProperty('overflow', 'visible', 'important');
		document.documentElement.style.setProperty('overflow', 'visible', 'important');
	}
	return hidden;
}`

// IsBlocked runs the blocked-page check in the main document. Read
// failures report "not blocked" so capture proceeds on its own terms.
func (r *Resolver) IsBlocked(ctx context.Context, pg browser.Page) bool {
	res, err := pg.Eval(ctx, blockedJS, r.rules.OverlayMinZIndex, r.rules.OverlayMinViewportRatio)
	if err != nil {
		return false
	}
	return res.Bool()
}

// HideFallback hides surviving overlays in the main document and in
// same-process iframes one level deep. It runs at most once per page;
// later calls return no event. The returned event records how many
// elements were hidden across how many frames.
func (r *Resolver) HideFallback(ctx context.Context, pg browser.Page, pc PageContext) *models.OverlayEvent {
	if r.hideUsed {
		return nil
	}
	r.hideUsed = true

	results, err := pg.EvalInFrames(ctx, hideJS, r.rules.OverlayMinZIndex, r.rules.OverlayMinViewportRatio)
	if err != nil {
		slog.Warn("overlay.hide_fallback_failed",
			"session_id", pc.SessionID, "page_type", pc.PageType, "error", err.Error())
		return &models.OverlayEvent{
			Action:   models.ActionHideFallback,
			Result:   models.OverlayFailure,
			PageType: pc.PageType,
			Viewport: pc.Viewport,
		}
	}

	total := 0
	for _, res := range results {
		total += res.Int()
	}
	ev := &models.OverlayEvent{
		Action:      models.ActionHideFallback,
		Result:      models.OverlaySuccess,
		PageType:    pc.PageType,
		Viewport:    pc.Viewport,
		HiddenCount: total,
		FrameCount:  len(results),
	}
	slog.Info("overlay.hide_fallback",
		"session_id", pc.SessionID,
		"page_type", pc.PageType,
		"viewport", pc.Viewport,
		"hidden", total,
		"frames", len(results),
	)
	return ev
}
