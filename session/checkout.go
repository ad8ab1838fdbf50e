package session

import (
	"context"
	"log/slog"

	"github.com/storelens/storelens/browser"
)

// checkoutJS inspects the loaded PDP for purchase-path affordances
// without triggering any of them: add-to-cart control, a cart link,
// and a checkout link.
const checkoutJS = `() => {
	const out = {add_to_cart: false, cart_href: '', checkout_href: ''};
	const ctaRe = /add\s+to\s+(cart|bag|basket)|buy\s+now/i;
	for (const el of document.querySelectorAll("button, input[type='submit'], [role='button'], [name='add']")) {
		const text = el.innerText || el.value || el.getAttribute('aria-label') || '';
		if (ctaRe.test(text)) { out.add_to_cart = true; break; }
	}
	for (const a of document.querySelectorAll('a[href]')) {
		const href = a.getAttribute('href') || '';
		const lower = href.toLowerCase();
		if (!out.cart_href && (lower.includes('/cart') || lower.includes('/bag'))) out.cart_href = href;
		if (!out.checkout_href && lower.includes('/checkout')) out.checkout_href = href;
		if (out.cart_href && out.checkout_href) break;
	}
	return out;
}`

// CheckoutProbe records the purchase-path affordances observed on the
// PDP. Each field passes or fails independently; a missing affordance
// never affects session status, only the evidence.
type CheckoutProbe struct {
	AddToCartPresent bool   `json:"add_to_cart_present"`
	CartHref         string `json:"cart_href,omitempty"`
	CheckoutHref     string `json:"checkout_href,omitempty"`
}

// probeCheckout inspects a loaded PDP. Read failures return an empty
// probe; the probe is strictly additive evidence.
func probeCheckout(ctx context.Context, pg browser.Page, sessionID string) CheckoutProbe {
	res, err := pg.Eval(ctx, checkoutJS)
	if err != nil {
		slog.Warn("checkout.probe_failed", "session_id", sessionID, "error", err.Error())
		return CheckoutProbe{}
	}
	probe := CheckoutProbe{
		AddToCartPresent: res.Get("add_to_cart").Bool(),
		CartHref:         res.Get("cart_href").Str(),
		CheckoutHref:     res.Get("checkout_href").Str(),
	}
	slog.Info("checkout.probe",
		"session_id", sessionID,
		"add_to_cart", probe.AddToCartPresent,
		"cart_link", probe.CartHref != "",
		"checkout_link", probe.CheckoutHref != "",
	)
	return probe
}
