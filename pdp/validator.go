package pdp

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/policy"
)

// signalsJS extracts live product signals from the rendered DOM. The
// image check requires a displayed size so tracking pixels and icons
// do not count.
const signalsJS = `() => {
	const out = {has_price: false, has_title: false, has_image: false, has_add_to_cart: false, has_product_schema: false};
	const priceRe = /([$€£¥]\s?\d[\d.,]*|\d[\d.,]*\s?(usd|eur|gbp|cad|aud))/i;
	for (const el of document.querySelectorAll("[class*='price'], [itemprop='price'], [data-price]")) {
		const text = el.innerText || el.getAttribute('content') || '';
		if (priceRe.test(text)) { out.has_price = true; break; }
	}
	const h1 = document.querySelector('h1');
	out.has_title = !!(h1 && h1.innerText.trim());
	for (const img of document.querySelectorAll('img')) {
		const r = img.getBoundingClientRect();
		if (r.width >= 200 && r.height >= 200) { out.has_image = true; break; }
	}
	const ctaRe = /add\s+to\s+(cart|bag|basket)|buy\s+now/i;
	for (const el of document.querySelectorAll("button, input[type='submit'], [role='button'], a[class*='cart' i]")) {
		const text = el.innerText || el.value || el.getAttribute('aria-label') || '';
		if (ctaRe.test(text)) { out.has_add_to_cart = true; break; }
	}
	for (const s of document.querySelectorAll("script[type='application/ld+json']")) {
		if (s.textContent.includes('"Product"')) { out.has_product_schema = true; break; }
	}
	if (!out.has_product_schema && document.querySelector("[itemtype*='schema.org/Product']")) {
		out.has_product_schema = true;
	}
	return out;
}`

const verdictCacheSize = 512

// Validator validates loaded candidate pages and caches verdicts, so
// re-audits of the same store within a process do not re-spend page
// loads on known candidates. One Validator serves the whole process;
// verdicts are keyed by policy version plus URL since the validity
// rule is version-dependent.
type Validator struct {
	cache *lru.Cache[string, Verdict]
}

// NewValidator creates a Validator with an empty verdict cache.
func NewValidator() *Validator {
	cache, _ := lru.New[string, Verdict](verdictCacheSize)
	return &Validator{cache: cache}
}

func verdictKey(version, url string) string {
	return version + "|" + url
}

// Cached returns a previously computed verdict for the URL under the
// given ruleset's version.
func (v *Validator) Cached(url string, rules policy.Rules) (Verdict, bool) {
	return v.cache.Get(verdictKey(rules.Version, url))
}

// Validate extracts signals from the loaded page and applies the
// validity rule, caching the verdict. Extraction failure is an invalid
// verdict, not an error: the orchestrator moves to the next candidate
// either way.
func (v *Validator) Validate(ctx context.Context, pg browser.Page, url string, rules policy.Rules) Verdict {
	res, err := pg.Eval(ctx, signalsJS)
	if err != nil {
		slog.Warn("pdp.signal_extraction_failed", "url", url, "error", err.Error())
		verdict := Verdict{}
		v.cache.Add(verdictKey(rules.Version, url), verdict)
		return verdict
	}
	s := Signals{
		HasPrice:         res.Get("has_price").Bool(),
		HasTitle:         res.Get("has_title").Bool(),
		HasImage:         res.Get("has_image").Bool(),
		HasAddToCart:     res.Get("has_add_to_cart").Bool(),
		HasProductSchema: res.Get("has_product_schema").Bool(),
	}
	verdict := ValidateSignals(s, rules)
	v.cache.Add(verdictKey(rules.Version, url), verdict)
	slog.Info("pdp.validated",
		"url", url,
		"valid", verdict.Valid,
		"base", verdict.Base,
		"strong", verdict.Strong,
	)
	return verdict
}
