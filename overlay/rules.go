// Package overlay resolves popups and blocking overlays before capture:
// categorized dismissal passes over known selector families, a
// blocked-page check, and a hide-only fallback for overlays that
// survive dismissal. Text classification is pure so the click-safety
// vocabulary is testable without a browser.
package overlay

// Category labels a family of popup selectors. Pass order follows the
// slice returned by Families: consent first, generic modals last.
type Category string

const (
	CategoryCookieConsent Category = "cookie_consent"
	CategoryAgeGate       Category = "age_gate"
	CategoryGeoPrompt     Category = "geo_prompt"
	CategoryNewsletter    Category = "newsletter_modal"
	CategoryGenericModal  Category = "generic_modal"
)

// Family groups the CSS selectors that identify one popup category.
type Family struct {
	Category  Category
	Selectors []string
}

// Families returns the popup selector families in pass order.
func Families() []Family {
	return []Family{
		{
			Category: CategoryCookieConsent,
			Selectors: []string{
				"#onetrust-banner-sdk",
				"#CybotCookiebotDialog",
				".cc-window",
				"[id*='cookie-banner' i]",
				"[class*='cookie-consent' i]",
				"[class*='cookie-banner' i]",
				"[aria-label*='cookie' i]",
				"#truste-consent-track",
			},
		},
		{
			Category: CategoryAgeGate,
			Selectors: []string{
				"[class*='age-gate' i]",
				"[class*='age-verification' i]",
				"[id*='age-gate' i]",
				"[data-age-gate]",
			},
		},
		{
			Category: CategoryGeoPrompt,
			Selectors: []string{
				"[class*='country-selector' i]",
				"[class*='geo-popup' i]",
				"[class*='region-modal' i]",
				"[id*='geolocation' i]",
			},
		},
		{
			Category: CategoryNewsletter,
			Selectors: []string{
				"[class*='newsletter-popup' i]",
				"[class*='newsletter-modal' i]",
				"[class*='email-signup' i]",
				"[id*='newsletter' i]",
				".klaviyo-form",
				"[class*='mc-modal' i]",
			},
		},
		{
			Category: CategoryGenericModal,
			Selectors: []string{
				"[role='dialog']",
				"[role='alertdialog']",
				"[aria-modal='true']",
				"[class*='modal' i][class*='open' i]",
				"[class*='popup' i][class*='visible' i]",
				"[class*='overlay' i][class*='active' i]",
			},
		},
	}
}

// dismissVocabulary lists control texts safe to click: they dismiss or
// neutrally accept without committing the session to anything.
var dismissVocabulary = []string{
	"accept", "accept all", "agree", "i agree", "allow all",
	"got it", "ok", "okay", "continue", "close", "dismiss",
	"no thanks", "no, thanks", "not now", "maybe later",
	"decline", "reject", "reject all", "skip",
	"i am over", "yes, i am", "enter site", "enter",
	"stay on this site", "continue shopping",
	"×", "x",
}

// riskyVocabulary lists control texts never clicked: CTAs that would
// subscribe, purchase, navigate away, or trigger side effects.
var riskyVocabulary = []string{
	"sign up", "signup", "subscribe", "join", "register",
	"buy", "add to cart", "add to bag", "checkout", "shop now",
	"download", "install", "get the app", "open app",
	"call", "chat", "contact", "unsubscribe", "log in", "login",
	"submit", "apply", "save ", "claim", "get my",
}
