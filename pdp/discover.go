// Package pdp discovers product detail page candidates on a homepage
// and validates them. Discovery and validation logic are pure functions
// over snapshots; the prefilter and live validator wrap them with I/O.
package pdp

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// productContainerSelectors identify product-card markup. Links found
// inside these containers are the highest-confidence candidates and are
// collected before any path-pattern pass.
var productContainerSelectors = []string{
	"[data-product-id] a[href]",
	"[data-product-handle] a[href]",
	".product-card a[href]",
	".product-item a[href]",
	".product-tile a[href]",
	"[class*='product-grid'] a[href]",
	"[class*='product-list'] a[href]",
	"li[class*='product'] a[href]",
}

// candidateScopes order the pattern-gated passes after the container
// wave: product grids and featured sections first, then listing
// sections, then category/navigation links, then the main landmark,
// and the whole document last.
var candidateScopes = []string{
	"[class*='product-grid'] a[href]",
	"[class*='featured'] a[href]",
	"[class*='products'] a[href]",
	"nav a[href]",
	"main a[href]",
	"a[href]",
}

// excludedSegments are path segments that mark non-product pages even
// when a path pattern matches.
var excludedSegments = map[string]bool{
	"account": true, "cart": true, "checkout": true,
	"login": true, "signin": true, "sign-in": true, "register": true,
	"wishlist": true, "help": true, "support": true, "faq": true,
	"policy": true, "policies": true, "terms": true, "privacy": true,
	"blog": true, "news": true, "about": true, "about-us": true,
	"contact": true, "careers": true, "stores": true, "store-locator": true,
	"gift-card": true, "gift-cards": true, "search": true, "returns": true,
}

// Discover extracts PDP candidate URLs from a homepage HTML snapshot.
// Candidates come in waves: links inside product-container markup
// first, then pattern-gated links scoped by candidateScopes, narrowest
// scope first. The result is normalized, same-host only, deduplicated
// in insertion order, and capped, so discovery is deterministic for a
// given snapshot.
func Discover(homepageHTML, baseURL string, patterns []string, maxCandidates int) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homepageHTML))
	if err != nil {
		return nil
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, rerr := regexp.Compile("(?i)" + p)
		if rerr != nil {
			continue
		}
		compiled = append(compiled, re)
	}

	seen := make(map[string]bool)
	var out []string
	add := func(raw string) bool {
		if len(out) >= maxCandidates {
			return false
		}
		normalized, ok := normalizeCandidate(raw, base)
		if !ok || seen[normalized] {
			return true
		}
		seen[normalized] = true
		out = append(out, normalized)
		return len(out) < maxCandidates
	}

	// Wave one: product-container links. Container markup is trusted on
	// its own; no path pattern required.
	for _, sel := range productContainerSelectors {
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			return add(href)
		})
		if len(out) >= maxCandidates {
			return out
		}
	}

	// Scoped waves: each scope scanned in document order, links gated
	// by the product path patterns.
	for _, scope := range candidateScopes {
		doc.Find(scope).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			u, ok := resolveSameHost(href, base)
			if !ok || !matchesAny(compiled, u.Path) {
				return true
			}
			return add(href)
		})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, path string) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// normalizeCandidate resolves a href against the base, enforces same
// host, strips fragments, and rejects excluded path segments.
func normalizeCandidate(href string, base *url.URL) (string, bool) {
	u, ok := resolveSameHost(href, base)
	if !ok {
		return "", false
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if excludedSegments[seg] {
			return "", false
		}
	}
	u.Fragment = ""
	if u.Path == "" || u.Path == "/" {
		return "", false
	}
	return u.String(), true
}

func resolveSameHost(href string, base *url.URL) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return nil, false
	}
	u, err := base.Parse(href)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if !strings.EqualFold(strings.TrimPrefix(u.Host, "www."), strings.TrimPrefix(base.Host, "www.")) {
		return nil, false
	}
	return u, true
}
