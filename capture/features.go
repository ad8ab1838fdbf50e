package capture

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/storelens/storelens/models"
)

const (
	maxHeadings = 20
	maxCTAs     = 30
	maxNavLinks = 50
)

var reFeaturePrice = regexp.MustCompile(`(?i)([$€£¥]\s?\d[\d.,]*|\d[\d.,]*\s?(?:usd|eur|gbp|cad|aud))`)
var reFeatureCart = regexp.MustCompile(`(?i)add\s+to\s+(?:cart|bag|basket)|buy\s+now`)
var reReviewCount = regexp.MustCompile(`(?i)\d[\d,]*\s*(?:reviews?|ratings?)`)

// ExtractFeatures builds the structured-features object from an HTML
// snapshot. Pure function over the snapshot; PDP-core fields are
// populated only for PDP pages.
func ExtractFeatures(rawHTML string, pageType models.PageType) models.PageFeatures {
	var f models.PageFeatures
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return f
	}

	f.Meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		f.Meta.MetaDescription = strings.TrimSpace(desc)
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		f.Meta.CanonicalURL = strings.TrimSpace(canonical)
	}

	doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := collapseSpace(s.Text()); text != "" {
			f.Headings.H1 = append(f.Headings.H1, text)
		}
		return len(f.Headings.H1) < maxHeadings
	})
	doc.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := collapseSpace(s.Text()); text != "" {
			f.Headings.H2 = append(f.Headings.H2, text)
		}
		return len(f.Headings.H2) < maxHeadings
	})

	doc.Find("button, a.button, a[class*='btn' i], input[type='submit'], [role='button']").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := collapseSpace(s.Text())
			if text == "" {
				text, _ = s.Attr("value")
			}
			if text == "" || len(text) > 80 {
				return true
			}
			href, _ := s.Attr("href")
			f.CTAs = append(f.CTAs, models.CTA{Text: text, Href: href})
			return len(f.CTAs) < maxCTAs
		})

	f.Navigation.MainNavLinks = collectLinks(doc.Find("nav a[href], header a[href]"), maxNavLinks)
	f.Navigation.FooterLinks = collectLinks(doc.Find("footer a[href]"), maxNavLinks)

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), `"Product"`) {
			f.SchemaOrg.ProductDetected = true
			return false
		}
		return true
	})
	if !f.SchemaOrg.ProductDetected {
		f.SchemaOrg.ProductDetected = doc.Find("[itemtype*='schema.org/Product']").Length() > 0
	}

	bodyText := doc.Find("body").Text()
	f.ReviewSignals.ReviewCountPresent = reReviewCount.MatchString(bodyText) ||
		doc.Find("[itemprop='reviewCount']").Length() > 0
	f.ReviewSignals.RatingValuePresent = doc.Find("[itemprop='ratingValue'], [class*='star-rating' i], [class*='rating' i][aria-label]").Length() > 0

	if pageType == models.PagePDP {
		f.PDPCore = extractPDPCore(doc)
	}
	return f
}

func extractPDPCore(doc *goquery.Document) *models.PDPCore {
	core := &models.PDPCore{}
	doc.Find("[class*='price'], [itemprop='price'], [data-price]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if text == "" {
			text, _ = s.Attr("content")
		}
		if m := reFeaturePrice.FindString(text); m != "" {
			core.Price = m
			return false
		}
		return true
	})
	doc.Find("button, input[type='submit'], [role='button'], [name='add']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if text == "" {
			text, _ = s.Attr("value")
		}
		if reFeatureCart.MatchString(text) {
			core.AddToCartPresent = true
			return false
		}
		return true
	})
	return core
}

func collectLinks(sel *goquery.Selection, limit int) []models.CTA {
	var out []models.CTA
	seen := make(map[string]bool)
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "" || href == "" || href == "#" || seen[href+"|"+text] {
			return true
		}
		seen[href+"|"+text] = true
		out = append(out, models.CTA{Text: text, Href: href})
		return len(out) < limit
	})
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
