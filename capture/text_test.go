package capture

import (
	"strings"
	"testing"

	"github.com/storelens/storelens/models"
)

func TestVisibleText(t *testing.T) {
	html := `<html><head><title>Shop</title><style>.x{color:red}</style></head>
	<body>
		<h1>Summer   Sale</h1>
		<script>var tracking = "secret";</script>
		<p>Up to
		50% off</p>
		<div style="display:none">hidden promo</div>
		<div hidden>also hidden</div>
		<span aria-hidden="true">decoration</span>
		<noscript>enable javascript</noscript>
	</body></html>`

	got := VisibleText(html)
	if got != "Summer Sale Up to 50% off" {
		t.Errorf("unexpected visible text: %q", got)
	}
}

func TestVisibleText_EmptyAndInvalid(t *testing.T) {
	if got := VisibleText(""); got != "" {
		t.Errorf("empty input should yield empty text, got %q", got)
	}
	// The html parser is forgiving; junk input degrades, never panics.
	_ = VisibleText("<div><<<>")
}

func TestExtractFeatures_Homepage(t *testing.T) {
	html := `<html><head>
		<title>Acme Outdoor</title>
		<meta name="description" content="Gear for everyone">
		<link rel="canonical" href="https://acme.example/">
	</head><body>
		<header><nav><a href="/collections/tents">Tents</a><a href="/collections/packs">Packs</a></nav></header>
		<h1>Acme Outdoor</h1>
		<h2>Featured</h2>
		<button>Shop now</button>
		<footer><a href="/about">About us</a></footer>
		<script type="application/ld+json">{"@type": "Organization"}</script>
	</body></html>`

	f := ExtractFeatures(html, models.PageHomepage)
	if f.Meta.Title != "Acme Outdoor" || f.Meta.MetaDescription != "Gear for everyone" {
		t.Errorf("meta not extracted: %+v", f.Meta)
	}
	if len(f.Headings.H1) != 1 || f.Headings.H1[0] != "Acme Outdoor" {
		t.Errorf("h1 not extracted: %v", f.Headings.H1)
	}
	if len(f.Navigation.MainNavLinks) != 2 {
		t.Errorf("expected 2 nav links, got %v", f.Navigation.MainNavLinks)
	}
	if len(f.Navigation.FooterLinks) != 1 {
		t.Errorf("expected 1 footer link, got %v", f.Navigation.FooterLinks)
	}
	if f.SchemaOrg.ProductDetected {
		t.Error("no product schema on homepage")
	}
	if f.PDPCore != nil {
		t.Error("homepage must not carry PDP core fields")
	}
}

func TestExtractFeatures_PDP(t *testing.T) {
	html := `<html><body>
		<h1>Trail Tent 2P</h1>
		<div class="product-price">$249.99</div>
		<button name="add">Add to cart</button>
		<span itemprop="reviewCount">57 reviews</span>
		<script type="application/ld+json">{"@type": "Product", "name": "Trail Tent 2P"}</script>
	</body></html>`

	f := ExtractFeatures(html, models.PagePDP)
	if !f.SchemaOrg.ProductDetected {
		t.Error("product schema not detected")
	}
	if !f.ReviewSignals.ReviewCountPresent {
		t.Error("review count not detected")
	}
	if f.PDPCore == nil {
		t.Fatal("PDP core missing")
	}
	if f.PDPCore.Price != "$249.99" {
		t.Errorf("price not extracted: %q", f.PDPCore.Price)
	}
	if !f.PDPCore.AddToCartPresent {
		t.Error("add-to-cart not detected")
	}
}

func TestLowConfidenceFlags(t *testing.T) {
	bundle := &models.EvidenceBundle{
		VisibleText: "short",
	}
	flags := LowConfidenceFlags(bundle)
	for _, want := range []string{FlagMissingH1, FlagMissingPrimaryCTA, FlagTextTooShort, FlagScreenshotFailed} {
		if !containsFlag(flags, want) {
			t.Errorf("missing flag %s in %v", want, flags)
		}
	}

	healthy := &models.EvidenceBundle{
		VisibleText: strings.Repeat("product copy ", 30),
		Features: models.PageFeatures{
			Headings: models.Headings{H1: []string{"Store"}},
			CTAs:     []models.CTA{{Text: "Shop now"}},
		},
		Screenshot: []byte("not-a-real-png"),
	}
	flags = LowConfidenceFlags(healthy)
	// The fake screenshot fails to decode, which is still a flag; the
	// content flags must all be absent.
	for _, absent := range []string{FlagMissingH1, FlagMissingPrimaryCTA, FlagTextTooShort} {
		if containsFlag(flags, absent) {
			t.Errorf("unexpected flag %s in %v", absent, flags)
		}
	}
	if !containsFlag(flags, FlagScreenshotBlank) {
		t.Errorf("undecodable screenshot should flag blank, got %v", flags)
	}
}
