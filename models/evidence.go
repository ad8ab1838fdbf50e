package models

// PageFeatures is the structured-features object captured per page and
// shipped in the evidence bundle. The evaluator consumes it as-is.
type PageFeatures struct {
	Meta          MetaFeatures   `json:"meta"`
	Headings      Headings       `json:"headings"`
	CTAs          []CTA          `json:"ctas"`
	Navigation    NavFeatures    `json:"navigation"`
	SchemaOrg     SchemaFeatures `json:"schema_org"`
	ReviewSignals ReviewSignals  `json:"review_signals"`
	PDPCore       *PDPCore       `json:"pdp_core,omitempty"`
}

// MetaFeatures holds document metadata.
type MetaFeatures struct {
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description,omitempty"`
	CanonicalURL    string `json:"canonical_url,omitempty"`
}

// Headings holds the page's h1/h2 text.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
}

// CTA is a call-to-action element (text plus optional target).
type CTA struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// NavFeatures holds main and footer navigation links.
type NavFeatures struct {
	MainNavLinks []CTA `json:"main_nav_links"`
	FooterLinks  []CTA `json:"footer_links"`
}

// SchemaFeatures records structured-data detection.
type SchemaFeatures struct {
	ProductDetected bool `json:"product_detected"`
}

// ReviewSignals records review/rating presence heuristics.
type ReviewSignals struct {
	ReviewCountPresent bool `json:"review_count_present"`
	RatingValuePresent bool `json:"rating_value_present"`
}

// PDPCore holds PDP-specific extraction results, present only for PDP
// page tasks.
type PDPCore struct {
	Price            string `json:"price,omitempty"`
	AddToCartPresent bool   `json:"add_to_cart_present"`
}

// EvidenceBundle is the per-page capture emitted to evidence storage:
// screenshot, normalized visible text, structured features, gzipped
// HTML, and the load timing record.
type EvidenceBundle struct {
	PageType    PageType
	Viewport    Viewport
	Screenshot  []byte
	VisibleText string
	Features    PageFeatures
	HTMLGz      []byte
	Timings     LoadTimings
}
