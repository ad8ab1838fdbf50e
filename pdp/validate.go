package pdp

import "github.com/storelens/storelens/policy"

// Signals are the observable product-page markers extracted from a
// candidate, either statically by the prefilter or from the live DOM.
type Signals struct {
	HasPrice         bool `json:"has_price"`
	HasTitle         bool `json:"has_title"`
	HasImage         bool `json:"has_image"`
	HasAddToCart     bool `json:"has_add_to_cart"`
	HasProductSchema bool `json:"has_product_schema"`
}

// Verdict is the validation outcome for one candidate.
type Verdict struct {
	Valid bool `json:"valid"`
	// Base is the always-gating requirement: a price plus the
	// title-and-image pair.
	Base bool `json:"base"`
	// Strong is the high-confidence marker (add-to-cart or product
	// schema). Whether it gates validity depends on the policy version.
	Strong  bool    `json:"strong"`
	Signals Signals `json:"signals"`
}

// ValidateSignals applies the validity rule to extracted signals. The
// base requirement always gates; the strong signal gates only when the
// ruleset says so, otherwise it is recorded for the evaluator but does
// not affect validity.
func ValidateSignals(s Signals, rules policy.Rules) Verdict {
	v := Verdict{
		Base:    s.HasPrice && s.HasTitle && s.HasImage,
		Strong:  s.HasAddToCart || s.HasProductSchema,
		Signals: s,
	}
	v.Valid = v.Base
	if rules.PDPStrongSignalGating {
		v.Valid = v.Base && v.Strong
	}
	return v
}
