package overlay

import "strings"

// Candidate is one visible dismissal control found inside a popup
// container, tagged in the DOM so it can be clicked by attribute.
type Candidate struct {
	Family   Category
	Selector string
	Tag      string
	Text     string
}

// IsSafeDismissText reports whether a control's text belongs to the
// dismissal vocabulary. Matching is whole-text for the short symbols
// ("x", "×", "ok") and substring for phrases, so "Accept all cookies"
// still matches "accept all".
func IsSafeDismissText(text string) bool {
	t := normalizeControlText(text)
	if t == "" {
		return false
	}
	for _, v := range dismissVocabulary {
		if len(v) <= 2 {
			if t == v {
				return true
			}
			continue
		}
		if strings.Contains(t, v) {
			return true
		}
	}
	return false
}

// IsRiskyText reports whether a control's text belongs to the risky-CTA
// vocabulary. Risky always wins over safe: "subscribe & close" is never
// clicked.
func IsRiskyText(text string) bool {
	t := normalizeControlText(text)
	for _, v := range riskyVocabulary {
		if strings.Contains(t, v) {
			return true
		}
	}
	return false
}

// SelectDismissals filters candidates down to the ones a pass may
// click: safe text, not risky, at most one control per container
// selector, capped at maxPerPass. Input order is preserved so the
// family pass order decides priority.
func SelectDismissals(cands []Candidate, maxPerPass int) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, c := range cands {
		if len(out) >= maxPerPass {
			break
		}
		if IsRiskyText(c.Text) || !IsSafeDismissText(c.Text) {
			continue
		}
		key := string(c.Family) + "|" + c.Selector
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func normalizeControlText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
