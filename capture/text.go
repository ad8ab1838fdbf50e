// Package capture produces the per-page evidence bundle: screenshot,
// normalized visible text, structured features, and gzipped HTML. The
// supervisor wraps extraction with a bounded retry for transient
// browser faults.
package capture

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedTextTags never contribute visible text.
var skippedTextTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"template": true, "head": true, "title": true,
	"iframe": true, "svg": true,
}

// VisibleText walks an HTML snapshot and returns its visible text with
// whitespace normalized to single spaces. Pure function over the
// snapshot, so text normalization is testable without a browser.
func VisibleText(rawHTML string) string {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	var buf strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedTextTags[n.Data] {
				return
			}
			if isHiddenNode(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// isHiddenNode checks the static hiding signals available in a
// snapshot: the hidden attribute, display:none, and visibility:hidden
// inline styles. Computed styles need the live DOM and are handled by
// the overlay hide fallback before capture.
func isHiddenNode(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(attr.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
