package capture

import (
	"bytes"
	"image"
	_ "image/png"

	"github.com/storelens/storelens/models"
)

// Low-confidence flags mark evidence that is present but suspect. They
// never fail a page; the evaluator weighs them.
const (
	FlagMissingH1         = "missing_h1"
	FlagMissingPrimaryCTA = "missing_primary_cta"
	FlagTextTooShort      = "text_too_short"
	FlagScreenshotFailed  = "screenshot_failed"
	FlagScreenshotBlank   = "screenshot_blank"
)

// minVisibleTextLen is the visible-text length below which a rendered
// page is suspiciously empty.
const minVisibleTextLen = 200

// LowConfidenceFlags inspects a captured bundle for quality problems.
func LowConfidenceFlags(bundle *models.EvidenceBundle) []string {
	var flags []string
	if len(bundle.Features.Headings.H1) == 0 {
		flags = append(flags, FlagMissingH1)
	}
	if len(bundle.Features.CTAs) == 0 {
		flags = append(flags, FlagMissingPrimaryCTA)
	}
	if len(bundle.VisibleText) < minVisibleTextLen {
		flags = append(flags, FlagTextTooShort)
	}
	switch {
	case len(bundle.Screenshot) == 0:
		flags = append(flags, FlagScreenshotFailed)
	case screenshotLooksBlank(bundle.Screenshot):
		flags = append(flags, FlagScreenshotBlank)
	}
	return flags
}

// screenshotLooksBlank decodes the PNG and samples a pixel grid; a
// screenshot where nearly every sample is the same color is blank.
// Decode failures are reported as blank since the bytes are unusable
// either way.
func screenshotLooksBlank(png []byte) bool {
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return true
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return true
	}

	const grid = 16
	stepX := max(bounds.Dx()/grid, 1)
	stepY := max(bounds.Dy()/grid, 1)

	first := img.At(bounds.Min.X, bounds.Min.Y)
	fr, fg, fb, _ := first.RGBA()
	total, same := 0, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			total++
			if r == fr && g == fg && b == fb {
				same++
			}
		}
	}
	return total > 0 && float64(same)/float64(total) > 0.98
}
