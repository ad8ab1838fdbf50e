package nav

import (
	"context"
	"strings"

	"github.com/storelens/storelens/browser"
)

// IsBotBlockText reports whether a page's title+body text carries a
// high-confidence challenge/captcha/block indicator. Pure function over
// the text snapshot.
func IsBotBlockText(title, body string, indicators []string) bool {
	combined := strings.ToLower(title + " " + body)
	for _, ind := range indicators {
		if ind != "" && strings.Contains(combined, strings.ToLower(ind)) {
			return true
		}
	}
	return false
}

// detectBotBlock snapshots title and body and classifies them. Reading
// the page may itself fail on a hostile page; that is treated as "not
// blocked" so the normal failure paths handle it.
func detectBotBlock(ctx context.Context, pg browser.Page, indicators []string) bool {
	title, err := pg.Title(ctx)
	if err != nil {
		return false
	}
	body, err := pg.BodyText(ctx)
	if err != nil {
		return false
	}
	return IsBotBlockText(title, body, indicators)
}
