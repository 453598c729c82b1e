package ticker

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// stripPolicy removes all markup. bluemonday policies are safe for
// concurrent use, so a single package-level instance is enough.
var stripPolicy = bluemonday.StrictPolicy()

var collapseWS = regexp.MustCompile(`\s+`)

// Normalize strips HTML markup and entities from scraped text and
// collapses whitespace. Scrapers call this on captions, comments, and
// channel messages before Extract, keeping Extract itself markup-free
// and pure.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := stripPolicy.Sanitize(raw)
	text = html.UnescapeString(text)
	return strings.TrimSpace(collapseWS.ReplaceAllString(text, " "))
}
