package sync

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	bodyPolicy  = bluemonday.UGCPolicy()
)

// Removes all html tags from a one line field such as a title. The result is
// plain text, so entities are decoded again.
func sanitizeTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(strings.TrimSpace(s))))
}

// Keeps the formatting of an item body but drops scripts, styles and the like.
func sanitizeBody(s string) string {
	return bodyPolicy.Sanitize(s)
}
