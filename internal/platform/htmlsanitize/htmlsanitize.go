// Package htmlsanitize cleans user-supplied HTML for display.
package htmlsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var ugc = bluemonday.UGCPolicy()

// Sanitize keeps formatting, links and tables and strips scripts, event
// handlers and unsafe URLs.
func Sanitize(s string) string {
	return strings.TrimSpace(ugc.Sanitize(s))
}
