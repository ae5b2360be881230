// Package htmlsanitize cleans user-supplied HTML with bluemonday.
//
// Rich is for CMS rich-text fields edited by staff. Text is for chat
// messages and other plain fields, where every tag is removed.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy *bluemonday.Policy
	textPolicy *bluemonday.Policy
	once       sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	once.Do(func() {
		richPolicy = bluemonday.UGCPolicy()
		richPolicy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td")
		richPolicy.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
		richPolicy.AllowAttrs("class").OnElements("table", "th", "td", "tr", "p", "span", "div")
		richPolicy.AllowElements("u", "s", "sub", "sup", "mark")
		richPolicy.AllowDataAttributes()
		richPolicy.RequireNoFollowOnLinks(true)
		richPolicy.AddTargetBlankToFullyQualifiedLinks(true)

		textPolicy = bluemonday.StrictPolicy()
	})
	return richPolicy, textPolicy
}

// Rich sanitizes marketing rich text, keeping formatting, links, images
// and tables.
func Rich(s string) string {
	if s == "" {
		return ""
	}
	rich, _ := policies()
	return rich.Sanitize(s)
}

// Text strips all markup and returns plain text. Entities bluemonday
// escapes are decoded again because the result is stored as text, not HTML.
func Text(s string) string {
	if s == "" {
		return ""
	}
	_, text := policies()
	return strings.TrimSpace(html.UnescapeString(text.Sanitize(s)))
}
