// Package htmlsanitize strips markup from user-authored article text.
//
// Articles are plain text (the mobile client renders them as text and links
// bare URLs), so every tag is removed rather than allow-listed.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func strict() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText removes all HTML elements from s (dropping the contents of
// script and style elements), unescapes entities and trims the result.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(strict().Sanitize(s)))
}

// IsPlainText reports whether s contains no tag-like sequences.
func IsPlainText(s string) bool {
	i := strings.IndexByte(s, '<')
	if i < 0 {
		return true
	}
	return strings.IndexByte(s[i:], '>') < 0
}
