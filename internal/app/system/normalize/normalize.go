// Package normalize canonicalizes user-supplied strings before they are
// stored or compared.
package normalize

import (
	"net/url"
	"strings"
)

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses inner runs of whitespace.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tags trims each tag and drops empty ones, keeping the original order.
// Duplicate tags (case-insensitive) keep their first occurrence.
func Tags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SplitTags parses a comma-separated tag list such as "go, mongo,,api".
func SplitTags(s string) []string {
	return Tags(strings.Split(s, ","))
}

// Link trims a profile link. A link without a scheme gets https://. It returns
// "" for blank input and ok=false when the value cannot be a web URL.
func Link(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
