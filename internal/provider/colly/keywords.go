package collycrawler

import (
	"net/url"
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"and": true, "the": true, "that": true, "with": true, "from": true,
	"pages": true, "page": true, "latest": true, "signal": true, "documents": true,
	"other": true, "their": true, "this": true, "what": true, "which": true,
}

// Keywords lowercases instructions and returns its distinct significant
// words. Plural forms are reduced to a shared stem so "products" also
// matches "/product".
func Keywords(instructions string) []string {
	words := strings.FieldsFunc(strings.ToLower(instructions), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if len(w) < 4 || stopWords[w] {
			continue
		}
		w = stem(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func stem(w string) string {
	switch {
	case len(w) <= 4:
		return w
	case strings.HasSuffix(w, "ies"):
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"), strings.HasSuffix(w, "xes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	default:
		return w
	}
}

// matchesKeywords reports whether the link path or its anchor text mentions
// any keyword. The host is ignored so a brand name cannot match every link.
func matchesKeywords(link, anchor string, keywords []string) bool {
	path := link
	if u, err := url.Parse(link); err == nil {
		path = u.EscapedPath()
	}
	haystack := strings.ToLower(path + " " + anchor)
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
