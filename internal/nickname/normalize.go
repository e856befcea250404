package nickname

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize builds a nickname from a first/last name pair.
// The pair is joined with "_", transliterated to ASCII, lowercased and
// slugified; runs of spaces and hyphens collapse into one "_".
// Leading and trailing separators are removed. The result may be empty.
func Normalize(first, last string) string {
	if first == "" && last == "" {
		return ""
	}
	base := strings.TrimSpace(first + "_" + last)

	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(base) {
		if r > unicode.MaxASCII {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case isWordRune(r):
			if pendingDash {
				b.WriteByte('-')
				pendingDash = false
			}
			b.WriteRune(r)
		case r == '-' || isSpaceRune(r):
			pendingDash = true
		}
	}

	slug := strings.Trim(b.String(), "-_")
	return strings.ReplaceAll(slug, "-", "_")
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

func isSpaceRune(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v', '\x1c', '\x1d', '\x1e', '\x1f':
		return true
	}
	return false
}
