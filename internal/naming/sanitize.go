package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var imageExtRe = regexp.MustCompile(`(?i)\.(?:png|jpe?g|gif|webp|bmp|svg|tiff?|ico|heic|avif)$`)

// StripImageExt removes a trailing image extension so names never end up
// as "chart.png.png".
func StripImageExt(s string) string {
	return imageExtRe.ReplaceAllString(strings.TrimSpace(s), "")
}

// SanitizeSegment makes s safe for use inside a file name: NFC-normalized,
// without path separators, reserved characters or control characters, and
// with whitespace runs replaced by sep.
func SanitizeSegment(s, sep string) string {
	s = norm.NFC.String(s)
	var sb strings.Builder
	inSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				sb.WriteString(sep)
			}
			inSpace = true
			continue
		case unicode.IsControl(r), strings.ContainsRune(`\/:*?"<>|`, r):
			inSpace = false
			continue
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func stripSpecial(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == ' ', r == '.':
			return r
		}
		return -1
	}, s)
}
