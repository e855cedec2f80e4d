package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON means no JSON value could be recovered from model output.
var ErrNoJSON = errors.New("no json found in model output")

var (
	codeFenceRe     = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseJSON extracts a JSON value from model output. It tries, in order: the
// text as-is, the contents of a code fence, the first balanced object or
// array, and each of those with trailing commas removed.
func ParseJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSON
	}

	candidates := []string{text}
	if m := codeFenceRe.FindStringSubmatch(text); len(m) > 1 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj := firstBalanced(text, '{', '}'); obj != "" {
		candidates = append(candidates, obj)
	}
	if arr := firstBalanced(text, '[', ']'); arr != "" {
		candidates = append(candidates, arr)
	}

	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return json.RawMessage(c), nil
		}
	}
	for _, c := range candidates {
		fixed := trailingCommaRe.ReplaceAllString(c, "$1")
		if json.Valid([]byte(fixed)) {
			return json.RawMessage(fixed), nil
		}
	}
	return nil, ErrNoJSON
}

// firstBalanced returns the first substring of s that opens with openCh and
// closes at the matching closeCh, skipping delimiters inside string literals.
func firstBalanced(s string, openCh, closeCh byte) string {
	start := strings.IndexByte(s, openCh)
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case openCh:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
		next := strings.IndexByte(s[start+1:], openCh)
		if next < 0 {
			return ""
		}
		start += 1 + next
	}
	return ""
}
