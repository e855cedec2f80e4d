// Package naming renders file names from templates and resolves collisions
// between the names chosen in one apply pass.
package naming

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "{title}_{seq}_{intent}"

// Recognized placeholder keys.
const (
	KeyTitle    = "title"
	KeySeq      = "seq"
	KeyIntent   = "intent"
	KeyDate     = "date"
	KeyTime     = "time"
	KeyContext  = "context"
	KeyFile     = "file"
	KeyOriginal = "original"
	KeyBlock    = "block"
	KeyIdx      = "idx"
)

var numericKeys = map[string]bool{KeySeq: true, KeyBlock: true, KeyIdx: true}

// Rules are the post-expansion normalization settings.
type Rules struct {
	SeqWidth      int    `json:"seq_width" yaml:"seq_width"`
	Separator     string `json:"separator" yaml:"separator"`
	CaseSensitive bool   `json:"case_sensitive" yaml:"case_sensitive"`
	StripSpecial  bool   `json:"strip_special" yaml:"strip_special"`
	MaxLength     int    `json:"max_length" yaml:"max_length"` // runes; 0 = unlimited
}

func (r Rules) sep() string {
	if r.Separator == "" {
		return "_"
	}
	return r.Separator
}

// Placeholders maps placeholder keys to raw values. A key that is absent
// leaves its placeholder unresolved.
type Placeholders map[string]string

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_]+)(?::([^{}]*))?\}`)

type part struct {
	text     string
	verbatim bool
}

// Render expands template with ph and normalizes the result per rules.
// Unresolved placeholders are kept verbatim, untouched by case folding or
// character stripping. Rendering is deterministic.
func Render(template string, ph Placeholders, rules Rules) string {
	sep := rules.sep()
	lower := cases.Lower(language.Und)

	var parts []part
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(template, -1) {
		if loc[0] > last {
			parts = append(parts, part{text: template[last:loc[0]]})
		}
		last = loc[1]

		key := template[loc[2]:loc[3]]
		arg := ""
		if loc[4] >= 0 {
			arg = template[loc[4]:loc[5]]
		}
		value, ok := ph[strings.ToLower(key)]
		if !ok {
			parts = append(parts, part{text: template[loc[0]:loc[1]], verbatim: true})
			continue
		}
		parts = append(parts, part{text: expand(strings.ToLower(key), value, arg, rules)})
	}
	if last < len(template) {
		parts = append(parts, part{text: template[last:]})
	}

	var sb strings.Builder
	for _, p := range parts {
		if p.verbatim {
			sb.WriteString(p.text)
			continue
		}
		s := SanitizeSegment(p.text, sep)
		if !rules.CaseSensitive {
			s = lower.String(s)
		}
		if rules.StripSpecial {
			s = stripSpecial(s)
		}
		sb.WriteString(s)
	}

	out := collapseSeparators(sb.String(), sep)
	out = trimEdges(out, sep)
	if rules.MaxLength > 0 {
		out = trimEdges(truncateAtBoundary(out, rules.MaxLength, sep), sep)
	}
	return out
}

func expand(key, value, arg string, rules Rules) string {
	if numericKeys[key] {
		width := rules.SeqWidth
		if n, err := strconv.Atoi(strings.TrimSuffix(arg, "d")); err == nil && n >= 0 {
			width = n
		}
		return PadNumber(value, width)
	}
	if key == KeyIntent {
		value = StripImageExt(value)
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(arg, ".")); err == nil && n >= 0 {
		value = runePrefix(strings.TrimSpace(value), n)
	}
	return value
}

// PadNumber drops leading zeros from a decimal value and left-pads it to
// width. Non-numeric values are returned unchanged.
func PadNumber(value string, width int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return value
		}
	}
	value = strings.TrimLeft(value, "0")
	if value == "" {
		value = "0"
	}
	if n := width - len(value); n > 0 {
		value = strings.Repeat("0", n) + value
	}
	return value
}

func collapseSeparators(s, sep string) string {
	re := regexp.MustCompile(`(?:` + regexp.QuoteMeta(sep) + `)+`)
	return re.ReplaceAllLiteralString(s, sep)
}

func trimEdges(s, sep string) string {
	for {
		t := strings.TrimSpace(s)
		t = strings.TrimPrefix(t, sep)
		t = strings.TrimSuffix(t, sep)
		t = strings.Trim(t, ".-_ ")
		if t == s {
			return t
		}
		s = t
	}
}

// truncateAtBoundary cuts s to at most max runes, preferring the last
// separator, space, dot or hyphen when that keeps at least half the budget.
func truncateAtBoundary(s string, max int, sep string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := runePrefix(s, max)
	best := -1
	for _, b := range []string{sep, " ", ".", "-"} {
		if i := strings.LastIndex(cut, b); i > best {
			best = i
		}
	}
	if best >= 0 && utf8.RuneCountInString(cut[:best]) >= max/2 {
		return cut[:best]
	}
	return cut
}

func runePrefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
