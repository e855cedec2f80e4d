package window

import (
	"strings"
	"unicode/utf8"
)

// TruncateHead keeps the beginning of text within budget runes. Whole
// paragraphs are preferred, then whole sentences, then a rune cut.
func TruncateHead(text string, budget int) string {
	text = strings.TrimSpace(text)
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}

	paras := splitByParagraphs(text)
	if out := fitParts(paras, "\n\n", budget, false); out != "" {
		return out
	}
	if out := fitParts(splitSentences(paras[0]), " ", budget, false); out != "" {
		return out
	}
	return strings.TrimSpace(runePrefix(paras[0], budget))
}

// TruncateTail keeps the end of text within budget runes, preferring the
// same boundaries as TruncateHead.
func TruncateTail(text string, budget int) string {
	text = strings.TrimSpace(text)
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}

	paras := splitByParagraphs(text)
	if out := fitParts(paras, "\n\n", budget, true); out != "" {
		return out
	}
	last := paras[len(paras)-1]
	if out := fitParts(splitSentences(last), " ", budget, true); out != "" {
		return out
	}
	return strings.TrimSpace(runeSuffix(last, budget))
}

// fitParts joins as many parts as fit in budget, taken from the front or,
// when fromEnd is set, from the back. It returns "" if not even one fits.
func fitParts(parts []string, sep string, budget int, fromEnd bool) string {
	var kept []string
	used := 0
	sepLen := utf8.RuneCountInString(sep)
	for k := range parts {
		i := k
		if fromEnd {
			i = len(parts) - 1 - k
		}
		n := utf8.RuneCountInString(parts[i])
		if len(kept) > 0 {
			n += sepLen
		}
		if used+n > budget {
			break
		}
		used += n
		kept = append(kept, parts[i])
	}
	if len(kept) == 0 {
		return ""
	}
	if fromEnd {
		for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
			kept[l], kept[r] = kept[r], kept[l]
		}
	}
	return strings.Join(kept, sep)
}

func splitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences breaks on Western and CJK sentence terminators.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		end := false
		switch r {
		case '。', '！', '？', '；', '\n':
			end = true
		case '.', '!', '?', ';':
			end = i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n')
		}
		if end {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
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

func runeSuffix(s string, n int) string {
	total := utf8.RuneCountInString(s)
	if n >= total {
		return s
	}
	skip := total - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}
