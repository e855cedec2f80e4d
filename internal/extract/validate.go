package extract

import (
	"regexp"
	"unicode/utf8"
)

const (
	maxNameRunes   = 120
	maxReasonRunes = 300
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

// ValidateCandidate checks a candidate for validity. Returns true if valid.
// Overlong reasons are cut and confidence is clamped in place.
func ValidateCandidate(c *Candidate) bool {
	if c == nil {
		return false
	}
	n := utf8.RuneCountInString(c.Name)
	if n == 0 || n > maxNameRunes {
		return false
	}
	if injectionPattern.MatchString(c.Name) {
		return false
	}
	if c.Confidence != nil {
		v := clamp01(*c.Confidence)
		c.Confidence = &v
	}
	if utf8.RuneCountInString(c.Reason) > maxReasonRunes {
		c.Reason = string([]rune(c.Reason)[:maxReasonRunes])
	}
	return true
}
