package gate

import (
	"regexp"
	"strings"
)

const (
	maxRegexPatternLength = 256
	maxRegexTargetLength  = 4096
)

var (
	backreference   = regexp.MustCompile(`\\[1-9]`)
	greedyWildcard  = regexp.MustCompile(`\.\*|\.\+`)
	stackedQuantity = regexp.MustCompile(`[+*?]{2,}`)
	openRepetition  = regexp.MustCompile(`\{\d+,\}|\{,\d+\}`)
)

// IsPotentiallyUnsafeRegex screens a pattern for shapes prone to
// catastrophic backtracking. It over-rejects: any group, alternation or
// open-ended wildcard fails the screen.
func IsPotentiallyUnsafeRegex(pattern string) bool {
	if len(pattern) > maxRegexPatternLength {
		return true
	}
	if backreference.MatchString(pattern) {
		return true
	}
	if hasUnescaped(pattern, '(') || hasUnescaped(pattern, ')') || hasUnescaped(pattern, '|') {
		return true
	}
	if strings.Contains(pattern, "(?") {
		return true
	}
	if greedyWildcard.MatchString(pattern) || stackedQuantity.MatchString(pattern) {
		return true
	}
	return openRepetition.MatchString(pattern)
}

func hasUnescaped(pattern string, target rune) bool {
	escaped := false
	for _, ch := range pattern {
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == target:
			return true
		}
	}
	return false
}
