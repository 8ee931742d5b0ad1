// Package strings formats values for terminal output.
package strings

import (
	"fmt"
	"strings"
)

// DefaultValueMaxLen is the default maximum length for values in result tables.
const DefaultValueMaxLen = 100

// MinTruncateLen is the minimum maxLen value for Truncate.
// Values smaller than this would not leave room for meaningful content plus "...".
const MinTruncateLen = 4

// maskPrefixLen is how much of a secret Mask keeps visible.
const maskPrefixLen = 4

// Truncate shortens s to maxLen runes, collapsing whitespace so the result
// fits on one line, and adds "..." if it had to cut.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Mask hides a secret, keeping a short prefix and the length so that two
// values can still be told apart. Secrets too short to keep a prefix are
// fully masked.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 2*maskPrefixLen {
		return "********"
	}
	return fmt.Sprintf("%s******** (%d chars)", secret[:maskPrefixLen], len(secret))
}
