package util

import "strings"

// stateLogLength is how many characters of a state value end up in logs.
// Enough to correlate log lines without writing the full token out.
const stateLogLength = 8

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// A negative maxLen is treated as 0.
//
// Example:
//
//	SafeTruncate("very-long-state-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// LogState shortens a correlation token for logging. Tokens longer than the
// log prefix get a trailing ellipsis so truncation is visible.
func LogState(state string) string {
	if state == "" {
		return "<empty>"
	}
	if len(state) <= stateLogLength {
		return state
	}
	return SafeTruncate(state, stateLogLength) + "..."
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty entries. It returns nil when nothing is left.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
