// Package sanitize scrubs machine-identifying details from captured process
// output and normalizes text for verdict comparison.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	pathPlaceholder = "[path]"
	linePlaceholder = "[line]"
)

var (
	// Absolute or relative filesystem paths, Windows or POSIX separators.
	pathRe = regexp.MustCompile(`(?:[A-Za-z]:)?[\w.~-]*(?:[\\/][\w.$~-]+)+`)
	// "temp.js:3:5" style suffixes left behind once the path is scrubbed.
	pathLineRe = regexp.MustCompile(`\[path\](?::\d+)+`)
	// "at Program.Main() in …:line 12" style stack-frame fragments.
	frameRe = regexp.MustCompile(`(?i):?\s*\bline\s+\d+`)
)

// Scrub replaces path-like substrings and stack-frame line references with
// fixed placeholders so server filesystem layout never leaks to a
// participant or a log. Scrub is idempotent: the placeholders themselves
// match none of the patterns.
func Scrub(text string) string {
	text = pathRe.ReplaceAllString(text, pathPlaceholder)
	text = pathLineRe.ReplaceAllString(text, pathPlaceholder+linePlaceholder)
	text = frameRe.ReplaceAllString(text, linePlaceholder)
	return text
}

// Normalize canonicalizes line endings to "\n" and trims leading/trailing
// whitespace. It is applied only at comparison time; stored output stays
// faithful to the scrubbed original.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// Truncate caps text at maxBytes, marking the cut.
func Truncate(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	return text[:maxBytes] + "\n... [output truncated]"
}
