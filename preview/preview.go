// Package preview turns raw extracted chunk text into human-readable
// snippets. All functions are pure and idempotent: applying them twice
// yields the same result as applying them once.
package preview

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// UTF-8 text decoded as Windows-1252 leaves these sequences behind.
// Replacements map straight to the canonical forms produced by the rest of
// the pipeline, so a second pass finds nothing to fix. Order matters: the
// bare "Â" strip runs last, which also repairs Â©, Â® and friends.
var mojibakeFixes = []struct{ bad, good string }{
	{"â€“", "-"},
	{"â€”", "-"},
	{"â€˜", "'"},
	{"â€™", "'"},
	{"â€œ", `"`},
	{"â€�", `"`},
	{"â€¦", "..."},
	{"â€¢", "-"},
	{"â„¢", "TM"},
	{"âˆ’", "−"},
	{"â¦", "..."},
	{"Ã—", "×"},
	{"Â", ""},
}

// Curly quotes, dashes and bullets fold to plain ASCII. Keeps previews
// diff- and embedding-friendly.
var canonical = []struct{ bad, good string }{
	{"‘", "'"},
	{"’", "'"},
	{"‚", "'"},
	{"“", `"`},
	{"”", `"`},
	{"„", `"`},
	{"–", "-"},
	{"—", "-"},
	{"•", "-"},
}

// Zero-width and soft-hyphen artifacts common in PDF extractions.
var stripChars = []string{"​", "﻿", "⁠", "­"}

var (
	hyphenBreakRe = regexp.MustCompile(`(\p{L})-\n(\p{L})`)
	spaceRunRe    = regexp.MustCompile(` {3,}`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	spaceTabRe    = regexp.MustCompile(`[ \t]+`)
)

// Normalize repairs encoding artifacts and whitespace in extracted text
// while preserving paragraph breaks. Applied to page content at ingestion
// and as the first step of Clean.
func Normalize(s string) string {
	if s == "" {
		return s
	}

	for _, f := range mojibakeFixes {
		s = strings.ReplaceAll(s, f.bad, f.good)
	}

	s = norm.NFKC.String(s)

	for _, c := range canonical {
		s = strings.ReplaceAll(s, c.bad, c.good)
	}

	s = strings.ReplaceAll(s, " ", " ")
	for _, ch := range stripChars {
		s = strings.ReplaceAll(s, ch, "")
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = spaceRunRe.ReplaceAllString(line, " ")
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")

	// Join words hyphenated across a line break. Repeat until stable:
	// each pass consumes the joining letter, so chained breaks need
	// another round.
	for {
		joined := hyphenBreakRe.ReplaceAllString(s, "$1$2")
		if joined == s {
			break
		}
		s = joined
	}

	s = blankRunRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// Clean normalizes s, drops lines that are nothing but digits (page-number
// artifacts), collapses runs of spaces and tabs, and truncates to maxChars
// runes with a "..." marker. maxChars <= 0 disables truncation.
func Clean(s string, maxChars int) string {
	s = Normalize(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isDigitLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	s = spaceTabRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// Below 4 runes there is no room for a marked cut that survives a
	// second pass through the line filters.
	if maxChars > 0 && maxChars < 4 {
		maxChars = 4
	}
	return Truncate(s, maxChars)
}

// Snippet is the raw-preview counterpart of Clean: a bounded prefix of s
// with the same truncation marker and no other rewriting.
func Snippet(s string, maxChars int) string {
	return Truncate(s, maxChars)
}

// Truncate bounds s to maxChars runes, marker included. maxChars <= 0
// means unbounded.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	cut := strings.TrimRightFunc(string(runes[:maxChars-3]), unicode.IsSpace)
	return cut + "..."
}

func isDigitLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
