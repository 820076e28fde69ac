// Package instruction implements the normalised-prefix function (§4.6) and
// the sub-task delegation extractor (C5, §4.5).
package instruction

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultPrefixLength is the system-wide normalised-prefix length K (§4.6).
const DefaultPrefixLength = 192

// MinGraphemeLength is the minimum normalised length below which a prefix is
// discarded rather than indexed (§4.6).
const MinGraphemeLength = 10

// Normalize is the pure function described in §4.6:
//  1. Unicode-normalise (NFC).
//  2. Collapse any run of ASCII whitespace to a single space.
//  3. Trim.
//  4. Take the leading k code points (not bytes).
func Normalize(text string, k int) string {
	nfc := norm.NFC.String(text)
	collapsed := collapseWhitespace(nfc)
	trimmed := strings.TrimSpace(collapsed)
	return truncateRunes(trimmed, k)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWhitespace := false
	for _, r := range s {
		if isCollapsibleWhitespace(r) {
			if !inWhitespace {
				b.WriteByte(' ')
				inWhitespace = true
			}
			continue
		}
		inWhitespace = false
		b.WriteRune(r)
	}
	return b.String()
}

// isCollapsibleWhitespace restricts collapsing to the ASCII whitespace the
// spec names explicitly (space, tab, newline, CR) so that other Unicode
// spacing characters are preserved verbatim.
func isCollapsibleWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func truncateRunes(s string, k int) string {
	if k <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == k {
			return s[:i]
		}
		count++
	}
	return s
}

// graphemeLength approximates "graphemes" as non-combining runes, which is
// sufficient to apply the §4.6 ten-grapheme discard threshold without
// pulling in a full grapheme-segmentation dependency for a single
// length check.
func graphemeLength(s string) int {
	n := 0
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		n++
	}
	return n
}

// IsSignificant reports whether a normalised prefix meets the minimum
// length the spec requires before it is indexed or matched (§4.6).
func IsSignificant(normalizedPrefix string) bool {
	return graphemeLength(normalizedPrefix) >= MinGraphemeLength
}
