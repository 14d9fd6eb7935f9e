// Package budget estimates token cost and partitions a total context budget
// into the slices the bundle is assembled from.
//
// Token estimation uses the chars/4 heuristic (the standard approximation for
// GPT/Claude tokenizers). It is an estimate only: budgets are soft bounds that
// keep bundles roughly inside a consumer's context window.
package budget

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken is the calibration factor for Estimate.
const charsPerToken = 4

// Estimate approximates the token count of text. Whitespace runs are
// collapsed first so indentation does not inflate the cost. The result is
// always at least 1, even for empty input.
func Estimate(text string) int {
	n := len(strings.Join(strings.Fields(text), " "))
	tokens := (n + charsPerToken - 1) / charsPerToken
	if tokens < 1 {
		return 1
	}
	return tokens
}

// CharsFor returns the approximate character length that fits the given
// number of tokens.
func CharsFor(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * charsPerToken
}

// Truncate shortens s to at most max bytes, appending "..." when cut. The
// cut never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return Prefix(s, max)
	}
	return strings.TrimSpace(Prefix(s, max-3)) + "..."
}

// Prefix returns the longest prefix of s that fits in n bytes and ends on a
// rune boundary.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// TokenFooter returns a one-line footer with the estimated token count for
// a tool response.
func TokenFooter(estimatedTokens int) string {
	return fmt.Sprintf("\n📏 ~%s tokens", formatNumber(estimatedTokens))
}

// BudgetFooter reports how much of a budget a response used.
func BudgetFooter(tokensUsed, budget, shown, total int) string {
	return fmt.Sprintf("\n⚡ Budget: ~%s/%s tokens used. %d of %d items shown.",
		formatNumber(tokensUsed), formatNumber(budget), shown, total)
}

// formatNumber formats an integer with comma separators for readability.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
