package rules

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/model"
)

// summaryContentChars bounds each bullet's content excerpt.
const summaryContentChars = 160

// Summary sources.
const (
	SummaryPersisted = "persisted"
	SummaryGenerated = "generated"
)

// GenerateSummary renders rules as a bullet list grouped by category:
//
//	[category|severity|pN|pinned] title: truncated content
//
// Bullets are added in default order until the next one would push the
// summary over maxTokens. A non-positive maxTokens means unbounded.
func GenerateSummary(rules []model.Rule, maxTokens int) string {
	if len(rules) == 0 {
		return ""
	}
	groups := make(map[model.Category][]model.Rule)
	for _, r := range DefaultOrder(rules) {
		c := model.ParseCategory(string(r.Category))
		groups[c] = append(groups[c], r)
	}

	var b strings.Builder
	for _, cat := range model.CategoryOrder {
		group := groups[cat]
		if len(group) == 0 {
			continue
		}
		header := fmt.Sprintf("%s:\n", titleCase(string(cat)))
		headerWritten := false
		for _, r := range group {
			line := summaryLine(r)
			next := b.String()
			if !headerWritten {
				next += header
			}
			next += line
			if maxTokens > 0 && b.Len() > 0 && budget.Estimate(next) > maxTokens {
				return strings.TrimRight(b.String(), "\n")
			}
			if !headerWritten {
				b.WriteString(header)
				headerWritten = true
			}
			b.WriteString(line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryLine(r model.Rule) string {
	tags := []string{
		string(model.ParseCategory(string(r.Category))),
		string(model.ParseSeverity(string(r.Severity))),
		fmt.Sprintf("p%d", model.ClampPriority(r.Priority)),
	}
	if r.Pinned {
		tags = append(tags, "pinned")
	}
	content := budget.Truncate(strings.Join(strings.Fields(r.Content), " "), summaryContentChars)
	return fmt.Sprintf("- [%s] %s: %s\n", strings.Join(tags, "|"), strings.TrimSpace(r.Title), content)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
