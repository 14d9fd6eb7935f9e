package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// ─── Decision capture ────────────────────────────────────────────────────────

// decisionHeaderPattern matches "## Decisions" style section headers.
var decisionHeaderPattern = regexp.MustCompile(
	`(?im)^#{2,3}\s+(?:Key\s+)?Decisions?(?:\s+Made)?:?\s*$`,
)

var (
	nextHeaderPattern = regexp.MustCompile(`\n#{1,3} `)
	numberedPattern   = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)`)
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	codePattern       = regexp.MustCompile("`([^`]+)`")
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*`)
)

// minDecisionLength is the minimum character length of a captured decision.
const minDecisionLength = 20

// ExtractDecisions parses decision items from markdown text. It looks for a
// "## Decisions" section and takes its numbered items, or its bullet items
// when there are no numbered ones. When several sections exist the last one
// with items wins.
func ExtractDecisions(text string) []string {
	matches := decisionHeaderPattern.FindAllStringIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		section := text[matches[i][1]:]
		if next := nextHeaderPattern.FindStringIndex(section); next != nil {
			section = section[:next[0]]
		}

		items := collectItems(numberedPattern, section)
		if len(items) == 0 {
			items = collectItems(bulletPattern, section)
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func collectItems(p *regexp.Regexp, section string) []string {
	var out []string
	for _, m := range p.FindAllStringSubmatch(section, -1) {
		if cleaned := cleanMarkdown(m[1]); len(cleaned) >= minDecisionLength {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanMarkdown(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = codePattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// CaptureParams identifies the text to scan and where captured decisions go.
type CaptureParams struct {
	WorkspaceID string
	ProjectID   string
	Content     string
	Subpath     string
	Source      string
}

// CaptureResult counts what a capture run did.
type CaptureResult struct {
	Extracted  int                         `json:"extracted"`
	Saved      int                         `json:"saved"`
	Duplicates int                         `json:"duplicates"`
	Diagnostic *model.ExtractionDiagnostic `json:"diagnostic,omitempty"`
}

// CaptureDecisions extracts decisions from p.Content and saves each one as a
// draft decision memory. Decisions already stored for the project count as
// duplicates. Every run that finds a decision section is recorded as an
// extraction diagnostic.
func (s *Store) CaptureDecisions(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	result := &CaptureResult{}
	decisions := ExtractDecisions(p.Content)
	result.Extracted = len(decisions)
	if len(decisions) == 0 {
		return result, nil
	}

	for _, d := range decisions {
		m := &model.Memory{
			WorkspaceID: p.WorkspaceID,
			ProjectID:   p.ProjectID,
			Type:        model.MemoryDecision,
			Status:      model.MemoryStatusDraft,
			Content:     d,
			Metadata:    model.MemoryMetadata{Subpath: p.Subpath, Source: p.Source},
		}
		created, err := s.AddMemory(ctx, m)
		if err != nil {
			return result, fmt.Errorf("sqlite: capture decision: %w", err)
		}
		if created {
			result.Saved++
		} else {
			result.Duplicates++
		}
	}

	diag := &model.ExtractionDiagnostic{
		WorkspaceID: p.WorkspaceID,
		ProjectID:   p.ProjectID,
		Source:      p.Source,
		Extracted:   result.Extracted,
		Saved:       result.Saved,
		Duplicates:  result.Duplicates,
		Message:     fmt.Sprintf("captured %d of %d decision(s)", result.Saved, result.Extracted),
	}
	if err := s.AddDiagnostic(ctx, diag); err != nil {
		return result, err
	}
	result.Diagnostic = diag
	return result, nil
}
