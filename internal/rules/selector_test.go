package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/HendryAvila/hoofctx/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// ruleWithCost returns an enabled workspace rule whose RuleCost is exactly
// tokens (title + separator + content = tokens*4 chars).
func ruleWithCost(t *testing.T, id string, tokens int) model.Rule {
	t.Helper()
	title := "R" + id
	content := strings.Repeat("x", tokens*4-len(title)-1)
	r := model.Rule{
		ID:          id,
		WorkspaceID: "ws",
		Scope:       model.ScopeWorkspace,
		Title:       title,
		Content:     content,
		Priority:    3,
		Severity:    model.SeverityMedium,
		Category:    model.CategoryOther,
		Enabled:     true,
		UpdatedAt:   testNow.Add(-24 * time.Hour),
	}
	if got := RuleCost(r); got != tokens {
		t.Fatalf("RuleCost(%s) = %d, want %d", id, got, tokens)
	}
	return r
}

func selectedIDs(sel Selection) []string {
	return sel.SelectedIDs()
}

func hasWarning(sel Selection, code string) bool {
	for _, w := range sel.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestSelect_PinnedPlusBestFit(t *testing.T) {
	a := ruleWithCost(t, "A", 50)
	a.Pinned = true
	b := ruleWithCost(t, "B", 40)
	b.Priority = 1
	c := ruleWithCost(t, "C", 40)
	c.Priority = 3
	d := ruleWithCost(t, "D", 40)
	d.Priority = 5

	sel := Select(model.ScopeWorkspace, []model.Rule{d, c, a, b}, Options{Budget: 120, Now: testNow})

	if diff := cmp.Diff([]string{"A", "B"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if sel.OmittedCount != 2 {
		t.Errorf("OmittedCount = %d, want 2", sel.OmittedCount)
	}
	if sel.Selected[0].Reason != ReasonPinned {
		t.Errorf("A reason = %q, want %q", sel.Selected[0].Reason, ReasonPinned)
	}
	if sel.Selected[1].Reason != ReasonScore {
		t.Errorf("B reason = %q, want %q", sel.Selected[1].Reason, ReasonScore)
	}
	if sel.Selected[1].Score == nil {
		t.Error("score-tier rule should carry its score")
	}
	if sel.SpentTokens != 90 {
		t.Errorf("SpentTokens = %d, want 90", sel.SpentTokens)
	}
	if diff := cmp.Diff([]string{"D", "C"}, sel.DroppedIDs); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect_DisabledRulesIgnored(t *testing.T) {
	a := ruleWithCost(t, "A", 10)
	b := ruleWithCost(t, "B", 10)
	b.Enabled = false

	sel := Select(model.ScopeWorkspace, []model.Rule{a, b}, Options{Budget: 1000, Now: testNow})

	if sel.EnabledCount != 1 {
		t.Errorf("EnabledCount = %d, want 1", sel.EnabledCount)
	}
	if diff := cmp.Diff([]string{"A"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if sel.OmittedCount != 0 {
		t.Errorf("OmittedCount = %d, want 0", sel.OmittedCount)
	}
}

func TestSelect_CountWarnings(t *testing.T) {
	var list []model.Rule
	for _, id := range []string{"A", "B", "C"} {
		list = append(list, ruleWithCost(t, id, 10))
	}

	sel := Select(model.ScopeWorkspace, list, Options{Budget: 1000, RecommendMax: 2, WarnThreshold: 3, Now: testNow})

	if !hasWarning(sel, WarnCountAboveRecommended) {
		t.Error("expected rule_count_above_recommended warning")
	}
	if !hasWarning(sel, WarnCountHigh) {
		t.Error("expected rule_count_high warning")
	}

	quiet := Select(model.ScopeWorkspace, list, Options{Budget: 1000, RecommendMax: 3, WarnThreshold: 4, Now: testNow})
	if len(quiet.Warnings) != 0 {
		t.Errorf("expected no warnings at the limits, got %+v", quiet.Warnings)
	}
}

func TestSelect_PinnedAlwaysIncludedOverBudget(t *testing.T) {
	a := ruleWithCost(t, "A", 80)
	a.Pinned = true
	b := ruleWithCost(t, "B", 80)
	b.Pinned = true
	c := ruleWithCost(t, "C", 5)

	sel := Select(model.ScopeWorkspace, []model.Rule{a, b, c}, Options{Budget: 100, Now: testNow})

	if diff := cmp.Diff([]string{"A", "B"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if !hasWarning(sel, WarnPinnedOverBudget) {
		t.Error("expected pinned_over_budget warning")
	}
}

func TestSelect_HighSeverityForcedWhenNothingSelected(t *testing.T) {
	h1 := ruleWithCost(t, "H1", 40)
	h1.Severity = model.SeverityHigh
	h2 := ruleWithCost(t, "H2", 40)
	h2.Severity = model.SeverityHigh

	sel := Select(model.ScopeWorkspace, []model.Rule{h1, h2}, Options{Budget: 10, Now: testNow})

	if diff := cmp.Diff([]string{"H1"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if sel.Selected[0].Reason != ReasonHighSeverity {
		t.Errorf("reason = %q, want %q", sel.Selected[0].Reason, ReasonHighSeverity)
	}
	if !hasWarning(sel, WarnHighSeverityForced) {
		t.Error("expected high_severity_over_budget warning")
	}
	if !hasWarning(sel, WarnHighSeverityDropped) {
		t.Error("expected high_severity_dropped warning for H2")
	}
}

func TestSelect_HighSeverityNotForcedAfterPinned(t *testing.T) {
	p := ruleWithCost(t, "P", 10)
	p.Pinned = true
	h := ruleWithCost(t, "H", 40)
	h.Severity = model.SeverityHigh

	sel := Select(model.ScopeWorkspace, []model.Rule{p, h}, Options{Budget: 20, Now: testNow})

	if diff := cmp.Diff([]string{"P"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if !hasWarning(sel, WarnHighSeverityDropped) {
		t.Error("expected high_severity_dropped warning")
	}
}

func TestSelect_SkipsRuleThatDoesNotFitAndTriesNext(t *testing.T) {
	big := ruleWithCost(t, "BIG", 60)
	big.Priority = 1
	small := ruleWithCost(t, "SMALL", 10)
	small.Priority = 5

	sel := Select(model.ScopeWorkspace, []model.Rule{big, small}, Options{Budget: 50, Mode: ModePriorityOnly, Now: testNow})

	if diff := cmp.Diff([]string{"SMALL"}, selectedIDs(sel)); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if sel.Selected[0].Reason != ReasonPriority {
		t.Errorf("reason = %q, want %q", sel.Selected[0].Reason, ReasonPriority)
	}
}

func TestSelect_ModeOrdering(t *testing.T) {
	old := ruleWithCost(t, "OLD", 10)
	old.Priority = 1
	old.UpdatedAt = testNow.Add(-90 * 24 * time.Hour)
	fresh := ruleWithCost(t, "FRESH", 10)
	fresh.Priority = 4
	fresh.UpdatedAt = testNow.Add(-time.Hour)
	mid := ruleWithCost(t, "MID", 10)
	mid.Priority = 2
	mid.UpdatedAt = testNow.Add(-10 * 24 * time.Hour)
	list := []model.Rule{old, fresh, mid}

	tests := []struct {
		mode SelectionMode
		want []string
	}{
		{ModeRecent, []string{"FRESH", "MID", "OLD"}},
		{ModePriorityOnly, []string{"OLD", "MID", "FRESH"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			sel := Select(model.ScopeWorkspace, list, Options{Budget: 1000, Mode: tt.mode, Now: testNow})
			if diff := cmp.Diff(tt.want, selectedIDs(sel)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelect_ScoreTiesBreakByRecency(t *testing.T) {
	a := ruleWithCost(t, "A", 10)
	b := ruleWithCost(t, "B", 10)
	// A zero timestamp counts as age 0, so both score identically while B
	// is the more recent update.
	a.UpdatedAt = time.Time{}
	b.UpdatedAt = testNow

	sel := Select(model.ScopeWorkspace, []model.Rule{a, b}, Options{Budget: 1000, Now: testNow})

	if diff := cmp.Diff([]string{"B", "A"}, selectedIDs(sel)); diff != "" {
		t.Errorf("tie order mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	var list []model.Rule
	for i, id := range []string{"A", "B", "C", "D", "E", "F"} {
		r := ruleWithCost(t, id, 15+i*5)
		r.Priority = i%5 + 1
		r.Severity = []model.Severity{model.SeverityLow, model.SeverityHigh, model.SeverityMedium}[i%3]
		list = append(list, r)
	}
	opts := Options{
		Budget:  90,
		Query:   "rule",
		Routing: RoutingConfig{Enabled: true, Mode: RoutingHybrid, TopK: 2},
		Now:     testNow,
	}

	first := Select(model.ScopeWorkspace, list, opts)
	for i := 0; i < 5; i++ {
		again := Select(model.ScopeWorkspace, list, opts)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestSelect_RespectsBudgetWithoutPinnedOrForced(t *testing.T) {
	var list []model.Rule
	for i, id := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		r := ruleWithCost(t, id, 7+i*9)
		r.Priority = 5 - i%5
		list = append(list, r)
	}
	for _, mode := range []SelectionMode{ModeScore, ModeRecent, ModePriorityOnly} {
		for b := 0; b <= 300; b += 13 {
			sel := Select(model.ScopeWorkspace, list, Options{Budget: b, Mode: mode, Now: testNow})
			if sel.SpentTokens > b {
				t.Errorf("mode %s budget %d: spent %d", mode, b, sel.SpentTokens)
			}
			if len(sel.Selected)+sel.OmittedCount != sel.EnabledCount {
				t.Errorf("mode %s budget %d: selected %d + omitted %d != enabled %d",
					mode, b, len(sel.Selected), sel.OmittedCount, sel.EnabledCount)
			}
		}
	}
}

func TestSelect_RoutedRulesFirst(t *testing.T) {
	db := ruleWithCost(t, "DB", 20)
	db.Title = "Database migrations"
	db.Content = "Always write reversible database migrations and review them."
	db.Priority = 5
	style := ruleWithCost(t, "STYLE", 20)
	style.Title = "Formatting"
	style.Content = "Run the formatter before pushing."
	style.Priority = 1
	docs := ruleWithCost(t, "DOCS", 20)
	docs.Title = "Docs"
	docs.Content = "Public functions carry doc comments."
	docs.Priority = 2

	opts := Options{
		Budget:  1000,
		Query:   "database migrations",
		Routing: RoutingConfig{Enabled: true, Mode: RoutingHybrid, TopK: 1, MinScore: 0.5},
		Now:     testNow,
	}
	sel := Select(model.ScopeWorkspace, []model.Rule{style, docs, db}, opts)

	if len(sel.Selected) != 3 {
		t.Fatalf("selected %d rules, want 3", len(sel.Selected))
	}
	if sel.Selected[0].ID != "DB" {
		t.Errorf("first selected = %s, want DB", sel.Selected[0].ID)
	}
	if sel.Selected[0].Reason != RoutedReason(RoutingHybrid) {
		t.Errorf("reason = %q, want %q", sel.Selected[0].Reason, RoutedReason(RoutingHybrid))
	}
	for _, r := range sel.Selected[1:] {
		if r.Reason != ReasonScore {
			t.Errorf("%s reason = %q, want %q", r.ID, r.Reason, ReasonScore)
		}
	}
	if sel.Routing == nil {
		t.Fatal("routing debug missing")
	}
	if len(sel.Routing.Scores) != 3 {
		t.Errorf("routing scores = %d, want 3", len(sel.Routing.Scores))
	}
	for _, s := range sel.Routing.Scores {
		if !s.Selected {
			t.Errorf("score for %s should be marked selected", s.RuleID)
		}
	}
}

func TestSelect_NoRoutingDebugWithoutQuery(t *testing.T) {
	a := ruleWithCost(t, "A", 10)
	sel := Select(model.ScopeWorkspace, []model.Rule{a}, Options{
		Budget:  100,
		Routing: RoutingConfig{Enabled: true},
		Now:     testNow,
	})
	if sel.Routing != nil {
		t.Error("routing debug should be nil when the query is empty")
	}
}

func TestSelect_UsedSummary(t *testing.T) {
	a := ruleWithCost(t, "A", 40)
	b := ruleWithCost(t, "B", 40)
	c := ruleWithCost(t, "C", 40)
	list := []model.Rule{a, b, c}

	tests := []struct {
		name string
		opts Options
		want bool
	}{
		{"enabled and omitted", Options{Budget: 50, SummaryEnabled: true, SummaryMinCount: 3}, true},
		{"disabled", Options{Budget: 50, SummaryEnabled: false, SummaryMinCount: 3}, false},
		{"below min count", Options{Budget: 50, SummaryEnabled: true, SummaryMinCount: 4}, false},
		{"nothing omitted", Options{Budget: 500, SummaryEnabled: true, SummaryMinCount: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Now = testNow
			if got := Select(model.ScopeWorkspace, list, tt.opts).UsedSummary; got != tt.want {
				t.Errorf("UsedSummary = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultOrder(t *testing.T) {
	low := model.Rule{ID: "low", Priority: 1, UpdatedAt: testNow}
	pinned := model.Rule{ID: "pinned", Priority: 5, Pinned: true}
	high := model.Rule{ID: "high", Priority: 5, Severity: model.SeverityHigh}
	newer := model.Rule{ID: "newer", Priority: 1, UpdatedAt: testNow.Add(time.Hour)}

	got := DefaultOrder([]model.Rule{low, high, newer, pinned})
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"pinned", "high", "newer", "low"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
