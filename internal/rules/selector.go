package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// candidate is an enabled rule with its original position, cost and score.
type candidate struct {
	rule  model.Rule
	index int
	cost  int
	score ScoreBreakdown
}

// Select picks rules for one scope under opts.Budget.
//
// Pinned rules are always included, even past the budget. High-severity
// rules follow in original order while they fit; the very first one is
// admitted regardless of cost when nothing has been selected yet. The
// remaining rules are admitted one by one while they fit, routed rules
// first, then the rest in selection-mode order. A rule that does not fit is
// skipped and the next one is tried.
//
// Select is deterministic: equal scores break by most recent UpdatedAt, then
// by original order.
func Select(scope model.Scope, rules []model.Rule, opts Options) Selection {
	var enabled []candidate
	for i, r := range rules {
		if !r.Enabled {
			continue
		}
		enabled = append(enabled, candidate{rule: r, index: i, cost: RuleCost(r)})
	}

	sel := Selection{EnabledCount: len(enabled)}
	count := len(enabled)
	if opts.RecommendMax > 0 && count > opts.RecommendMax {
		sel.Warnings = append(sel.Warnings, Warning{
			Level:   LevelInfo,
			Code:    WarnCountAboveRecommended,
			Scope:   string(scope),
			Message: fmt.Sprintf("%d enabled %s rules exceed the recommended maximum of %d", count, scope, opts.RecommendMax),
		})
	}
	if opts.WarnThreshold > 0 && count >= opts.WarnThreshold {
		sel.Warnings = append(sel.Warnings, Warning{
			Level:   LevelWarn,
			Code:    WarnCountHigh,
			Scope:   string(scope),
			Message: fmt.Sprintf("%d enabled %s rules reach the warning threshold of %d; consider consolidating", count, scope, opts.WarnThreshold),
		})
	}

	chosen := make(map[int]bool, count)
	spent := 0
	add := func(c candidate, reason Reason, score *float64) {
		chosen[c.index] = true
		spent += c.cost
		sel.Selected = append(sel.Selected, SelectedRule{
			Rule:          c.rule,
			TokenEstimate: c.cost,
			Reason:        reason,
			Score:         score,
		})
	}

	// Pinned tier.
	for _, c := range enabled {
		if c.rule.Pinned {
			add(c, ReasonPinned, nil)
		}
	}
	if spent > opts.Budget && len(sel.Selected) > 0 {
		sel.Warnings = append(sel.Warnings, Warning{
			Level:   LevelWarn,
			Code:    WarnPinnedOverBudget,
			Scope:   string(scope),
			Message: fmt.Sprintf("pinned %s rules use ~%d tokens, over the %d token budget", scope, spent, opts.Budget),
		})
	}

	// High-severity tier.
	droppedHigh := 0
	for _, c := range enabled {
		if c.rule.Pinned || c.rule.Severity != model.SeverityHigh {
			continue
		}
		switch {
		case spent+c.cost <= opts.Budget:
			add(c, ReasonHighSeverity, nil)
		case len(sel.Selected) == 0:
			add(c, ReasonHighSeverity, nil)
			sel.Warnings = append(sel.Warnings, Warning{
				Level:   LevelWarn,
				Code:    WarnHighSeverityForced,
				Scope:   string(scope),
				Message: fmt.Sprintf("high-severity %s rule %q (~%d tokens) exceeds the %d token budget", scope, c.rule.Title, c.cost, opts.Budget),
			})
		default:
			droppedHigh++
		}
	}
	if droppedHigh > 0 {
		sel.Warnings = append(sel.Warnings, Warning{
			Level:   LevelWarn,
			Code:    WarnHighSeverityDropped,
			Scope:   string(scope),
			Message: fmt.Sprintf("%d high-severity %s rules did not fit the %d token budget", droppedHigh, scope, opts.Budget),
		})
	}

	// Remaining tier.
	var remaining []candidate
	queryTokens := QueryTokens(opts.Query)
	routingMode := ParseRoutingMode(string(opts.Routing.Mode))
	for _, c := range enabled {
		if chosen[c.index] {
			continue
		}
		c.score = Score(scope, c.rule, queryTokens, routingMode, opts.Now)
		remaining = append(remaining, c)
	}

	routingActive := opts.Routing.Enabled && strings.TrimSpace(opts.Query) != ""
	var routed []candidate
	if routingActive {
		for _, c := range remaining {
			if c.score.Final >= opts.Routing.MinScore {
				routed = append(routed, c)
			}
		}
		sortByScore(routed)
		if k := opts.Routing.TopK; k > 0 && len(routed) > k {
			routed = routed[:k]
		}
	}

	ordered := append([]candidate(nil), remaining...)
	mode := ParseSelectionMode(string(opts.Mode))
	switch mode {
	case ModeRecent:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].rule.UpdatedAt.After(ordered[j].rule.UpdatedAt)
		})
	case ModePriorityOnly:
		sort.SliceStable(ordered, func(i, j int) bool {
			pi, pj := model.ClampPriority(ordered[i].rule.Priority), model.ClampPriority(ordered[j].rule.Priority)
			if pi != pj {
				return pi < pj
			}
			return ordered[i].rule.UpdatedAt.After(ordered[j].rule.UpdatedAt)
		})
	default:
		sortByScore(ordered)
	}

	reasons := make(map[int]Reason, len(remaining))
	emit := func(c candidate, reason Reason) {
		if chosen[c.index] || spent+c.cost > opts.Budget {
			return
		}
		score := c.score.Final
		add(c, reason, &score)
		reasons[c.index] = reason
	}
	for _, c := range routed {
		emit(c, RoutedReason(routingMode))
	}
	for _, c := range ordered {
		emit(c, modeReason(mode))
	}

	for _, c := range enabled {
		if !chosen[c.index] {
			sel.Omitted = append(sel.Omitted, c.rule)
			sel.DroppedIDs = append(sel.DroppedIDs, c.rule.ID)
		}
	}
	sel.SpentTokens = spent
	sel.OmittedCount = sel.EnabledCount - len(sel.Selected)
	sel.UsedSummary = opts.SummaryEnabled && sel.EnabledCount >= opts.SummaryMinCount && sel.OmittedCount > 0

	if routingActive {
		debug := &RoutingDebug{Mode: routingMode, Query: opts.Query}
		for _, c := range remaining {
			b := c.score
			if r, ok := reasons[c.index]; ok {
				b.Selected = true
				b.Reason = r
			}
			debug.Scores = append(debug.Scores, b)
		}
		sel.Routing = debug
	}

	return sel
}

// sortByScore orders by final score desc, then UpdatedAt desc; the stable
// sort keeps original order for complete ties.
func sortByScore(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].score.Final != cs[j].score.Final {
			return cs[i].score.Final > cs[j].score.Final
		}
		return cs[i].rule.UpdatedAt.After(cs[j].rule.UpdatedAt)
	})
}

// DefaultOrder sorts rules pinned first, then high severity, then priority
// ascending, then most recently updated. Used for summaries and listings.
func DefaultOrder(rules []model.Rule) []model.Rule {
	out := append([]model.Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		ah, bh := a.Severity == model.SeverityHigh, b.Severity == model.SeverityHigh
		if ah != bh {
			return ah
		}
		if pa, pb := model.ClampPriority(a.Priority), model.ClampPriority(b.Priority); pa != pb {
			return pa < pb
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return out
}
