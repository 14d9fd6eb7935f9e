// Package rules selects the standing rules shown to an assistant under a
// token budget.
//
// Selection runs in tiers: pinned rules always, then high-severity rules,
// then the remainder ordered by a selection mode, optionally preceded by the
// rules the router scores as most relevant to the current query. The
// Assembler runs the selector once per scope (workspace and user) and falls
// back to a prose summary when too much was left out.
package rules

import (
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/model"
)

// --- Selection mode enum ---

// SelectionMode orders the remaining tier.
type SelectionMode string

const (
	ModeScore        SelectionMode = "score"
	ModeRecent       SelectionMode = "recent"
	ModePriorityOnly SelectionMode = "priority_only"
)

// ParseSelectionMode normalizes a mode string, defaulting to "score".
func ParseSelectionMode(s string) SelectionMode {
	switch SelectionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRecent:
		return ModeRecent
	case ModePriorityOnly:
		return ModePriorityOnly
	default:
		return ModeScore
	}
}

// --- Routing mode enum ---

// RoutingMode picks which relevance components dominate the router score.
type RoutingMode string

const (
	RoutingSemantic RoutingMode = "semantic"
	RoutingKeyword  RoutingMode = "keyword"
	RoutingHybrid   RoutingMode = "hybrid"
)

// ParseRoutingMode normalizes a routing mode, defaulting to "hybrid".
func ParseRoutingMode(s string) RoutingMode {
	switch RoutingMode(strings.ToLower(strings.TrimSpace(s))) {
	case RoutingSemantic:
		return RoutingSemantic
	case RoutingKeyword:
		return RoutingKeyword
	default:
		return RoutingHybrid
	}
}

// --- Selected reason enum ---

// Reason says why a rule made it into a selection.
type Reason string

const (
	ReasonPinned       Reason = "pinned"
	ReasonHighSeverity Reason = "high_severity"
	ReasonScore        Reason = "score"
	ReasonPriority     Reason = "priority"
	ReasonRecent       Reason = "recent"
)

// RoutedReason returns the reason recorded for a routed rule.
func RoutedReason(mode RoutingMode) Reason {
	return Reason("routing_" + string(mode))
}

func modeReason(mode SelectionMode) Reason {
	switch mode {
	case ModeRecent:
		return ReasonRecent
	case ModePriorityOnly:
		return ReasonPriority
	default:
		return ReasonScore
	}
}

// --- Options and results ---

// RoutingConfig controls query-relevance routing.
type RoutingConfig struct {
	Enabled  bool        `json:"enabled" yaml:"enabled"`
	Mode     RoutingMode `json:"mode" yaml:"mode"`
	TopK     int         `json:"top_k" yaml:"top_k"`
	MinScore float64     `json:"min_score" yaml:"min_score"`
}

// Options configures one Select call.
type Options struct {
	Budget          int
	Mode            SelectionMode
	Routing         RoutingConfig
	Query           string
	RecommendMax    int
	WarnThreshold   int
	SummaryEnabled  bool
	SummaryMinCount int
	Now             time.Time
}

// SelectedRule is a rule plus the selection metadata.
type SelectedRule struct {
	model.Rule
	TokenEstimate int      `json:"token_estimate"`
	Reason        Reason   `json:"selected_reason"`
	Score         *float64 `json:"score,omitempty"`
}

// Warning levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// Warning codes.
const (
	WarnCountAboveRecommended = "rule_count_above_recommended"
	WarnCountHigh             = "rule_count_high"
	WarnPinnedOverBudget      = "pinned_over_budget"
	WarnHighSeverityDropped   = "high_severity_dropped"
	WarnHighSeverityForced    = "high_severity_over_budget"
)

// Warning is a non-fatal note about a selection.
type Warning struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Scope   string `json:"scope,omitempty"`
	Message string `json:"message"`
}

// RoutingDebug holds the per-rule score breakdowns of a routed selection.
type RoutingDebug struct {
	Mode   RoutingMode      `json:"mode"`
	Query  string           `json:"q_used"`
	Scores []ScoreBreakdown `json:"score_breakdown"`
}

// Selection is the outcome of Select.
type Selection struct {
	Selected     []SelectedRule `json:"selected"`
	OmittedCount int            `json:"omitted_count"`
	Warnings     []Warning      `json:"warnings"`
	UsedSummary  bool           `json:"used_summary"`
	Routing      *RoutingDebug  `json:"routing,omitempty"`
	EnabledCount int            `json:"enabled_count"`
	SpentTokens  int            `json:"spent_tokens"`
	DroppedIDs   []string       `json:"dropped_ids"`
	// Omitted are the enabled rules that were not selected, in their
	// original order. Used to build summaries.
	Omitted []model.Rule `json:"-"`
}

// SelectedIDs returns the ids of the selected rules in selection order.
func (s Selection) SelectedIDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for _, r := range s.Selected {
		ids = append(ids, r.ID)
	}
	return ids
}

// RuleCost is the token estimate charged for including a rule.
func RuleCost(r model.Rule) int {
	return budget.Estimate(r.Title + "\n" + r.Content)
}
