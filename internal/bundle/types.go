// Package bundle assembles context bundles: the budgeted slice of rules,
// project snapshot and search results an assistant receives for one request.
package bundle

import (
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/config"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/rules"
)

// Mode selects how much a bundle explains about itself.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeDebug   Mode = "debug"
)

// ParseMode normalizes a mode string. Anything but "debug" is the default
// mode.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeDebug {
		return ModeDebug
	}
	return ModeDefault
}

// Request is one bundle request.
type Request struct {
	WorkspaceKey string
	ProjectKey   string
	// UserID enables the user-rules scope and the stored persona preference.
	UserID string
	Query  string
	// Subpath is the caller's current location inside the repository. It
	// feeds the retrieval subpath boost.
	Subpath string
	Mode    Mode
	// Budget is the total token budget. Zero uses the configured default.
	Budget int
}

// Settings is the configuration the orchestrator reads.
type Settings struct {
	DefaultBudget   int
	Split           budget.Percentages
	Rules           rules.Options
	Boosts          retrieval.Boosts
	Personas        persona.Tables
	DebugCandidates int
}

// SettingsFrom extracts orchestrator settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		DefaultBudget:   cfg.Bundle.DefaultBudget,
		Split:           cfg.Bundle.Split,
		Rules:           cfg.RuleOptions(),
		Boosts:          cfg.Retrieval.Boosts,
		Personas:        cfg.PersonaTables(),
		DebugCandidates: cfg.ActiveWork.DebugCandidates,
	}
}

// DefaultSettings returns the settings of config.Default.
func DefaultSettings() Settings {
	return SettingsFrom(config.Default())
}

// ─── Response ───────────────────────────────────────────────────────────────

// Bundle is the assembled response.
type Bundle struct {
	Project   ProjectRef `json:"project"`
	Global    Global     `json:"global"`
	Snapshot  Snapshot   `json:"snapshot"`
	Retrieval Retrieval  `json:"retrieval"`
	Debug     *Debug     `json:"debug,omitempty"`
}

// ProjectRef names the project a bundle was built for.
type ProjectRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Global holds the selected workspace and user rules.
type Global struct {
	WorkspaceRules   []rules.SelectedRule `json:"workspace_rules"`
	UserRules        []rules.SelectedRule `json:"user_rules"`
	WorkspaceSummary string               `json:"workspace_summary,omitempty"`
	UserSummary      string               `json:"user_summary,omitempty"`
	Routing          Routing              `json:"routing"`
	Warnings         []rules.Warning      `json:"warnings"`
}

// Routing summarizes query routing across both rule scopes.
type Routing struct {
	Mode            rules.RoutingMode `json:"mode"`
	QueryUsed       string            `json:"q_used,omitempty"`
	SelectedRuleIDs []string          `json:"selected_rule_ids"`
	DroppedRuleIDs  []string          `json:"dropped_rule_ids"`
	// ScoreBreakdown is only filled in debug mode.
	ScoreBreakdown []rules.ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// Snapshot is the compact picture of the project.
type Snapshot struct {
	Summary        string     `json:"summary"`
	TopDecisions   []Item     `json:"top_decisions"`
	TopConstraints []Item     `json:"top_constraints"`
	ActiveWork     []WorkItem `json:"active_work"`
	RecentActivity []Item     `json:"recent_activity"`
}

// Item is a memory as shown in a snapshot.
type Item struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status,omitempty"`
	Content   string    `json:"content"`
	Subpath   string    `json:"subpath,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkItem is an active-work row as shown in a snapshot.
type WorkItem struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Status         model.WorkStatus `json:"status"`
	Confidence     float64          `json:"confidence"`
	Stale          bool             `json:"stale"`
	StaleReason    string           `json:"stale_reason,omitempty"`
	LastEvidenceAt *time.Time       `json:"last_evidence_at,omitempty"`
}

// Retrieval holds the persona-ranked search results.
type Retrieval struct {
	Query   string             `json:"query,omitempty"`
	Results []retrieval.Result `json:"results"`
}

// Debug explains how a bundle was built.
type Debug struct {
	Boosts      retrieval.Boosts             `json:"boosts"`
	Persona     persona.Recommendation       `json:"persona"`
	TypeWeights map[string]float64           `json:"type_weights"`
	Budget      budget.Breakdown             `json:"budget"`
	Routing     RoutingDebug                 `json:"routing"`
	Candidates  []activework.Candidate       `json:"active_work_candidates"`
	Policy      model.ActiveWorkPolicy       `json:"active_work_policy"`
	Diagnostics []model.ExtractionDiagnostic `json:"decision_extraction"`
}

// RoutingDebug holds the router output of each rule scope.
type RoutingDebug struct {
	Workspace *rules.RoutingDebug `json:"workspace,omitempty"`
	User      *rules.RoutingDebug `json:"user,omitempty"`
}
