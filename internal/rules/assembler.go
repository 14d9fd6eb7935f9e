package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
	"go.uber.org/zap"
)

// Assembler builds the global-rules part of a bundle: one selection for
// workspace rules and one for the requesting user's rules, each against its
// own slice of the budget.
type Assembler struct {
	store  store.RuleStore
	logger *zap.Logger
	now    func() time.Time
}

// AssemblerOption customizes an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets the logger used for best-effort bookkeeping failures.
func WithLogger(l *zap.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAssembler creates an Assembler reading rules from s.
func NewAssembler(s store.RuleStore, opts ...AssemblerOption) *Assembler {
	a := &Assembler{store: s, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssembleRequest describes one global-rules assembly.
type AssembleRequest struct {
	WorkspaceID string
	UserID      string
	Query       string
	TotalBudget int
	// WorkspacePct and UserPct are percentages of TotalBudget; each slice is
	// floored at MinSlice tokens.
	WorkspacePct float64
	UserPct      float64
	MinSlice     int
	// Options carries mode, routing and threshold settings; Budget, Query
	// and Now are filled in per scope.
	Options Options
}

// ScopeBundle is the selection for one scope plus its optional summary.
type ScopeBundle struct {
	Selection
	Budget        int    `json:"budget"`
	Summary       string `json:"summary,omitempty"`
	SummarySource string `json:"summary_source,omitempty"`
}

// Bundle is the assembled global rules.
type Bundle struct {
	Workspace       ScopeBundle `json:"workspace"`
	User            ScopeBundle `json:"user"`
	SelectedRuleIDs []string    `json:"selected_rule_ids"`
	DroppedRuleIDs  []string    `json:"dropped_rule_ids"`
	Warnings        []Warning   `json:"warnings"`
	RoutingMode     RoutingMode `json:"routing_mode"`
	QueryUsed       string      `json:"q_used,omitempty"`
	Routed          bool        `json:"routed"`
}

// Assemble selects workspace and user rules. Store read failures propagate;
// usage bookkeeping failures are logged and ignored.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Bundle, error) {
	now := a.now()
	query := strings.TrimSpace(req.Query)

	wsBudget := budget.Slice(req.TotalBudget, req.WorkspacePct, req.MinSlice)
	userBudget := budget.Slice(req.TotalBudget, req.UserPct, req.MinSlice)

	ws, err := a.assembleScope(ctx, store.RuleFilter{WorkspaceID: req.WorkspaceID, Scope: model.ScopeWorkspace}, wsBudget, query, now, req.Options)
	if err != nil {
		return nil, err
	}

	var user ScopeBundle
	if req.UserID != "" {
		u, err := a.assembleScope(ctx, store.RuleFilter{WorkspaceID: req.WorkspaceID, Scope: model.ScopeUser, UserID: req.UserID}, userBudget, query, now, req.Options)
		if err != nil {
			return nil, err
		}
		user = *u
	} else {
		user = ScopeBundle{Budget: userBudget}
	}

	out := &Bundle{
		Workspace:   *ws,
		User:        user,
		RoutingMode: ParseRoutingMode(string(req.Options.Routing.Mode)),
	}
	out.SelectedRuleIDs = append(ws.SelectedIDs(), user.SelectedIDs()...)
	out.DroppedRuleIDs = append(append([]string{}, ws.DroppedIDs...), user.DroppedIDs...)
	out.Warnings = append(append([]Warning{}, ws.Warnings...), user.Warnings...)

	if req.Options.Routing.Enabled && query != "" {
		out.Routed = true
		out.QueryUsed = query
		if len(out.SelectedRuleIDs) > 0 {
			if err := a.store.MarkRulesRouted(ctx, out.SelectedRuleIDs, now); err != nil {
				a.logger.Warn("rule usage bookkeeping failed",
					zap.String("workspace_id", req.WorkspaceID),
					zap.Int("rules", len(out.SelectedRuleIDs)),
					zap.Error(err))
			}
		}
	}
	return out, nil
}

func (a *Assembler) assembleScope(ctx context.Context, f store.RuleFilter, scopeBudget int, query string, now time.Time, base Options) (*ScopeBundle, error) {
	list, err := a.store.ListRules(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing %s rules: %w", f.Scope, err)
	}

	opts := base
	opts.Budget = scopeBudget
	opts.Query = query
	opts.Now = now
	sel := Select(f.Scope, list, opts)

	sb := &ScopeBundle{Selection: sel, Budget: scopeBudget}
	if !sel.UsedSummary {
		return sb, nil
	}

	persisted, err := a.store.RuleSummary(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s rule summary: %w", f.Scope, err)
	}
	if persisted != nil && strings.TrimSpace(persisted.Content) != "" && !persisted.UpdatedAt.Before(newestUpdate(list)) {
		sb.Summary = persisted.Content
		sb.SummarySource = SummaryPersisted
		return sb, nil
	}
	sb.Summary = GenerateSummary(sel.Omitted, scopeBudget)
	sb.SummarySource = SummaryGenerated
	return sb, nil
}

func newestUpdate(list []model.Rule) time.Time {
	var newest time.Time
	for _, r := range list {
		if r.Enabled && r.UpdatedAt.After(newest) {
			newest = r.UpdatedAt
		}
	}
	return newest
}
