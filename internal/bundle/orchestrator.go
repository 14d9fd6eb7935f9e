package bundle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/rules"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Snapshot limits.
const (
	maxSummaries        = 3
	maxDecisions        = 5
	maxConstraints      = 5
	maxActivity         = 8
	maxVisibleWork      = 5
	minVisibleWork      = 0.35
	maxDiagnostics      = 5
	itemChars           = 280
	minItemChars        = 40
	maxContextHintChars = 2000
)

// Store is what the orchestrator reads directly.
type Store interface {
	store.MemoryStore
	store.ActiveWorkStore
	store.WorkspaceStore
	store.DiagnosticStore
}

// Orchestrator builds bundles.
type Orchestrator struct {
	store      Store
	directory  *directory.Resolver
	rules      *rules.Assembler
	reconciler *activework.Reconciler
	retriever  retrieval.Retriever
	personas   *persona.Chain
	settings   Settings
	logger     *zap.Logger
	now        func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever sets the search backend. The default finds nothing.
func WithRetriever(r retrieval.Retriever) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.retriever = r
		}
	}
}

// WithPersonaChain replaces the default persona provider chain.
func WithPersonaChain(c *persona.Chain) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.personas = c
		}
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator.
func New(s Store, dir *directory.Resolver, assembler *rules.Assembler, reconciler *activework.Reconciler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      s,
		directory:  dir,
		rules:      assembler,
		reconciler: reconciler,
		retriever:  retrieval.Nop{},
		settings:   DefaultSettings(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.personas == nil {
		o.personas = persona.DefaultChain(persona.NewRecommender(nil), o.logger)
	}
	return o
}

// inputs are the snapshot reads fanned out at the start of a build.
type inputs struct {
	summaries   []model.Memory
	decisions   []model.Memory
	constraints []model.Memory
	activity    []model.Memory
	work        []model.ActiveWork
	preference  *model.UserPreference

	// debug only
	candidates  []activework.Candidate
	diagnostics []model.ExtractionDiagnostic
}

// Build assembles a bundle. Unknown workspace or project keys wrap
// store.ErrNotFound; store and retrieval failures propagate.
func (o *Orchestrator) Build(ctx context.Context, req Request) (*Bundle, error) {
	ws, proj, err := o.directory.Resolve(ctx, req.WorkspaceKey, req.ProjectKey)
	if err != nil {
		return nil, err
	}
	now := o.now()
	debug := ParseMode(string(req.Mode)) == ModeDebug
	query := strings.TrimSpace(req.Query)

	total := req.Budget
	if total <= 0 {
		total = o.settings.DefaultBudget
	}
	split := budget.Partition(budget.ClampTotal(total), o.settings.Split)

	in, err := o.fetch(ctx, ws.ID, proj.ID, req.UserID, now, debug)
	if err != nil {
		return nil, err
	}

	explicit := ""
	if in.preference != nil {
		explicit = in.preference.Persona
	}
	rec := o.personas.Resolve(ctx, persona.Input{
		Explicit:    explicit,
		Query:       query,
		ContextHint: contextHint(in),
	})
	weights := o.settings.Personas.For(rec.Persona)

	var (
		global  *rules.Bundle
		results []retrieval.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := o.rules.Assemble(gctx, rules.AssembleRequest{
			WorkspaceID:  ws.ID,
			UserID:       req.UserID,
			Query:        query,
			TotalBudget:  split.Total,
			WorkspacePct: o.settings.Split.WorkspaceRules,
			UserPct:      o.settings.Split.UserRules,
			MinSlice:     o.settings.Split.Min,
			Options:      o.settings.Rules,
		})
		if err != nil {
			return fmt.Errorf("bundle: rules: %w", err)
		}
		global = b
		return nil
	})
	if query != "" {
		g.Go(func() error {
			found, err := o.retriever.Search(gctx, retrieval.Query{
				WorkspaceID: ws.ID,
				ProjectID:   proj.ID,
				Text:        query,
				Subpath:     req.Subpath,
				Limit:       split.RetrievalLimit,
				Boosts:      o.settings.Boosts,
			})
			if err != nil {
				return fmt.Errorf("bundle: retrieval: %w", err)
			}
			results = persona.Rank(found, weights, debug)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if results == nil {
		results = []retrieval.Result{}
	}

	out := &Bundle{
		Project:   ProjectRef{Key: proj.Key, Name: proj.Name},
		Global:    globalSection(global, debug),
		Snapshot:  snapshotSection(in, split.ProjectSnapshot, debug),
		Retrieval: Retrieval{Query: query, Results: results},
	}
	if debug {
		out.Debug = &Debug{
			Boosts:      o.settings.Boosts,
			Persona:     rec,
			TypeWeights: persona.TypeWeights(results, weights),
			Budget:      split,
			Routing:     RoutingDebug{Workspace: global.Workspace.Routing, User: global.User.Routing},
			Candidates:  in.candidates,
			Policy:      o.directory.Policy(ws),
			Diagnostics: in.diagnostics,
		}
	}

	o.logger.Debug("bundle assembled",
		zap.String("workspace", ws.Key),
		zap.String("project", proj.Key),
		zap.Int("budget", split.Total),
		zap.String("persona", string(rec.Persona)),
		zap.Int("rules", len(global.SelectedRuleIDs)),
		zap.Int("results", len(results)),
		zap.Bool("debug", debug))
	return out, nil
}

// fetch reads the snapshot inputs concurrently.
func (o *Orchestrator) fetch(ctx context.Context, workspaceID, projectID, userID string, now time.Time, debug bool) (*inputs, error) {
	in := &inputs{}
	g, gctx := errgroup.WithContext(ctx)

	memories := func(dst *[]model.Memory, typ, status string, limit int) {
		g.Go(func() error {
			f := store.MemoryFilter{
				WorkspaceID: workspaceID,
				ProjectID:   projectID,
				Types:       []string{typ},
				Limit:       limit,
			}
			if status != "" {
				f.Statuses = []string{status}
			}
			list, err := o.store.ListMemories(gctx, f)
			if err != nil {
				return fmt.Errorf("bundle: %s memories: %w", typ, err)
			}
			*dst = list
			return nil
		})
	}
	memories(&in.summaries, model.MemorySummary, model.MemoryStatusConfirmed, maxSummaries)
	memories(&in.decisions, model.MemoryDecision, model.MemoryStatusConfirmed, maxDecisions)
	memories(&in.constraints, model.MemoryConstraint, "", maxConstraints)
	memories(&in.activity, model.MemoryActivity, "", maxActivity)

	g.Go(func() error {
		rows, err := o.store.ListActiveWork(gctx, store.ActiveWorkFilter{
			WorkspaceID: workspaceID,
			ProjectID:   projectID,
			Statuses:    []model.WorkStatus{model.WorkInferred, model.WorkConfirmed},
		})
		if err != nil {
			return fmt.Errorf("bundle: active work: %w", err)
		}
		in.work = rows
		return nil
	})

	if userID != "" {
		g.Go(func() error {
			pref, err := o.store.UserPreference(gctx, workspaceID, userID)
			if err != nil {
				return fmt.Errorf("bundle: user preference: %w", err)
			}
			in.preference = pref
			return nil
		})
	}

	if debug {
		g.Go(func() error {
			events, mems, err := o.reconciler.Evidence(gctx, workspaceID, projectID, now)
			if err != nil {
				return fmt.Errorf("bundle: candidates: %w", err)
			}
			all := o.reconciler.Inferencer().All(now, events, mems)
			if n := o.settings.DebugCandidates; n > 0 && len(all) > n {
				all = all[:n]
			}
			in.candidates = all
			return nil
		})
		g.Go(func() error {
			diags, err := o.store.RecentDiagnostics(gctx, workspaceID, projectID, maxDiagnostics)
			if err != nil {
				return fmt.Errorf("bundle: diagnostics: %w", err)
			}
			in.diagnostics = diags
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// ─── Sections ───────────────────────────────────────────────────────────────

func globalSection(b *rules.Bundle, debug bool) Global {
	g := Global{
		WorkspaceRules:   nonNil(b.Workspace.Selected),
		UserRules:        nonNil(b.User.Selected),
		WorkspaceSummary: b.Workspace.Summary,
		UserSummary:      b.User.Summary,
		Routing: Routing{
			Mode:            b.RoutingMode,
			QueryUsed:       b.QueryUsed,
			SelectedRuleIDs: nonNil(b.SelectedRuleIDs),
			DroppedRuleIDs:  nonNil(b.DroppedRuleIDs),
		},
		Warnings: nonNil(b.Warnings),
	}
	if debug {
		for _, rd := range []*rules.RoutingDebug{b.Workspace.Routing, b.User.Routing} {
			if rd != nil {
				g.Routing.ScoreBreakdown = append(g.Routing.ScoreBreakdown, rd.Scores...)
			}
		}
	}
	return g
}

// snapshotSection builds the project snapshot inside snapshotBudget tokens.
// The summary takes at most half; decisions, constraints and activity notes
// share the rest in that order. Active work is bounded by row count only.
func snapshotSection(in *inputs, snapshotBudget int, debug bool) Snapshot {
	s := Snapshot{
		Summary:    summaryLine(in, snapshotBudget),
		ActiveWork: []WorkItem{},
	}
	remaining := snapshotBudget - budget.Estimate(s.Summary)
	s.TopDecisions = items(in.decisions, maxDecisions, &remaining)
	s.TopConstraints = items(in.constraints, maxConstraints, &remaining)
	s.RecentActivity = items(in.activity, maxActivity, &remaining)

	rows := append([]model.ActiveWork(nil), in.work...)
	activework.SortRows(rows)
	for _, w := range rows {
		if len(s.ActiveWork) == maxVisibleWork {
			break
		}
		if !debug && w.Confidence < minVisibleWork {
			continue
		}
		s.ActiveWork = append(s.ActiveWork, WorkItem{
			ID:             w.ID,
			Title:          w.Title,
			Status:         w.Status,
			Confidence:     w.Confidence,
			Stale:          w.Stale,
			StaleReason:    w.StaleReason,
			LastEvidenceAt: w.LastEvidenceAt,
		})
	}
	return s
}

// summaryLine is the newest confirmed summary, or a count of what the
// snapshot holds. It gets at most half of the snapshot budget.
func summaryLine(in *inputs, snapshotBudget int) string {
	limit := budget.CharsFor(snapshotBudget / 2)
	for _, m := range in.summaries {
		if text := strings.TrimSpace(m.Content); text != "" {
			return budget.Truncate(text, limit)
		}
	}
	line := fmt.Sprintf("No confirmed summary yet. %d open work item(s), %d decision(s), %d constraint(s), %d recent activity note(s).",
		len(in.work), len(in.decisions), len(in.constraints), len(in.activity))
	return budget.Truncate(line, limit)
}

// items converts up to limit memories, charging each against remaining
// tokens. The item that overflows is shortened when at least minItemChars
// still fit; after that the list stops.
func items(list []model.Memory, limit int, remaining *int) []Item {
	out := make([]Item, 0, min(len(list), limit))
	for _, m := range list {
		if len(out) == limit {
			break
		}
		content := budget.Truncate(strings.TrimSpace(m.Content), itemChars)
		if budget.Estimate(content) > *remaining {
			chars := budget.CharsFor(*remaining)
			if chars < minItemChars {
				break
			}
			content = budget.Truncate(content, chars)
		}
		*remaining -= budget.Estimate(content)
		out = append(out, Item{
			ID:        m.ID,
			Type:      m.Type,
			Status:    m.Status,
			Content:   content,
			Subpath:   m.Metadata.Subpath,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return out
}

// contextHint is the text the persona chain reads when the query carries no
// signal: open work titles, then decisions, constraints and activity.
func contextHint(in *inputs) string {
	var parts []string
	for _, w := range in.work {
		parts = append(parts, w.Title)
	}
	for _, list := range [][]model.Memory{in.decisions, in.constraints, in.activity} {
		for _, m := range list {
			if line := firstLine(m.Content); line != "" {
				parts = append(parts, line)
			}
		}
	}
	return budget.Truncate(strings.Join(parts, "\n"), maxContextHintChars)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
