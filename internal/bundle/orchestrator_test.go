package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/rules"
	"github.com/HendryAvila/hoofctx/internal/store"
	"github.com/HendryAvila/hoofctx/internal/store/storetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type stubRetriever struct {
	results []retrieval.Result
	err     error
	calls   []retrieval.Query
}

func (s *stubRetriever) Search(_ context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	s.calls = append(s.calls, q)
	return s.results, s.err
}

func score(v float64) *float64 { return &v }

func ago(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour) }

func memory(id, typ, status, content string, updated time.Time) model.Memory {
	return model.Memory{ID: id, WorkspaceID: "ws", ProjectID: "p", Type: typ, Status: status, Content: content, CreatedAt: updated, UpdatedAt: updated}
}

func seed(t *testing.T) *storetest.MemStore {
	t.Helper()
	s := storetest.New()
	s.AddWorkspace(
		model.Workspace{ID: "ws", Key: "acme", Name: "Acme"},
		model.Project{ID: "p", WorkspaceID: "ws", Key: "web", Name: "Web app"},
	)
	s.AddRules(
		model.Rule{ID: "r1", WorkspaceID: "ws", Scope: model.ScopeWorkspace, Title: "Secrets", Content: "Never commit secrets.", Category: model.CategorySecurity, Priority: 1, Severity: model.SeverityHigh, Pinned: true, Enabled: true, UpdatedAt: ago(24)},
		model.Rule{ID: "r2", WorkspaceID: "ws", Scope: model.ScopeWorkspace, Title: "Lint", Content: "Run the linter before pushing.", Category: model.CategoryStyle, Priority: 3, Severity: model.SeverityLow, Enabled: true, UpdatedAt: ago(48)},
		model.Rule{ID: "u1", WorkspaceID: "ws", Scope: model.ScopeUser, UserID: "alice", Title: "Tone", Content: "Keep answers short.", Category: model.CategoryOther, Priority: 2, Severity: model.SeverityLow, Enabled: true, UpdatedAt: ago(48)},
	)
	s.AddMemories(
		memory("s-old", model.MemorySummary, model.MemoryStatusConfirmed, "Old summary.", ago(72)),
		memory("s-new", model.MemorySummary, model.MemoryStatusConfirmed, "Checkout rewrite in progress.", ago(2)),
		memory("s-draft", model.MemorySummary, model.MemoryStatusDraft, "Draft summary.", ago(1)),
		memory("d-draft", model.MemoryDecision, model.MemoryStatusDraft, "Maybe drop Redis", ago(1)),
		memory("c1", model.MemoryConstraint, "", "Must support IE11", ago(10)),
	)
	for i := range 7 {
		s.AddMemories(memory(fmt.Sprintf("d%d", i), model.MemoryDecision, model.MemoryStatusConfirmed, fmt.Sprintf("Decision %d", i), ago(10+i)))
	}
	for i := range 10 {
		s.AddMemories(memory(fmt.Sprintf("a%d", i), model.MemoryActivity, "", fmt.Sprintf("Touched module %d", i), ago(3+i)))
	}
	last := ago(5)
	s.SeedActiveWork(
		model.ActiveWork{ID: "w-high", WorkspaceID: "ws", ProjectID: "p", Title: "Work on apps/checkout", Status: model.WorkInferred, Confidence: 0.8, LastEvidenceAt: &last, LastUpdatedAt: last, CreatedAt: last},
		model.ActiveWork{ID: "w-low", WorkspaceID: "ws", ProjectID: "p", Title: "Work on docs", Status: model.WorkInferred, Confidence: 0.2, LastEvidenceAt: &last, LastUpdatedAt: last, CreatedAt: last},
		model.ActiveWork{ID: "w-closed", WorkspaceID: "ws", ProjectID: "p", Title: "Work on legacy", Status: model.WorkClosed, Confidence: 0.9, LastUpdatedAt: last, CreatedAt: last},
	)
	for i := range 4 {
		s.AddRawEvents(model.RawEvent{ID: fmt.Sprintf("e%d", i), WorkspaceID: "ws", ProjectID: "p", Type: model.EventPostCommit, ChangedFiles: []string{"apps/checkout/cart.ts"}, CreatedAt: ago(i)})
	}
	for i := range 7 {
		s.AddDiagnostics(model.ExtractionDiagnostic{ID: int64(i + 1), WorkspaceID: "ws", ProjectID: "p", Source: "memory", CreatedAt: ago(10 - i)})
	}
	return s
}

func newOrchestrator(t *testing.T, s *storetest.MemStore, opts ...Option) *Orchestrator {
	t.Helper()
	clock := func() time.Time { return now }
	dir := directory.New(s)
	assembler := rules.NewAssembler(s, rules.WithClock(clock))
	reconciler := activework.NewReconciler(s, activework.NewInferencer(nil), activework.WithClock(clock))
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(s, dir, assembler, reconciler, opts...)
}

func TestBuild_DefaultMode(t *testing.T) {
	s := seed(t)
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, ProjectRef{Key: "web", Name: "Web app"}, b.Project)
	assert.Nil(t, b.Debug)

	assert.Equal(t, "Checkout rewrite in progress.", b.Snapshot.Summary)
	require.Len(t, b.Snapshot.TopDecisions, 5)
	assert.Equal(t, "d0", b.Snapshot.TopDecisions[0].ID)
	for _, d := range b.Snapshot.TopDecisions {
		assert.Equal(t, model.MemoryStatusConfirmed, d.Status)
	}
	require.Len(t, b.Snapshot.TopConstraints, 1)
	assert.Len(t, b.Snapshot.RecentActivity, 8)

	require.Len(t, b.Snapshot.ActiveWork, 1)
	assert.Equal(t, "w-high", b.Snapshot.ActiveWork[0].ID)

	assert.Equal(t, []string{"r1", "r2", "u1"}, b.Global.Routing.SelectedRuleIDs)
	assert.Len(t, b.Global.WorkspaceRules, 2)
	assert.Len(t, b.Global.UserRules, 1)
	assert.Empty(t, b.Global.Routing.QueryUsed)
	assert.Nil(t, b.Global.Routing.ScoreBreakdown)

	assert.Empty(t, b.Retrieval.Query)
	assert.NotNil(t, b.Retrieval.Results)
	assert.Empty(t, b.Retrieval.Results)
}

func TestBuild_NoUserSkipsUserRulesAndPreference(t *testing.T) {
	s := seed(t)
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web"})
	require.NoError(t, err)

	assert.Empty(t, b.Global.UserRules)
	assert.NotNil(t, b.Global.UserRules)
	assert.Equal(t, 0, s.Calls(storetest.OpUserPreference))
}

func TestBuild_DebugMode(t *testing.T) {
	s := seed(t)
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", Mode: ModeDebug, Budget: 2000})
	require.NoError(t, err)
	require.NotNil(t, b.Debug)

	// Low-confidence rows are visible in debug; closed rows never are.
	ids := []string{}
	for _, w := range b.Snapshot.ActiveWork {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"w-high", "w-low"}, ids)

	assert.Equal(t, budget.Partition(2000, budget.DefaultPercentages()), b.Debug.Budget)
	assert.Equal(t, model.DefaultActiveWorkPolicy(), b.Debug.Policy)
	assert.Len(t, b.Debug.Diagnostics, 5)
	assert.Equal(t, int64(7), b.Debug.Diagnostics[0].ID)
	assert.Equal(t, persona.Neutral, b.Debug.Persona.Persona)

	// Candidates come from a fresh inference capped at the configured count.
	assert.Len(t, b.Debug.Candidates, DefaultSettings().DebugCandidates)
	keys := map[string]bool{}
	for _, c := range b.Debug.Candidates {
		keys[c.Key] = true
	}
	assert.True(t, keys["path:apps/checkout"], "candidates = %v", keys)

	// Debug inference is read-only.
	assert.Equal(t, 0, s.Calls(storetest.OpCreateActiveWork))
	assert.Equal(t, 0, s.Calls(storetest.OpUpdateActiveWork))
}

func TestBuild_QueryRunsRetrievalWithPersona(t *testing.T) {
	s := seed(t)
	r := &stubRetriever{results: []retrieval.Result{
		{ID: "m1", Type: model.MemoryActivity, Score: score(0.5)},
		{ID: "m2", Type: model.MemoryConstraint, Score: score(0.4)},
	}}
	o := newOrchestrator(t, s, WithRetriever(r))

	b, err := o.Build(context.Background(), Request{
		WorkspaceKey: "acme",
		ProjectKey:   "web",
		Query:        "  audit the security review  ",
		Subpath:      "apps/checkout",
		Mode:         ModeDebug,
	})
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	q := r.calls[0]
	assert.Equal(t, "audit the security review", q.Text)
	assert.Equal(t, "apps/checkout", q.Subpath)
	assert.Equal(t, budget.Partition(4000, budget.DefaultPercentages()).RetrievalLimit, q.Limit)
	assert.Equal(t, "p", q.ProjectID)

	assert.Equal(t, persona.Reviewer, b.Debug.Persona.Persona)
	assert.Equal(t, persona.SourceQuery, b.Debug.Persona.Source)
	require.Len(t, b.Retrieval.Results, 2)
	assert.Equal(t, "m2", b.Retrieval.Results[0].ID)
	assert.InDelta(t, 0.6, *b.Retrieval.Results[0].Score, 1e-9)
	require.NotNil(t, b.Retrieval.Results[0].Persona)
	assert.Equal(t, map[string]float64{model.MemoryActivity: 0.9, model.MemoryConstraint: 1.5}, b.Debug.TypeWeights)
	assert.Equal(t, "audit the security review", b.Retrieval.Query)
	assert.Equal(t, "audit the security review", b.Global.Routing.QueryUsed)
	assert.NotEmpty(t, b.Global.Routing.ScoreBreakdown)
}

func TestBuild_ExplicitPreferenceWins(t *testing.T) {
	s := seed(t)
	s.SetPreference(model.UserPreference{WorkspaceID: "ws", UserID: "alice", Persona: "architect"})
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", UserID: "alice", Query: "fix the bug", Mode: ModeDebug})
	require.NoError(t, err)
	assert.Equal(t, persona.Architect, b.Debug.Persona.Persona)
	assert.Equal(t, persona.SourceExplicit, b.Debug.Persona.Source)
}

func TestBuild_BudgetClamped(t *testing.T) {
	s := seed(t)
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", Mode: ModeDebug, Budget: 10})
	require.NoError(t, err)
	assert.Equal(t, budget.MinTotal, b.Debug.Budget.Total)

	b, err = o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", Mode: ModeDebug, Budget: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, budget.MaxTotal, b.Debug.Budget.Total)
}

func TestBuild_SynthesizedSummary(t *testing.T) {
	s := storetest.New()
	s.AddWorkspace(model.Workspace{ID: "ws", Key: "acme"}, model.Project{ID: "p", WorkspaceID: "ws", Key: "web"})
	s.AddMemories(memory("d1", model.MemoryDecision, model.MemoryStatusConfirmed, "Use Postgres", ago(1)))
	o := newOrchestrator(t, s)

	b, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web"})
	require.NoError(t, err)
	assert.Equal(t, "No confirmed summary yet. 0 open work item(s), 1 decision(s), 0 constraint(s), 0 recent activity note(s).", b.Snapshot.Summary)
	assert.NotNil(t, b.Snapshot.ActiveWork)
	assert.NotNil(t, b.Global.Warnings)
}

func TestBuild_Errors(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("unknown project", func(t *testing.T) {
		o := newOrchestrator(t, seed(t))
		_, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "nope"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	for _, op := range []string{storetest.OpListMemories, storetest.OpListActiveWork, storetest.OpListRules, storetest.OpUserPreference} {
		t.Run(op, func(t *testing.T) {
			s := seed(t)
			s.FailOn(op, boom)
			o := newOrchestrator(t, s)
			_, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", UserID: "alice"})
			assert.ErrorIs(t, err, boom)
		})
	}

	t.Run("retrieval", func(t *testing.T) {
		o := newOrchestrator(t, seed(t), WithRetriever(&stubRetriever{err: boom}))
		_, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", Query: "anything"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("debug diagnostics", func(t *testing.T) {
		s := seed(t)
		s.FailOn(storetest.OpRecentDiagnostics, boom)
		o := newOrchestrator(t, s)
		_, err := o.Build(context.Background(), Request{WorkspaceKey: "acme", ProjectKey: "web", Mode: ModeDebug})
		assert.ErrorIs(t, err, boom)
	})
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeDebug, ParseMode(" DEBUG "))
	assert.Equal(t, ModeDefault, ParseMode(""))
	assert.Equal(t, ModeDefault, ParseMode("verbose"))
}

func TestSnapshotSection_ItemsShareSnapshotBudget(t *testing.T) {
	long := func(prefix string, n int) []model.Memory {
		out := make([]model.Memory, n)
		for i := range out {
			out[i] = model.Memory{ID: fmt.Sprintf("%s%d", prefix, i), Content: strings.Repeat("word ", 56)}
		}
		return out
	}
	in := &inputs{
		summaries:   []model.Memory{{ID: "s", Content: "Short summary."}},
		decisions:   long("d", 5),
		constraints: long("c", 5),
		activity:    long("a", 8),
	}
	const snapshotBudget = 200

	s := snapshotSection(in, snapshotBudget, false)

	used := budget.Estimate(s.Summary)
	for _, list := range [][]Item{s.TopDecisions, s.TopConstraints, s.RecentActivity} {
		for _, it := range list {
			used += budget.Estimate(it.Content)
		}
	}
	assert.LessOrEqual(t, used, snapshotBudget)
	require.NotEmpty(t, s.TopDecisions, "decisions come first")
	assert.Equal(t, "d0", s.TopDecisions[0].ID)
	assert.Less(t, len(s.TopDecisions)+len(s.TopConstraints)+len(s.RecentActivity), 18)

	roomy := snapshotSection(in, 50000, false)
	assert.Len(t, roomy.TopDecisions, 5)
	assert.Len(t, roomy.TopConstraints, 5)
	assert.Len(t, roomy.RecentActivity, 8)
}
