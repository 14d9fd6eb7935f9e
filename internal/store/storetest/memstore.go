// Package storetest provides an in-memory implementation of store.Store for
// tests of the core packages. It applies filters, limits and orderings the
// same way the SQLite store documents them, and can inject failures per
// operation.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Operation names accepted by FailOn.
const (
	OpListRules          = "ListRules"
	OpRuleSummary        = "RuleSummary"
	OpMarkRulesRouted    = "MarkRulesRouted"
	OpListRawEvents      = "ListRawEvents"
	OpListMemories       = "ListMemories"
	OpListActiveWork     = "ListActiveWork"
	OpCreateActiveWork   = "CreateActiveWork"
	OpUpdateActiveWork   = "UpdateActiveWork"
	OpAppendEvents       = "AppendActiveWorkEvents"
	OpListWorkspaces     = "ListWorkspaces"
	OpListProjects       = "ListProjects"
	OpUserPreference     = "UserPreference"
	OpRecentDiagnostics  = "RecentDiagnostics"
	OpGetWorkspaceByKey  = "GetWorkspaceByKey"
	OpGetProjectByKey    = "GetProjectByKey"
	OpListActiveWorkEvts = "ListActiveWorkEvents"
)

// MemStore is an in-memory store.Store. The zero value is not usable; call
// New.
type MemStore struct {
	mu          sync.Mutex
	rules       []model.Rule
	summaries   []model.RuleSummary
	events      []model.RawEvent
	memories    []model.Memory
	work        []model.ActiveWork
	workEvents  []model.ActiveWorkEvent
	workspaces  []model.Workspace
	projects    []model.Project
	prefs       []model.UserPreference
	diagnostics []model.ExtractionDiagnostic
	failures    map[string]error
	calls       map[string]int
}

var _ store.Store = (*MemStore)(nil)

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{failures: map[string]error{}, calls: map[string]int{}}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *MemStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls reports how many times op was invoked.
func (m *MemStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemStore) enter(op string) error {
	m.calls[op]++
	return m.failures[op]
}

// --- Seeding ---

func (m *MemStore) AddRules(rs ...model.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rs...)
}

func (m *MemStore) AddSummary(s model.RuleSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

func (m *MemStore) AddRawEvents(es ...model.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, es...)
}

func (m *MemStore) AddMemories(ms ...model.Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories = append(m.memories, ms...)
}

func (m *MemStore) AddWorkspace(w model.Workspace, projects ...model.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces = append(m.workspaces, w)
	m.projects = append(m.projects, projects...)
}

func (m *MemStore) SetPreference(p model.UserPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = append(m.prefs, p)
}

func (m *MemStore) AddDiagnostics(ds ...model.ExtractionDiagnostic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnostics = append(m.diagnostics, ds...)
}

// SeedActiveWork inserts rows directly, bypassing CreateActiveWork counters.
func (m *MemStore) SeedActiveWork(ws ...model.ActiveWork) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range ws {
		m.work = append(m.work, cloneWork(w))
	}
}

// Rule returns a stored rule by id.
func (m *MemStore) Rule(id string) (model.Rule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			return r, true
		}
	}
	return model.Rule{}, false
}

// WorkEvents returns all appended lifecycle events in append order.
func (m *MemStore) WorkEvents() []model.ActiveWorkEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActiveWorkEvent(nil), m.workEvents...)
}

// --- RuleStore ---

func (m *MemStore) ListRules(_ context.Context, f store.RuleFilter) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListRules); err != nil {
		return nil, err
	}
	var out []model.Rule
	for _, r := range m.rules {
		if r.WorkspaceID != f.WorkspaceID || r.Scope != f.Scope {
			continue
		}
		if f.Scope == model.ScopeUser && r.UserID != f.UserID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemStore) RuleSummary(_ context.Context, f store.RuleFilter) (*model.RuleSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpRuleSummary); err != nil {
		return nil, err
	}
	for i := len(m.summaries) - 1; i >= 0; i-- {
		s := m.summaries[i]
		if s.WorkspaceID == f.WorkspaceID && s.Scope == f.Scope && (f.Scope != model.ScopeUser || s.UserID == f.UserID) {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemStore) MarkRulesRouted(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpMarkRulesRouted); err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range m.rules {
		if want[m.rules[i].ID] {
			m.rules[i].UsageCount++
			t := at
			m.rules[i].LastRoutedAt = &t
		}
	}
	return nil
}

// --- EventStore ---

func (m *MemStore) ListRawEvents(_ context.Context, f store.EventFilter) ([]model.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListRawEvents); err != nil {
		return nil, err
	}
	types := map[model.EventType]bool{}
	for _, t := range f.Types {
		types[t] = true
	}
	var out []model.RawEvent
	for _, e := range m.events {
		if e.WorkspaceID != f.WorkspaceID || e.ProjectID != f.ProjectID {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if len(types) > 0 && !types[e.Type] {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- MemoryStore ---

func (m *MemStore) ListMemories(_ context.Context, f store.MemoryFilter) ([]model.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListMemories); err != nil {
		return nil, err
	}
	types := toSet(f.Types)
	statuses := toSet(f.Statuses)
	var out []model.Memory
	for _, mem := range m.memories {
		if mem.WorkspaceID != f.WorkspaceID || mem.ProjectID != f.ProjectID {
			continue
		}
		if !f.Since.IsZero() && mem.CreatedAt.Before(f.Since) {
			continue
		}
		if len(types) > 0 && !types[mem.Type] {
			continue
		}
		if len(statuses) > 0 && !statuses[mem.Status] {
			continue
		}
		out = append(out, mem)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- ActiveWorkStore ---

func (m *MemStore) ListActiveWork(_ context.Context, f store.ActiveWorkFilter) ([]model.ActiveWork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListActiveWork); err != nil {
		return nil, err
	}
	statuses := map[model.WorkStatus]bool{}
	for _, s := range f.Statuses {
		statuses[s] = true
	}
	var out []model.ActiveWork
	for _, w := range m.work {
		if w.WorkspaceID != f.WorkspaceID || w.ProjectID != f.ProjectID {
			continue
		}
		if len(statuses) > 0 && !statuses[w.Status] {
			continue
		}
		out = append(out, cloneWork(w))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) GetActiveWork(_ context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.work {
		if w.ID == id && w.WorkspaceID == workspaceID && w.ProjectID == projectID {
			c := cloneWork(w)
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemStore) CreateActiveWork(_ context.Context, w *model.ActiveWork) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreateActiveWork); err != nil {
		return err
	}
	norm := model.NormalizeTitle(w.Title)
	for _, existing := range m.work {
		if existing.WorkspaceID == w.WorkspaceID && existing.ProjectID == w.ProjectID && model.NormalizeTitle(existing.Title) == norm {
			return fmt.Errorf("storetest: duplicate active work title %q: %w", w.Title, store.ErrConflict)
		}
	}
	m.work = append(m.work, cloneWork(*w))
	return nil
}

func (m *MemStore) UpdateActiveWork(_ context.Context, w *model.ActiveWork) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdateActiveWork); err != nil {
		return err
	}
	for i := range m.work {
		if m.work[i].ID == w.ID {
			m.work[i] = cloneWork(*w)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MemStore) AppendActiveWorkEvents(_ context.Context, events ...model.ActiveWorkEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpAppendEvents); err != nil {
		return err
	}
	m.workEvents = append(m.workEvents, events...)
	return nil
}

func (m *MemStore) ListActiveWorkEvents(_ context.Context, activeWorkID string) ([]model.ActiveWorkEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListActiveWorkEvts); err != nil {
		return nil, err
	}
	var out []model.ActiveWorkEvent
	for _, e := range m.workEvents {
		if e.ActiveWorkID == activeWorkID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- WorkspaceStore ---

func (m *MemStore) ListWorkspaces(_ context.Context) ([]model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListWorkspaces); err != nil {
		return nil, err
	}
	return append([]model.Workspace(nil), m.workspaces...), nil
}

func (m *MemStore) GetWorkspaceByKey(_ context.Context, key string) (*model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGetWorkspaceByKey); err != nil {
		return nil, err
	}
	for _, w := range m.workspaces {
		if w.Key == key {
			c := w
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemStore) ListProjects(_ context.Context, workspaceID string) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListProjects); err != nil {
		return nil, err
	}
	var out []model.Project
	for _, p := range m.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) GetProjectByKey(_ context.Context, workspaceID, key string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGetProjectByKey); err != nil {
		return nil, err
	}
	for _, p := range m.projects {
		if p.WorkspaceID == workspaceID && p.Key == key {
			c := p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemStore) UserPreference(_ context.Context, workspaceID, userID string) (*model.UserPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUserPreference); err != nil {
		return nil, err
	}
	for i := len(m.prefs) - 1; i >= 0; i-- {
		p := m.prefs[i]
		if p.WorkspaceID == workspaceID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, nil
}

// --- DiagnosticStore ---

func (m *MemStore) RecentDiagnostics(_ context.Context, workspaceID, projectID string, limit int) ([]model.ExtractionDiagnostic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpRecentDiagnostics); err != nil {
		return nil, err
	}
	var out []model.ExtractionDiagnostic
	for i := len(m.diagnostics) - 1; i >= 0; i-- {
		d := m.diagnostics[i]
		if d.WorkspaceID == workspaceID && d.ProjectID == projectID {
			out = append(out, d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- helpers ---

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func cloneWork(w model.ActiveWork) model.ActiveWork {
	w.EvidenceIDs = append([]string(nil), w.EvidenceIDs...)
	if w.LastEvidenceAt != nil {
		t := *w.LastEvidenceAt
		w.LastEvidenceAt = &t
	}
	if w.ClosedAt != nil {
		t := *w.ClosedAt
		w.ClosedAt = &t
	}
	return w
}
