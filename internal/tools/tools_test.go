package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/bundle"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/rules"
	"github.com/HendryAvila/hoofctx/internal/store"
	"github.com/HendryAvila/hoofctx/internal/store/sqlite"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store      *sqlite.Store
	dir        *directory.Resolver
	reconciler *activework.Reconciler
	builder    *bundle.Orchestrator
	chain      *persona.Chain
}

// newFixture wires the real engine over a temp-dir SQLite store.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "hoofctx.db"), sqlite.WithClock(clock))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	orig := timeNow
	timeNow = clock
	t.Cleanup(func() { timeNow = orig })

	dir := directory.New(s)
	rec := activework.NewReconciler(s, nil, activework.WithClock(clock))
	asm := rules.NewAssembler(s, rules.WithClock(clock))
	chain := persona.DefaultChain(persona.NewRecommender(nil), nil)
	orch := bundle.New(s, dir, asm, rec,
		bundle.WithRetriever(s),
		bundle.WithPersonaChain(chain),
		bundle.WithClock(clock))
	return &fixture{store: s, dir: dir, reconciler: rec, builder: orch, chain: chain}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type handler interface {
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// call runs a tool and fails the test on transport errors or, when wantErr
// is false, on error results.
func call(t *testing.T, h handler, args map[string]interface{}, wantErr bool) string {
	t.Helper()
	res, err := h.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("Handle returned transport error: %v", err)
	}
	if res.IsError != wantErr {
		t.Fatalf("IsError = %v, want %v: %s", res.IsError, wantErr, resultText(res))
	}
	return resultText(res)
}

// decodeJSON parses the JSON body of a result, ignoring the token footer.
func decodeJSON(t *testing.T, text string, v any) {
	t.Helper()
	if i := strings.LastIndex(text, "\n📏"); i >= 0 {
		text = text[:i]
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("invalid JSON response: %v\n%s", err, text)
	}
}

func recordCommits(t *testing.T, f *fixture, files ...string) {
	t.Helper()
	tool := NewEventRecordTool(f.store, f.store)
	for _, file := range files {
		call(t, tool, map[string]interface{}{
			"workspace":      "acme",
			"project":        "web",
			"event_type":     "post_commit",
			"branch":         "feat/foo",
			"commit_message": "touch " + file,
			"changed_files":  []interface{}{file},
		}, false)
	}
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewBundleTool(f.builder).Definition(), "ctx_bundle", []string{"workspace", "project"}},
		{NewRecomputeTool(f.dir, f.reconciler).Definition(), "ctx_active_work_recompute", []string{"workspace", "project"}},
		{NewActiveWorkListTool(f.dir, f.store, f.reconciler).Definition(), "ctx_active_work_list", []string{"workspace", "project"}},
		{NewTransitionTool(f.dir, f.reconciler).Definition(), "ctx_active_work_transition", []string{"workspace", "project", "id", "action"}},
		{NewRuleSaveTool(f.store, f.store).Definition(), "ctx_rule_save", []string{"workspace"}},
		{NewMemorySaveTool(f.store, f.store).Definition(), "ctx_memory_save", []string{"workspace", "project", "type", "content"}},
		{NewEventRecordTool(f.store, f.store).Definition(), "ctx_event_record", []string{"workspace", "project", "event_type"}},
		{NewPersonaTool(f.store, f.store, f.chain).Definition(), "ctx_persona_recommend", []string{"workspace"}},
		{NewMemorySearchTool(f.dir, f.store, retrieval.Boosts{}).Definition(), "ctx_memory_search", []string{"workspace", "project", "query"}},
		{NewMemoryManageTool(f.dir, f.store).Definition(), "ctx_memory_manage", []string{"workspace", "project", "id", "action"}},
		{NewWorkspaceSettingsTool(f.store, f.dir).Definition(), "ctx_workspace_settings", []string{"workspace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
			}
			for _, r := range tt.required {
				found := false
				for _, got := range tt.def.InputSchema.Required {
					if got == r {
						found = true
					}
				}
				if !found {
					t.Errorf("%q should be required, got %v", r, tt.def.InputSchema.Required)
				}
			}
		})
	}
}

// ─── ctx_memory_save + ctx_bundle ────────────────────────────────────────────

func TestMemorySave_ThenBundleShowsDecision(t *testing.T) {
	f := newFixture(t)
	save := NewMemorySaveTool(f.store, f.store)

	text := call(t, save, map[string]interface{}{
		"workspace": "acme",
		"project":   "web",
		"type":      "decision",
		"content":   "Use Postgres for billing data",
		"subpath":   "services/billing",
	}, false)
	if !strings.Contains(text, "Memory saved (decision, confirmed)") {
		t.Errorf("unexpected response: %s", text)
	}
	again := call(t, save, map[string]interface{}{
		"workspace": "acme", "project": "web", "type": "decision", "content": "use postgres   for billing data",
	}, false)
	if !strings.Contains(again, "already stored") {
		t.Errorf("duplicate should be reported: %s", again)
	}

	out := call(t, NewBundleTool(f.builder), map[string]interface{}{
		"workspace": "acme",
		"project":   "web",
		"query":     "billing",
	}, false)
	var b bundle.Bundle
	decodeJSON(t, out, &b)
	if len(b.Snapshot.TopDecisions) != 1 || b.Snapshot.TopDecisions[0].Content != "Use Postgres for billing data" {
		t.Errorf("top decisions = %+v", b.Snapshot.TopDecisions)
	}
	if len(b.Retrieval.Results) != 1 || b.Retrieval.Results[0].Type != model.MemoryDecision {
		t.Errorf("retrieval = %+v, want the billing decision", b.Retrieval.Results)
	}
	if b.Project.Key != "web" {
		t.Errorf("project = %+v", b.Project)
	}
	if !strings.Contains(out, "📏 ~") {
		t.Error("missing token footer")
	}
}

func TestMemorySave_CaptureDecisions(t *testing.T) {
	f := newFixture(t)
	text := call(t, NewMemorySaveTool(f.store, f.store), map[string]interface{}{
		"workspace":         "acme",
		"project":           "web",
		"type":              "summary",
		"content":           "Sprint wrap-up\n\n## Decisions\n1. Ship the checkout redesign behind a flag\n2. Retire the legacy cart endpoint in July\n",
		"capture_decisions": true,
	}, false)
	if !strings.Contains(text, "2 extracted, 2 saved as drafts") {
		t.Errorf("unexpected response: %s", text)
	}

	ws, proj, err := f.dir.Resolve(context.Background(), "acme", "web")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	drafts, err := f.store.ListMemories(context.Background(), store.MemoryFilter{
		WorkspaceID: ws.ID, ProjectID: proj.ID,
		Types: []string{model.MemoryDecision}, Statuses: []string{model.MemoryStatusDraft},
	})
	if err != nil || len(drafts) != 2 {
		t.Errorf("draft decisions = %+v, %v; want 2", drafts, err)
	}
}

func TestMemorySave_Validation(t *testing.T) {
	f := newFixture(t)
	save := NewMemorySaveTool(f.store, f.store)
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing workspace", map[string]interface{}{"project": "web", "type": "note", "content": "x"}, "'workspace' is required"},
		{"missing project", map[string]interface{}{"workspace": "acme", "type": "note", "content": "x"}, "'project' is required"},
		{"bad type", map[string]interface{}{"workspace": "acme", "project": "web", "type": "secret", "content": "x"}, "invalid type"},
		{"empty content", map[string]interface{}{"workspace": "acme", "project": "web", "type": "note", "content": "  "}, "'content' is required"},
		{"bad status", map[string]interface{}{"workspace": "acme", "project": "web", "type": "note", "content": "x", "status": "final"}, "invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if text := call(t, save, tt.args, true); !strings.Contains(text, tt.want) {
				t.Errorf("error = %q, want it to contain %q", text, tt.want)
			}
		})
	}
}

// ─── ctx_bundle ──────────────────────────────────────────────────────────────

func TestBundle_UnknownProject(t *testing.T) {
	f := newFixture(t)
	text := call(t, NewBundleTool(f.builder), map[string]interface{}{"workspace": "nope", "project": "web"}, true)
	if !strings.Contains(text, `unknown workspace "nope"`) {
		t.Errorf("error = %q", text)
	}
}

func TestBundle_DebugModeIncludesCandidates(t *testing.T) {
	f := newFixture(t)
	recordCommits(t, f, "apps/foo/a.ts", "apps/foo/b.ts", "apps/foo/c.ts")

	out := call(t, NewBundleTool(f.builder), map[string]interface{}{
		"workspace": "acme", "project": "web", "mode": "debug", "budget": float64(100),
	}, false)
	var b bundle.Bundle
	decodeJSON(t, out, &b)
	if b.Debug == nil {
		t.Fatal("debug section missing")
	}
	if b.Debug.Budget.Total != 300 {
		t.Errorf("budget total = %d, want clamped 300", b.Debug.Budget.Total)
	}
	found := false
	for _, c := range b.Debug.Candidates {
		if c.Key == "path:apps/foo" {
			found = true
		}
	}
	if !found {
		t.Errorf("candidates = %+v, want path:apps/foo", b.Debug.Candidates)
	}
}

// ─── ctx_event_record ────────────────────────────────────────────────────────

func TestEventRecord_AutoLogFollowsWorkspaceSetting(t *testing.T) {
	f := newFixture(t)
	tool := NewEventRecordTool(f.store, f.store)
	args := map[string]interface{}{
		"workspace":      "acme",
		"project":        "web",
		"event_type":     "post_commit",
		"branch":         "main",
		"commit_message": "Fix cart totals\n\nLonger body",
		"changed_files":  `["apps/cart/total.ts", {"path": "apps/cart/total_test.ts"}]`,
	}

	text := call(t, tool, args, false)
	if !strings.Contains(text, "post_commit (2 file(s))") || strings.Contains(text, "Activity logged") {
		t.Errorf("auto log off: %s", text)
	}

	ws, err := f.store.GetWorkspaceByKey(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetWorkspaceByKey: %v", err)
	}
	settings := ws.Settings
	settings.ActivityAutoLog = true
	if err := f.store.UpdateWorkspaceSettings(context.Background(), ws.ID, settings); err != nil {
		t.Fatalf("UpdateWorkspaceSettings: %v", err)
	}

	text = call(t, tool, args, false)
	if !strings.Contains(text, "Activity logged: Committed on main: Fix cart totals") {
		t.Errorf("auto log on: %s", text)
	}
}

func TestEventRecord_Validation(t *testing.T) {
	f := newFixture(t)
	tool := NewEventRecordTool(f.store, f.store)

	text := call(t, tool, map[string]interface{}{"workspace": "acme", "project": "web", "event_type": "pre_push"}, true)
	if !strings.Contains(text, "invalid event type") {
		t.Errorf("error = %q", text)
	}
	text = call(t, tool, map[string]interface{}{"workspace": "acme", "project": "web", "event_type": "post_merge", "changed_files": "not json"}, true)
	if !strings.Contains(text, "JSON array") {
		t.Errorf("error = %q", text)
	}
}

// ─── Active work tools ───────────────────────────────────────────────────────

func TestActiveWork_RecomputeListTransition(t *testing.T) {
	f := newFixture(t)
	recordCommits(t, f, "apps/foo/a.ts", "apps/foo/b.ts", "apps/foo/c.ts")

	var res activework.Report
	decodeJSON(t, call(t, NewRecomputeTool(f.dir, f.reconciler), map[string]interface{}{"workspace": "acme", "project": "web"}, false), &res)
	if res.WorkspaceKey != "acme" || res.ProjectKey != "web" {
		t.Errorf("report keys = %q/%q, want acme/web", res.WorkspaceKey, res.ProjectKey)
	}
	if res.Result == nil || res.Created != 1 || len(res.Rows) != 1 {
		t.Fatalf("recompute = %+v, want one created row", res)
	}
	id := res.Rows[0].ID

	var confirmed model.ActiveWork
	decodeJSON(t, call(t, NewTransitionTool(f.dir, f.reconciler), map[string]interface{}{
		"workspace": "acme", "project": "web", "id": id, "action": "confirm",
	}, false), &confirmed)
	if confirmed.Status != model.WorkConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}

	var list activeWorkList
	decodeJSON(t, call(t, NewActiveWorkListTool(f.dir, f.store, f.reconciler), map[string]interface{}{
		"workspace": "acme", "project": "web", "id": id,
	}, false), &list)
	if len(list.Rows) != 1 || list.Rows[0].Status != model.WorkConfirmed {
		t.Errorf("rows = %+v", list.Rows)
	}
	if len(list.Events) != 2 || list.Events[1].Type != model.EventConfirmed {
		t.Errorf("events = %+v, want created then confirmed", list.Events)
	}

	call(t, NewTransitionTool(f.dir, f.reconciler), map[string]interface{}{
		"workspace": "acme", "project": "web", "id": id, "action": "close",
	}, false)
	decodeJSON(t, call(t, NewActiveWorkListTool(f.dir, f.store, f.reconciler), map[string]interface{}{
		"workspace": "acme", "project": "web",
	}, false), &list)
	if len(list.Rows) != 0 {
		t.Errorf("closed row listed without include_closed: %+v", list.Rows)
	}
	decodeJSON(t, call(t, NewActiveWorkListTool(f.dir, f.store, f.reconciler), map[string]interface{}{
		"workspace": "acme", "project": "web", "include_closed": true,
	}, false), &list)
	if len(list.Rows) != 1 {
		t.Errorf("include_closed rows = %+v", list.Rows)
	}
}

func TestTransition_Errors(t *testing.T) {
	f := newFixture(t)
	recordCommits(t, f, "apps/foo/a.ts")
	tool := NewTransitionTool(f.dir, f.reconciler)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"bad action", map[string]interface{}{"workspace": "acme", "project": "web", "id": "x", "action": "archive"}, "invalid transition"},
		{"missing id", map[string]interface{}{"workspace": "acme", "project": "web", "action": "close"}, "'id' is required"},
		{"unknown row", map[string]interface{}{"workspace": "acme", "project": "web", "id": "missing", "action": "close"}, `active work "missing" not found`},
		{"unknown project", map[string]interface{}{"workspace": "acme", "project": "api", "id": "x", "action": "close"}, "unknown workspace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if text := call(t, tool, tt.args, true); !strings.Contains(text, tt.want) {
				t.Errorf("error = %q, want it to contain %q", text, tt.want)
			}
		})
	}
}

// ─── ctx_rule_save ───────────────────────────────────────────────────────────

func TestRuleSave_CreateUpdateAndValidate(t *testing.T) {
	f := newFixture(t)
	tool := NewRuleSaveTool(f.store, f.store)

	text := call(t, tool, map[string]interface{}{
		"workspace": "acme",
		"title":     "No secrets in code",
		"content":   "Never commit credentials",
		"category":  "security",
		"severity":  "high",
		"priority":  float64(1),
		"tags":      "security, secrets",
	}, false)
	if !strings.Contains(text, `Rule saved: "No secrets in code" (workspace, priority 1, high)`) {
		t.Fatalf("unexpected response: %s", text)
	}
	id := text[strings.LastIndex(text, "ID: ")+len("ID: "):]

	call(t, tool, map[string]interface{}{"workspace": "acme", "id": id, "enabled": false}, false)
	ws, _ := f.store.GetWorkspaceByKey(context.Background(), "acme")
	got, err := f.store.GetRule(context.Background(), ws.ID, id)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Enabled || got.Title != "No secrets in code" || len(got.Tags) != 2 || got.Severity != model.SeverityHigh {
		t.Errorf("updated rule = %+v, want disabled with other fields kept", got)
	}

	if text := call(t, tool, map[string]interface{}{"workspace": "acme", "title": "Mine", "scope": "user"}, true); !strings.Contains(text, "'user_id' is required") {
		t.Errorf("error = %q", text)
	}
	if text := call(t, tool, map[string]interface{}{"workspace": "acme", "id": "missing", "title": "x"}, true); !strings.Contains(text, "not found") {
		t.Errorf("error = %q", text)
	}
	if text := call(t, tool, map[string]interface{}{"workspace": "acme"}, true); !strings.Contains(text, "'title' is required") {
		t.Errorf("error = %q", text)
	}
}

// ─── ctx_persona_recommend ───────────────────────────────────────────────────

func TestPersona_InferAndStorePreference(t *testing.T) {
	f := newFixture(t)
	tool := NewPersonaTool(f.store, f.store, f.chain)

	var out personaResponse
	decodeJSON(t, call(t, tool, map[string]interface{}{"workspace": "acme", "user_id": "alice", "query": "hello"}, false), &out)
	if out.Recommendation.Persona != persona.Neutral || out.Preference != "" {
		t.Errorf("no signals = %+v, want neutral without preference", out)
	}

	decodeJSON(t, call(t, tool, map[string]interface{}{"workspace": "acme", "user_id": "alice", "set": "reviewer"}, false), &out)
	if out.Recommendation.Persona != persona.Reviewer || out.Recommendation.Source != persona.SourceExplicit || out.Preference != "reviewer" {
		t.Errorf("after set = %+v, want explicit reviewer", out)
	}

	decodeJSON(t, call(t, tool, map[string]interface{}{"workspace": "acme", "user_id": "alice", "set": "none"}, false), &out)
	if out.Preference != "" || out.Recommendation.Source == persona.SourceExplicit {
		t.Errorf("after clear = %+v", out)
	}

	if text := call(t, tool, map[string]interface{}{"workspace": "acme", "set": "author"}, true); !strings.Contains(text, "'user_id' is required") {
		t.Errorf("error = %q", text)
	}
	if text := call(t, tool, map[string]interface{}{"workspace": "acme", "user_id": "alice", "set": "wizard"}, true); !strings.Contains(text, "invalid persona") {
		t.Errorf("error = %q", text)
	}
}

// ─── ctx_memory_search + ctx_memory_manage ───────────────────────────────────

func TestMemorySearch(t *testing.T) {
	f := newFixture(t)
	save := NewMemorySaveTool(f.store, f.store)
	call(t, save, map[string]interface{}{
		"workspace": "acme", "project": "web", "type": "constraint",
		"content": "Invoices must be stored in Postgres", "subpath": "services/billing",
	}, false)
	call(t, save, map[string]interface{}{
		"workspace": "acme", "project": "web", "type": "note", "content": "Frontend uses Vite",
	}, false)

	search := NewMemorySearchTool(f.dir, f.store, retrieval.Boosts{Subpath: 0.5})
	text := call(t, search, map[string]interface{}{
		"workspace": "acme", "project": "web", "query": "postgres invoices", "subpath": "services/billing",
	}, false)
	if !strings.Contains(text, "Found 1 memories") || !strings.Contains(text, "(constraint, score") ||
		!strings.Contains(text, "| services/billing") {
		t.Errorf("unexpected search output:\n%s", text)
	}

	text = call(t, search, map[string]interface{}{"workspace": "acme", "project": "web", "query": "kubernetes"}, false)
	if text != "No memories found matching your query." {
		t.Errorf("empty search = %q", text)
	}

	call(t, search, map[string]interface{}{"workspace": "acme", "project": "web", "query": " "}, true)
	text = call(t, search, map[string]interface{}{"workspace": "acme", "project": "nope", "query": "x"}, true)
	if !strings.Contains(text, `unknown workspace "acme" or project "nope"`) {
		t.Errorf("error = %q", text)
	}
}

func TestMemoryManage_ConfirmDraftReachesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call(t, NewMemorySaveTool(f.store, f.store), map[string]interface{}{
		"workspace":         "acme",
		"project":           "web",
		"type":              "summary",
		"status":            "draft",
		"content":           "Wrap-up\n\n## Decisions\n- Move session storage to Redis clusters\n",
		"capture_decisions": true,
	}, false)

	ws, proj, err := f.dir.Resolve(ctx, "acme", "web")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	drafts, err := f.store.ListMemories(ctx, store.MemoryFilter{
		WorkspaceID: ws.ID, ProjectID: proj.ID, Types: []string{model.MemoryDecision},
	})
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts = %+v, %v; want 1", drafts, err)
	}
	id := drafts[0].ID

	bundleOf := func() bundle.Bundle {
		var b bundle.Bundle
		decodeJSON(t, call(t, NewBundleTool(f.builder), map[string]interface{}{"workspace": "acme", "project": "web"}, false), &b)
		return b
	}
	if got := bundleOf().Snapshot.TopDecisions; len(got) != 0 {
		t.Fatalf("draft decision should not be in the snapshot: %+v", got)
	}

	manage := NewMemoryManageTool(f.dir, f.store)
	args := map[string]interface{}{"workspace": "acme", "project": "web", "id": id, "action": "confirm"}
	if text := call(t, manage, args, false); text != "Memory "+id+" confirmed" {
		t.Errorf("confirm response = %q", text)
	}
	if got := bundleOf().Snapshot.TopDecisions; len(got) != 1 || got[0].Content != "Move session storage to Redis clusters" {
		t.Errorf("top decisions = %+v", got)
	}

	args["action"] = "delete"
	call(t, manage, args, false)
	if got := bundleOf().Snapshot.TopDecisions; len(got) != 0 {
		t.Errorf("deleted decision still in snapshot: %+v", got)
	}
	text := call(t, manage, args, true)
	if !strings.Contains(text, "not found in project") {
		t.Errorf("second delete = %q", text)
	}

	args["action"] = "archive"
	if text := call(t, manage, args, true); !strings.Contains(text, "invalid action") {
		t.Errorf("bad action = %q", text)
	}
}

// ─── ctx_workspace_settings ──────────────────────────────────────────────────

// forgetRecorder records evictions on top of a real resolver.
type forgetRecorder struct {
	*directory.Resolver
	keys []string
}

func (r *forgetRecorder) Forget(key string) {
	r.keys = append(r.keys, key)
	r.Resolver.Forget(key)
}

func TestWorkspaceSettings_PatchAndNormalize(t *testing.T) {
	f := newFixture(t)
	configured := model.ActiveWorkPolicy{StaleDays: 3, AutoCloseEnabled: false, AutoCloseDays: 10}
	forgot := &forgetRecorder{Resolver: directory.New(f.store, directory.WithDefaultPolicy(configured))}
	tool := NewWorkspaceSettingsTool(f.store, forgot)
	ctx := context.Background()

	var got model.WorkspaceSettings
	decodeJSON(t, call(t, tool, map[string]interface{}{"workspace": "acme"}, false), &got)
	if got.ActivityAutoLog || got.Policy != configured {
		t.Errorf("initial settings = %+v, want configured policy %+v", got, configured)
	}
	if len(forgot.keys) != 0 {
		t.Errorf("read-only call evicted %v", forgot.keys)
	}

	// Toggling auto-log alone must not pin the current default.
	decodeJSON(t, call(t, tool, map[string]interface{}{
		"workspace":         "acme",
		"activity_auto_log": true,
	}, false), &got)
	if !got.ActivityAutoLog || got.Policy != configured {
		t.Errorf("after auto-log = %+v, want configured policy %+v", got, configured)
	}
	ws, err := f.store.GetWorkspaceByKey(ctx, "acme")
	if err != nil {
		t.Fatalf("GetWorkspaceByKey: %v", err)
	}
	if ws.Settings.Policy != (model.ActiveWorkPolicy{}) {
		t.Errorf("stored policy = %+v, want unset", ws.Settings.Policy)
	}

	decodeJSON(t, call(t, tool, map[string]interface{}{
		"workspace":       "acme",
		"auto_close_days": float64(99999),
	}, false), &got)
	want := model.WorkspaceSettings{
		ActivityAutoLog: true,
		Policy: model.ActiveWorkPolicy{
			StaleDays:        3,
			AutoCloseEnabled: false,
			AutoCloseDays:    3650,
		},
	}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
	if strings.Join(forgot.keys, ",") != "acme,acme" {
		t.Errorf("forgotten keys = %v, want [acme acme]", forgot.keys)
	}

	ws, err = f.store.GetWorkspaceByKey(ctx, "acme")
	if err != nil {
		t.Fatalf("GetWorkspaceByKey: %v", err)
	}
	if ws.Settings != want {
		t.Errorf("stored settings = %+v, want %+v", ws.Settings, want)
	}

	call(t, tool, map[string]interface{}{"workspace": " "}, true)
}
