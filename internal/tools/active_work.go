package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

func resolveError(err error, workspace, project string) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown workspace %q or project %q", workspace, project))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to resolve project: %v", err))
}

// ─── RecomputeTool ──────────────────────────────────────────────────────────

// RecomputeTool handles the ctx_active_work_recompute MCP tool.
type RecomputeTool struct {
	dir        *directory.Resolver
	reconciler *activework.Reconciler
}

// NewRecomputeTool creates a RecomputeTool.
func NewRecomputeTool(dir *directory.Resolver, r *activework.Reconciler) *RecomputeTool {
	return &RecomputeTool{dir: dir, reconciler: r}
}

// Definition returns the MCP tool definition for ctx_active_work_recompute.
func (t *RecomputeTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_active_work_recompute",
		mcp.WithDescription(
			"Re-infer a project's active work from the last 14 days of commits, merges, checkouts and notes. "+
				"Creates, refreshes, marks stale and auto-closes rows according to the workspace policy.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
	)
}

// Handle processes the ctx_active_work_recompute tool call.
func (t *RecomputeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	ws, proj, err := t.dir.Resolve(ctx, workspace, project)
	if err != nil {
		return resolveError(err, workspace, project), nil
	}

	res, err := t.reconciler.Recompute(ctx, ws.ID, proj.ID, timeNow(), t.dir.Policy(ws))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to recompute active work: %v", err)), nil
	}
	return jsonResult(activework.Report{WorkspaceKey: ws.Key, ProjectKey: proj.Key, Result: res}), nil
}

// ─── ListTool ───────────────────────────────────────────────────────────────

// ActiveWorkListTool handles the ctx_active_work_list MCP tool.
type ActiveWorkListTool struct {
	dir        *directory.Resolver
	store      store.ActiveWorkStore
	reconciler *activework.Reconciler
}

// NewActiveWorkListTool creates an ActiveWorkListTool.
func NewActiveWorkListTool(dir *directory.Resolver, s store.ActiveWorkStore, r *activework.Reconciler) *ActiveWorkListTool {
	return &ActiveWorkListTool{dir: dir, store: s, reconciler: r}
}

// Definition returns the MCP tool definition for ctx_active_work_list.
func (t *ActiveWorkListTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_active_work_list",
		mcp.WithDescription(
			"List a project's stored active-work rows, confirmed first. Pass 'id' to include one row's lifecycle history.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithBoolean("include_closed", mcp.Description("Include closed rows (default: false)")),
		mcp.WithString("id", mcp.Description("Row id whose lifecycle events should be included")),
	)
}

type activeWorkList struct {
	Rows   []model.ActiveWork      `json:"active_work"`
	Events []model.ActiveWorkEvent `json:"events,omitempty"`
}

// Handle processes the ctx_active_work_list tool call.
func (t *ActiveWorkListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	ws, proj, err := t.dir.Resolve(ctx, workspace, project)
	if err != nil {
		return resolveError(err, workspace, project), nil
	}

	f := store.ActiveWorkFilter{WorkspaceID: ws.ID, ProjectID: proj.ID}
	if !boolArg(req, "include_closed", false) {
		f.Statuses = []model.WorkStatus{model.WorkConfirmed, model.WorkInferred}
	}
	rows, err := t.store.ListActiveWork(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list active work: %v", err)), nil
	}
	activework.SortRows(rows)
	out := activeWorkList{Rows: rows}
	if out.Rows == nil {
		out.Rows = []model.ActiveWork{}
	}

	if id := req.GetString("id", ""); id != "" {
		if _, err := t.store.GetActiveWork(ctx, ws.ID, proj.ID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("active work %q not found in project %q", id, project)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to load active work: %v", err)), nil
		}
		if out.Events, err = t.reconciler.Events(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
		}
	}
	return jsonResult(out), nil
}

// ─── TransitionTool ─────────────────────────────────────────────────────────

// TransitionTool handles the ctx_active_work_transition MCP tool.
type TransitionTool struct {
	dir        *directory.Resolver
	reconciler *activework.Reconciler
}

// NewTransitionTool creates a TransitionTool.
func NewTransitionTool(dir *directory.Resolver, r *activework.Reconciler) *TransitionTool {
	return &TransitionTool{dir: dir, reconciler: r}
}

// Definition returns the MCP tool definition for ctx_active_work_transition.
func (t *TransitionTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_active_work_transition",
		mcp.WithDescription(
			"Confirm, close or reopen an active-work row. Confirmed rows are never auto-closed; "+
				"closed rows come back only with newer evidence or an explicit reopen.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Active-work row id")),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Transition to apply"),
			mcp.Enum("confirm", "close", "reopen"),
		),
	)
}

// Handle processes the ctx_active_work_transition tool call.
func (t *TransitionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	action, err := activework.ParseTransition(req.GetString("action", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ws, proj, err := t.dir.Resolve(ctx, workspace, project)
	if err != nil {
		return resolveError(err, workspace, project), nil
	}

	row, err := t.reconciler.Apply(ctx, ws.ID, proj.ID, id, action)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("active work %q not found in project %q", id, project)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s active work: %v", action, err)), nil
	}
	return jsonResult(row), nil
}
