package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// SettingsWriter stores workspace settings.
type SettingsWriter interface {
	EnsureWorkspace(ctx context.Context, key, name string) (*model.Workspace, error)
	UpdateWorkspaceSettings(ctx context.Context, workspaceID string, settings model.WorkspaceSettings) error
}

// SettingsCache evicts cached workspaces and reports the policy a workspace
// actually runs with.
type SettingsCache interface {
	Forget(key string)
	Policy(ws *model.Workspace) model.ActiveWorkPolicy
}

// WorkspaceSettingsTool handles the ctx_workspace_settings MCP tool.
type WorkspaceSettingsTool struct {
	settings SettingsWriter
	cache    SettingsCache
}

// NewWorkspaceSettingsTool creates a WorkspaceSettingsTool.
func NewWorkspaceSettingsTool(s SettingsWriter, cache SettingsCache) *WorkspaceSettingsTool {
	return &WorkspaceSettingsTool{settings: s, cache: cache}
}

// Definition returns the MCP tool definition for ctx_workspace_settings.
func (t *WorkspaceSettingsTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_workspace_settings",
		mcp.WithDescription(
			"Show or change a workspace's settings: activity auto-logging (which also enables the nightly "+
				"active-work sweep) and the active-work stale/auto-close policy. Only provided fields change. The response shows the effective policy.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithBoolean("activity_auto_log", mcp.Description("Log commits as activity memories and include the workspace in sweeps")),
		mcp.WithNumber("stale_days", mcp.Description("Days without evidence before active work is marked stale (1-3650)")),
		mcp.WithBoolean("auto_close_enabled", mcp.Description("Close inferred work after auto_close_days without evidence")),
		mcp.WithNumber("auto_close_days", mcp.Description("Days without evidence before inferred work is closed (1-3650)")),
	)
}

// Handle processes the ctx_workspace_settings tool call.
func (t *WorkspaceSettingsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace := strings.TrimSpace(req.GetString("workspace", ""))
	if workspace == "" {
		return mcp.NewToolResultError("'workspace' is required"), nil
	}
	ws, err := t.settings.EnsureWorkspace(ctx, workspace, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve workspace: %v", err)), nil
	}

	// A workspace without its own policy keeps following the configured
	// default until a policy field is set.
	settings := ws.Settings
	policy := t.cache.Policy(ws)
	args := req.GetArguments()
	changed, policyChanged := false, false
	if _, ok := args["activity_auto_log"]; ok {
		settings.ActivityAutoLog = boolArg(req, "activity_auto_log", settings.ActivityAutoLog)
		changed = true
	}
	if _, ok := args["stale_days"]; ok {
		policy.StaleDays = intArg(req, "stale_days", policy.StaleDays)
		policyChanged = true
	}
	if _, ok := args["auto_close_enabled"]; ok {
		policy.AutoCloseEnabled = boolArg(req, "auto_close_enabled", policy.AutoCloseEnabled)
		policyChanged = true
	}
	if _, ok := args["auto_close_days"]; ok {
		policy.AutoCloseDays = intArg(req, "auto_close_days", policy.AutoCloseDays)
		policyChanged = true
	}
	if policyChanged {
		settings.Policy = policy.Normalize()
	}

	if changed || policyChanged {
		if err := t.settings.UpdateWorkspaceSettings(ctx, ws.ID, settings); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to update settings: %v", err)), nil
		}
		t.cache.Forget(ws.Key)
	}

	effective := settings
	effective.Policy = t.cache.Policy(&model.Workspace{Settings: settings})
	return jsonResult(effective), nil
}
