package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/bundle"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Builder assembles context bundles.
type Builder interface {
	Build(ctx context.Context, req bundle.Request) (*bundle.Bundle, error)
}

// BundleTool handles the ctx_bundle MCP tool.
type BundleTool struct {
	builder Builder
}

// NewBundleTool creates a BundleTool.
func NewBundleTool(b Builder) *BundleTool {
	return &BundleTool{builder: b}
}

// Definition returns the MCP tool definition for ctx_bundle.
func (t *BundleTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_bundle",
		mcp.WithDescription(
			"Get the context bundle for a project: the workspace and user rules that apply, a snapshot of "+
				"decisions, constraints, active work and recent activity, and memories relevant to the query. "+
				"Call this at the START of a task and whenever the focus changes.",
		),
		mcp.WithString("workspace",
			mcp.Required(),
			mcp.Description("Workspace key (team or personal space)"),
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project key inside the workspace (usually the repository name)"),
		),
		mcp.WithString("user_id",
			mcp.Description("User id. Enables user-scoped rules and the stored persona preference."),
		),
		mcp.WithString("query",
			mcp.Description("What you are working on. Drives rule routing, memory search and persona choice."),
		),
		mcp.WithString("subpath",
			mcp.Description("Current location in the repository (e.g. 'apps/checkout'). Boosts nearby memories."),
		),
		mcp.WithString("mode",
			mcp.Description("Response mode: default or debug (adds scoring breakdowns and inference candidates)"),
			mcp.Enum("default", "debug"),
		),
		mcp.WithNumber("budget",
			mcp.Description("Total token budget (300-50000, default from configuration)"),
		),
	)
}

// Handle processes the ctx_bundle tool call.
func (t *BundleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}

	b, err := t.builder.Build(ctx, bundle.Request{
		WorkspaceKey: workspace,
		ProjectKey:   project,
		UserID:       req.GetString("user_id", ""),
		Query:        req.GetString("query", ""),
		Subpath:      req.GetString("subpath", ""),
		Mode:         bundle.ParseMode(req.GetString("mode", "")),
		Budget:       intArg(req, "budget", 0),
	})
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown workspace %q or project %q", workspace, project)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build bundle: %v", err)), nil
	}
	return jsonResult(b), nil
}
