package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// RuleWriter stores rules.
type RuleWriter interface {
	GetRule(ctx context.Context, workspaceID, id string) (*model.Rule, error)
	SaveRule(ctx context.Context, r *model.Rule) error
}

// RuleSaveTool handles the ctx_rule_save MCP tool.
type RuleSaveTool struct {
	dir   Directory
	rules RuleWriter
}

// NewRuleSaveTool creates a RuleSaveTool.
func NewRuleSaveTool(dir Directory, rules RuleWriter) *RuleSaveTool {
	return &RuleSaveTool{dir: dir, rules: rules}
}

// Definition returns the MCP tool definition for ctx_rule_save.
func (t *RuleSaveTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_rule_save",
		mcp.WithDescription(
			"Create or update a standing rule. Workspace rules apply to everyone in the workspace; "+
				"user rules apply to one user. Pass 'id' to update an existing rule; omitted fields keep their values.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("scope",
			mcp.Description("Who the rule applies to (default: workspace)"),
			mcp.Enum("workspace", "user"),
		),
		mcp.WithString("user_id", mcp.Description("User id, required for user-scoped rules")),
		mcp.WithString("id", mcp.Description("Existing rule id to update")),
		mcp.WithString("title", mcp.Description("Short title (required for new rules)")),
		mcp.WithString("content", mcp.Description("The rule itself")),
		mcp.WithString("category",
			mcp.Description("Grouping for summaries (default: other)"),
			mcp.Enum("policy", "security", "style", "process", "other"),
		),
		mcp.WithNumber("priority", mcp.Description("1 (highest) to 5 (default: 3)")),
		mcp.WithString("severity",
			mcp.Description("Impact level (default: medium). High-severity rules are always considered first."),
			mcp.Enum("low", "medium", "high"),
		),
		mcp.WithBoolean("pinned", mcp.Description("Always include this rule (default: false)")),
		mcp.WithBoolean("enabled", mcp.Description("Whether the rule is active (default: true)")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags used for routing (e.g. 'go,testing')")),
	)
}

// Handle processes the ctx_rule_save tool call.
func (t *RuleSaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace := strings.TrimSpace(req.GetString("workspace", ""))
	if workspace == "" {
		return mcp.NewToolResultError("'workspace' is required"), nil
	}
	ws, err := t.dir.EnsureWorkspace(ctx, workspace, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve workspace: %v", err)), nil
	}

	r := &model.Rule{WorkspaceID: ws.ID, Scope: model.ScopeWorkspace, Priority: 3, Enabled: true}
	if id := req.GetString("id", ""); id != "" {
		existing, err := t.rules.GetRule(ctx, ws.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("rule %q not found in workspace %q", id, workspace)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load rule: %v", err)), nil
		}
		r = existing
	}

	args := req.GetArguments()
	if _, ok := args["scope"]; ok {
		scope, err := model.ParseScope(req.GetString("scope", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		r.Scope = scope
	}
	if _, ok := args["user_id"]; ok {
		r.UserID = req.GetString("user_id", "")
	}
	if _, ok := args["title"]; ok {
		r.Title = req.GetString("title", "")
	}
	if _, ok := args["content"]; ok {
		r.Content = req.GetString("content", "")
	}
	if _, ok := args["category"]; ok {
		r.Category = model.Category(req.GetString("category", ""))
	}
	if _, ok := args["severity"]; ok {
		r.Severity = model.Severity(req.GetString("severity", ""))
	}
	r.Priority = intArg(req, "priority", r.Priority)
	r.Pinned = boolArg(req, "pinned", r.Pinned)
	r.Enabled = boolArg(req, "enabled", r.Enabled)
	if _, ok := args["tags"]; ok {
		r.Tags = listArg(req, "tags")
	}

	if strings.TrimSpace(r.Title) == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	if r.Scope == model.ScopeUser && r.UserID == "" {
		return mcp.NewToolResultError("'user_id' is required for user-scoped rules"), nil
	}
	if err := t.rules.SaveRule(ctx, r); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save rule: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Rule saved: %q (%s, priority %d, %s)\nID: %s",
		r.Title, r.Scope, r.Priority, r.Severity, r.ID)), nil
}
