package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/persona"
)

// Preferences reads and writes users' persona choices.
type Preferences interface {
	UserPreference(ctx context.Context, workspaceID, userID string) (*model.UserPreference, error)
	SetUserPreference(ctx context.Context, workspaceID, userID, persona string) error
}

// PersonaTool handles the ctx_persona_recommend MCP tool.
type PersonaTool struct {
	dir   Directory
	prefs Preferences
	chain *persona.Chain
}

// NewPersonaTool creates a PersonaTool.
func NewPersonaTool(dir Directory, prefs Preferences, chain *persona.Chain) *PersonaTool {
	return &PersonaTool{dir: dir, prefs: prefs, chain: chain}
}

// Definition returns the MCP tool definition for ctx_persona_recommend.
func (t *PersonaTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_persona_recommend",
		mcp.WithDescription(
			"Recommend the persona (author, reviewer, architect or neutral) whose weighting fits a query. "+
				"Pass 'set' to store a user's explicit preference, which then wins over inference.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("user_id", mcp.Description("User whose stored preference applies")),
		mcp.WithString("query", mcp.Description("Text to infer the persona from")),
		mcp.WithString("set",
			mcp.Description("Store this persona as the user's preference ('none' clears it). Requires user_id."),
			mcp.Enum("neutral", "author", "reviewer", "architect", "none"),
		),
	)
}

type personaResponse struct {
	Recommendation persona.Recommendation `json:"recommendation"`
	Preference     string                 `json:"stored_preference,omitempty"`
}

// Handle processes the ctx_persona_recommend tool call.
func (t *PersonaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace := strings.TrimSpace(req.GetString("workspace", ""))
	if workspace == "" {
		return mcp.NewToolResultError("'workspace' is required"), nil
	}
	userID := req.GetString("user_id", "")
	set := strings.ToLower(strings.TrimSpace(req.GetString("set", "")))
	if set != "" && userID == "" {
		return mcp.NewToolResultError("'user_id' is required to store a preference"), nil
	}
	if set != "" && set != "none" {
		if _, ok := persona.Parse(set); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid persona %q: must be one of: neutral, author, reviewer, architect", set)), nil
		}
	}

	ws, err := t.dir.EnsureWorkspace(ctx, workspace, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve workspace: %v", err)), nil
	}

	if set != "" {
		stored := set
		if set == "none" {
			stored = ""
		}
		if err := t.prefs.SetUserPreference(ctx, ws.ID, userID, stored); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to store preference: %v", err)), nil
		}
	}

	var out personaResponse
	in := persona.Input{Query: req.GetString("query", "")}
	if userID != "" {
		pref, err := t.prefs.UserPreference(ctx, ws.ID, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load preference: %v", err)), nil
		}
		if pref != nil {
			in.Explicit = pref.Persona
			out.Preference = pref.Persona
		}
	}
	out.Recommendation = t.chain.Resolve(ctx, in)
	return jsonResult(out), nil
}
