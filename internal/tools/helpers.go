// Package tools implements the hoofctx MCP tool handlers.
//
// Each tool follows the same shape:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() validates arguments, calls into the engine and returns a result
//
// Failures are reported as tool results built with mcp.NewToolResultError,
// never as transport errors, so the assistant can read and react to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/model"
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Directory creates workspaces and projects on first use. Write tools go
// through it so hooks can record activity before anything is configured.
type Directory interface {
	EnsureWorkspace(ctx context.Context, key, name string) (*model.Workspace, error)
	EnsureProject(ctx context.Context, workspaceID, key, name string) (*model.Project, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg accepts either a JSON array or a comma-separated string.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// requireKeys reads the workspace and project keys every project tool takes.
func requireKeys(req mcp.CallToolRequest) (workspace, project string, errResult *mcp.CallToolResult) {
	workspace = strings.TrimSpace(req.GetString("workspace", ""))
	project = strings.TrimSpace(req.GetString("project", ""))
	if workspace == "" {
		return "", "", mcp.NewToolResultError("'workspace' is required")
	}
	if project == "" {
		return "", "", mcp.NewToolResultError("'project' is required")
	}
	return workspace, project, nil
}

// ensureProject resolves workspace and project keys, creating them if
// needed.
func ensureProject(ctx context.Context, dir Directory, workspaceKey, projectKey string) (*model.Workspace, *model.Project, error) {
	ws, err := dir.EnsureWorkspace(ctx, workspaceKey, "")
	if err != nil {
		return nil, nil, err
	}
	proj, err := dir.EnsureProject(ctx, ws.ID, projectKey, "")
	if err != nil {
		return nil, nil, err
	}
	return ws, proj, nil
}

// jsonResult renders v as indented JSON followed by the token footer.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err))
	}
	text := string(data)
	return mcp.NewToolResultText(text + budget.TokenFooter(budget.Estimate(text)))
}
