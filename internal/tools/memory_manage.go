package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ─── MemorySearchTool ───────────────────────────────────────────────────────

// MemorySearchTool handles the ctx_memory_search MCP tool.
type MemorySearchTool struct {
	dir       *directory.Resolver
	retriever retrieval.Retriever
	boosts    retrieval.Boosts
}

// NewMemorySearchTool creates a MemorySearchTool. Results are boosted the
// same way bundle retrieval boosts them.
func NewMemorySearchTool(dir *directory.Resolver, r retrieval.Retriever, boosts retrieval.Boosts) *MemorySearchTool {
	return &MemorySearchTool{dir: dir, retriever: r, boosts: boosts}
}

// Definition returns the MCP tool definition for ctx_memory_search.
func (t *MemorySearchTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_memory_search",
		mcp.WithDescription(
			"Search a project's memories by keywords. Use it to find the id of a draft decision "+
				"before confirming it, or to look past what the bundle included.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search keywords")),
		mcp.WithString("subpath", mcp.Description("Boost memories about this repository area")),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 10, max: 40)")),
	)
}

// Handle processes the ctx_memory_search tool call.
func (t *MemorySearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	ws, proj, err := t.dir.Resolve(ctx, workspace, project)
	if err != nil {
		return resolveError(err, workspace, project), nil
	}

	results, err := t.retriever.Search(ctx, retrieval.Query{
		WorkspaceID: ws.ID,
		ProjectID:   proj.ID,
		Text:        query,
		Subpath:     req.GetString("subpath", ""),
		Limit:       intArg(req, "limit", 10),
		Boosts:      t.boosts,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, r := range results {
		where := ""
		if r.Subpath != "" {
			where = " | " + r.Subpath
		}
		score := 0.0
		if r.Score != nil {
			score = *r.Score
		}
		fmt.Fprintf(&b, "[%d] %s (%s, score %.3f)%s\n    %s\n\n", i+1, r.ID, r.Type, score, where, r.Snippet)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── MemoryManageTool ───────────────────────────────────────────────────────

// MemoryManager changes the status of stored memories.
type MemoryManager interface {
	SetMemoryStatus(ctx context.Context, workspaceID, projectID, id, status string) error
	DeleteMemory(ctx context.Context, workspaceID, projectID, id string) error
}

// MemoryManageTool handles the ctx_memory_manage MCP tool.
type MemoryManageTool struct {
	dir      *directory.Resolver
	memories MemoryManager
}

// NewMemoryManageTool creates a MemoryManageTool.
func NewMemoryManageTool(dir *directory.Resolver, m MemoryManager) *MemoryManageTool {
	return &MemoryManageTool{dir: dir, memories: m}
}

// Definition returns the MCP tool definition for ctx_memory_manage.
func (t *MemoryManageTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_memory_manage",
		mcp.WithDescription(
			"Confirm a draft memory (captured decisions start as drafts), demote one back to draft, "+
				"or delete it. Only confirmed decisions and summaries reach the bundle snapshot.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory ID")),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("What to do with the memory"),
			mcp.Enum("confirm", "draft", "delete"),
		),
	)
}

// Handle processes the ctx_memory_manage tool call.
func (t *MemoryManageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	action := strings.ToLower(strings.TrimSpace(req.GetString("action", "")))

	ws, proj, err := t.dir.Resolve(ctx, workspace, project)
	if err != nil {
		return resolveError(err, workspace, project), nil
	}

	var done string
	switch action {
	case "confirm":
		err = t.memories.SetMemoryStatus(ctx, ws.ID, proj.ID, id, model.MemoryStatusConfirmed)
		done = "confirmed"
	case "draft":
		err = t.memories.SetMemoryStatus(ctx, ws.ID, proj.ID, id, model.MemoryStatusDraft)
		done = "moved back to draft"
	case "delete":
		err = t.memories.DeleteMemory(ctx, ws.ID, proj.ID, id)
		done = "deleted"
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid action %q: must be confirm, draft or delete", action)), nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("memory %q not found in project %q", id, project)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s memory: %v", action, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s %s", id, done)), nil
}
