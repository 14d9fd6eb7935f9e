package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store/sqlite"
)

var memoryTypes = []string{
	model.MemoryDecision,
	model.MemoryGoal,
	model.MemoryActivity,
	model.MemoryConstraint,
	model.MemorySummary,
	model.MemoryNote,
}

// MemoryWriter stores memories and captures decisions from free text.
type MemoryWriter interface {
	AddMemory(ctx context.Context, m *model.Memory) (bool, error)
	CaptureDecisions(ctx context.Context, p sqlite.CaptureParams) (*sqlite.CaptureResult, error)
}

// MemorySaveTool handles the ctx_memory_save MCP tool.
type MemorySaveTool struct {
	dir      Directory
	memories MemoryWriter
}

// NewMemorySaveTool creates a MemorySaveTool.
func NewMemorySaveTool(dir Directory, m MemoryWriter) *MemorySaveTool {
	return &MemorySaveTool{dir: dir, memories: m}
}

// Definition returns the MCP tool definition for ctx_memory_save.
func (t *MemorySaveTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_memory_save",
		mcp.WithDescription(
			"Save a project memory: a decision, goal, constraint, summary, activity note or plain note. "+
				"Set capture_decisions to also turn every item under a '## Decisions' heading into a draft decision.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Memory type"),
			mcp.Enum(memoryTypes...),
		),
		mcp.WithString("content", mcp.Required(), mcp.Description("Memory text (markdown allowed)")),
		mcp.WithString("status",
			mcp.Description("draft or confirmed (default: confirmed). Only confirmed summaries and decisions reach the snapshot."),
			mcp.Enum(model.MemoryStatusDraft, model.MemoryStatusConfirmed),
		),
		mcp.WithString("subpath", mcp.Description("Repository area the memory is about (e.g. 'services/billing')")),
		mcp.WithString("source", mcp.Description("Who produced it (default: assistant)")),
		mcp.WithBoolean("capture_decisions", mcp.Description("Extract draft decisions from a '## Decisions' section (default: false)")),
	)
}

// Handle processes the ctx_memory_save tool call.
func (t *MemorySaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	typ := strings.ToLower(strings.TrimSpace(req.GetString("type", "")))
	if !validMemoryType(typ) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid type %q: must be one of: %s", typ, strings.Join(memoryTypes, ", "))), nil
	}
	content := req.GetString("content", "")
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	status := req.GetString("status", model.MemoryStatusConfirmed)
	if status != model.MemoryStatusDraft && status != model.MemoryStatusConfirmed {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status %q: must be draft or confirmed", status)), nil
	}

	ws, proj, err := ensureProject(ctx, t.dir, workspace, project)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve project: %v", err)), nil
	}
	subpath := req.GetString("subpath", "")
	source := req.GetString("source", "assistant")

	m := &model.Memory{
		WorkspaceID: ws.ID,
		ProjectID:   proj.ID,
		Type:        typ,
		Status:      status,
		Content:     content,
		Metadata:    model.MemoryMetadata{Subpath: subpath, Source: source},
	}
	created, err := t.memories.AddMemory(ctx, m)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save memory: %v", err)), nil
	}

	var b strings.Builder
	if created {
		fmt.Fprintf(&b, "Memory saved (%s, %s)\nID: %s", m.Type, m.Status, m.ID)
	} else {
		fmt.Fprintf(&b, "Memory already stored, refreshed (%s)\nID: %s", m.Type, m.ID)
	}

	if boolArg(req, "capture_decisions", false) {
		res, err := t.memories.CaptureDecisions(ctx, sqlite.CaptureParams{
			WorkspaceID: ws.ID,
			ProjectID:   proj.ID,
			Content:     content,
			Subpath:     subpath,
			Source:      source,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("memory saved but decision capture failed: %v", err)), nil
		}
		if res.Extracted == 0 {
			b.WriteString("\nNo '## Decisions' section found.")
		} else {
			fmt.Fprintf(&b, "\nDecisions: %d extracted, %d saved as drafts, %d already known.",
				res.Extracted, res.Saved, res.Duplicates)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func validMemoryType(typ string) bool {
	for _, t := range memoryTypes {
		if t == typ {
			return true
		}
	}
	return false
}
