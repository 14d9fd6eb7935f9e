package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// EventWriter stores raw repository events and, when the workspace asks for
// it, the activity notes derived from them.
type EventWriter interface {
	RecordRawEvent(ctx context.Context, e *model.RawEvent) error
	AddMemory(ctx context.Context, m *model.Memory) (bool, error)
}

// EventRecordTool handles the ctx_event_record MCP tool.
type EventRecordTool struct {
	dir    Directory
	events EventWriter
}

// NewEventRecordTool creates an EventRecordTool.
func NewEventRecordTool(dir Directory, events EventWriter) *EventRecordTool {
	return &EventRecordTool{dir: dir, events: events}
}

// Definition returns the MCP tool definition for ctx_event_record.
func (t *EventRecordTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_event_record",
		mcp.WithDescription(
			"Record a repository event from a git hook (post_commit, post_merge, post_checkout). "+
				"Events are the main evidence for active-work inference.",
		),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace key")),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project key")),
		mcp.WithString("event_type",
			mcp.Required(),
			mcp.Description("Hook that fired"),
			mcp.Enum(string(model.EventPostCommit), string(model.EventPostMerge), string(model.EventPostCheckout)),
		),
		mcp.WithString("branch", mcp.Description("Current branch")),
		mcp.WithString("commit_message", mcp.Description("Commit message (post_commit)")),
		mcp.WithString("changed_files",
			mcp.Description(`Changed files as a JSON array of paths or {"path": "..."} objects`),
		),
	)
}

// Handle processes the ctx_event_record tool call.
func (t *EventRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspace, project, errResult := requireKeys(req)
	if errResult != nil {
		return errResult, nil
	}
	typ, err := model.ParseEventType(req.GetString("event_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := changedFilesArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ws, proj, err := ensureProject(ctx, t.dir, workspace, project)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve project: %v", err)), nil
	}

	e := &model.RawEvent{
		WorkspaceID:   ws.ID,
		ProjectID:     proj.ID,
		Type:          typ,
		Branch:        req.GetString("branch", ""),
		CommitMessage: req.GetString("commit_message", ""),
		ChangedFiles:  files,
	}
	if err := t.events.RecordRawEvent(ctx, e); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record event: %v", err)), nil
	}

	response := fmt.Sprintf("Event recorded: %s (%d file(s))\nID: %s", e.Type, len(e.ChangedFiles), e.ID)
	if note := activityNote(ws, e); note != "" {
		m := &model.Memory{
			WorkspaceID: ws.ID,
			ProjectID:   proj.ID,
			Type:        model.MemoryActivity,
			Status:      model.MemoryStatusConfirmed,
			Content:     note,
			Metadata:    model.MemoryMetadata{Source: "hook"},
		}
		if _, err := t.events.AddMemory(ctx, m); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("event recorded but activity log failed: %v", err)), nil
		}
		response += "\nActivity logged: " + note
	}
	return mcp.NewToolResultText(response), nil
}

// changedFilesArg accepts the changed files as a JSON array argument or as
// a string holding one.
func changedFilesArg(req mcp.CallToolRequest) ([]string, error) {
	switch v := req.GetArguments()["changed_files"].(type) {
	case nil:
		return nil, nil
	case string:
		return model.ParseChangedFiles([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid changed_files: %w", err)
		}
		return model.ParseChangedFiles(raw)
	}
}

// activityNote is the activity memory logged for a commit when the
// workspace has activity auto-logging on.
func activityNote(ws *model.Workspace, e *model.RawEvent) string {
	if !ws.Settings.ActivityAutoLog || e.Type != model.EventPostCommit {
		return ""
	}
	msg := strings.TrimSpace(e.CommitMessage)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	if msg == "" {
		return ""
	}
	if e.Branch != "" {
		return fmt.Sprintf("Committed on %s: %s", e.Branch, msg)
	}
	return "Committed: " + msg
}
