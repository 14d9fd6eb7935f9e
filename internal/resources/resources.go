// Package resources implements MCP resource handlers for hoofctx.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (hoofctx://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hoofctx/internal/activework"
	"github.com/HendryAvila/hoofctx/internal/directory"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

const (
	scheme           = "hoofctx://"
	workspacesURI    = scheme + "workspaces"
	activeWorkSuffix = "/active-work"
)

// Handler manages hoofctx resource endpoints.
type Handler struct {
	workspaces store.WorkspaceStore
	dir        *directory.Resolver
	work       store.ActiveWorkStore
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(ws store.WorkspaceStore, dir *directory.Resolver, work store.ActiveWorkStore) *Handler {
	return &Handler{workspaces: ws, dir: dir, work: work}
}

// WorkspacesResource returns the MCP resource definition for the workspace
// directory.
func (h *Handler) WorkspacesResource() mcp.Resource {
	return mcp.NewResource(
		workspacesURI,
		"Workspaces",
		mcp.WithResourceDescription("Every workspace with its settings and projects"),
		mcp.WithMIMEType("application/json"),
	)
}

type workspaceEntry struct {
	model.Workspace
	Projects []string `json:"projects"`
}

// HandleWorkspaces lists workspaces and their project keys as JSON.
func (h *Handler) HandleWorkspaces(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.workspaces.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	out := make([]workspaceEntry, 0, len(list))
	for _, ws := range list {
		projects, err := h.workspaces.ListProjects(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("listing projects of %s: %w", ws.Key, err)
		}
		entry := workspaceEntry{Workspace: ws, Projects: make([]string, 0, len(projects))}
		for _, p := range projects {
			entry.Projects = append(entry.Projects, p.Key)
		}
		out = append(out, entry)
	}
	return jsonResource(req.Params.URI, out)
}

// ActiveWorkTemplate returns the MCP resource template for a project's
// open active work.
func (h *Handler) ActiveWorkTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		scheme+"{workspace}/{project}"+activeWorkSuffix,
		"Active work",
		mcp.WithTemplateDescription("A project's open work items, confirmed first, ranked like the bundle snapshot"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleActiveWork returns the open (inferred or confirmed) rows of the
// project named by the URI.
func (h *Handler) HandleActiveWork(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	workspace, project, err := parseActiveWorkURI(req.Params.URI)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	ws, proj, err := h.dir.Resolve(ctx, workspace, project)
	if errors.Is(err, store.ErrNotFound) {
		return errorResource(req.Params.URI, fmt.Sprintf("unknown workspace %q or project %q", workspace, project)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s/%s: %w", workspace, project, err)
	}

	rows, err := h.work.ListActiveWork(ctx, store.ActiveWorkFilter{
		WorkspaceID: ws.ID,
		ProjectID:   proj.ID,
		Statuses:    []model.WorkStatus{model.WorkConfirmed, model.WorkInferred},
	})
	if err != nil {
		return nil, fmt.Errorf("listing active work: %w", err)
	}
	activework.SortRows(rows)
	if rows == nil {
		rows = []model.ActiveWork{}
	}
	return jsonResource(req.Params.URI, rows)
}

// parseActiveWorkURI splits hoofctx://{workspace}/{project}/active-work.
func parseActiveWorkURI(uri string) (workspace, project string, err error) {
	rest, ok := strings.CutPrefix(uri, scheme)
	if ok {
		rest, ok = strings.CutSuffix(rest, activeWorkSuffix)
	}
	parts := strings.Split(rest, "/")
	if !ok || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid active work URI %q: want %s{workspace}/{project}%s", uri, scheme, activeWorkSuffix)
	}
	return parts[0], parts[1], nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
