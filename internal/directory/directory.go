// Package directory resolves workspace and project keys to their stored
// rows, caching lookups for a short time so a busy MCP session does not hit
// the database on every bundle.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/cache"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Resolver looks up workspaces and projects by key.
type Resolver struct {
	store      store.WorkspaceStore
	workspaces cache.Cache[model.Workspace]
	projects   cache.Cache[model.Project]
	defaults   model.ActiveWorkPolicy
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithCaches sets the workspace and project caches. Nil values keep the
// no-op caches.
func WithCaches(ws cache.Cache[model.Workspace], proj cache.Cache[model.Project]) Option {
	return func(r *Resolver) {
		if ws != nil {
			r.workspaces = ws
		}
		if proj != nil {
			r.projects = proj
		}
	}
}

// WithDefaultPolicy sets the policy used by workspaces without their own.
func WithDefaultPolicy(p model.ActiveWorkPolicy) Option {
	return func(r *Resolver) { r.defaults = p.Normalize() }
}

// New creates a Resolver. Without WithCaches every lookup reads the store.
func New(s store.WorkspaceStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:      s,
		workspaces: cache.Noop[model.Workspace]{},
		projects:   cache.Noop[model.Project]{},
		defaults:   model.DefaultActiveWorkPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workspace returns the workspace with the given key. Unknown keys wrap
// store.ErrNotFound.
func (r *Resolver) Workspace(ctx context.Context, key string) (*model.Workspace, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("directory: workspace key is required")
	}
	if ws, ok := r.workspaces.Get(key); ok {
		return &ws, nil
	}
	ws, err := r.store.GetWorkspaceByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("directory: workspace %q: %w", key, err)
	}
	r.workspaces.Set(key, *ws)
	return ws, nil
}

// Forget evicts a cached workspace so the next lookup reads the store.
func (r *Resolver) Forget(key string) {
	r.workspaces.Delete(strings.TrimSpace(key))
}

// Project returns the project with the given key inside ws.
func (r *Resolver) Project(ctx context.Context, ws *model.Workspace, key string) (*model.Project, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("directory: project key is required")
	}
	ck := ws.ID + "/" + key
	if p, ok := r.projects.Get(ck); ok {
		return &p, nil
	}
	p, err := r.store.GetProjectByKey(ctx, ws.ID, key)
	if err != nil {
		return nil, fmt.Errorf("directory: project %q in workspace %q: %w", key, ws.Key, err)
	}
	r.projects.Set(ck, *p)
	return p, nil
}

// Resolve looks up a workspace and one of its projects.
func (r *Resolver) Resolve(ctx context.Context, workspaceKey, projectKey string) (*model.Workspace, *model.Project, error) {
	ws, err := r.Workspace(ctx, workspaceKey)
	if err != nil {
		return nil, nil, err
	}
	p, err := r.Project(ctx, ws, projectKey)
	if err != nil {
		return nil, nil, err
	}
	return ws, p, nil
}

// Policy returns the effective active-work policy of ws. A workspace whose
// stored policy is entirely unset inherits the resolver default.
func (r *Resolver) Policy(ws *model.Workspace) model.ActiveWorkPolicy {
	if ws == nil || ws.Settings.Policy == (model.ActiveWorkPolicy{}) {
		return r.defaults
	}
	return ws.Settings.Policy.Normalize()
}
