// Package store defines the persistence interfaces the context engine reads
// and writes through. Core packages depend on these abstractions only; the
// SQLite implementation lives in internal/store/sqlite and an in-memory fake
// for tests in internal/store/storetest.
//
// Filters carry explicit limits. Implementations must apply them and order
// results as documented on each method.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// ErrNotFound is returned when a requested row does not exist or does not
// belong to the given workspace/project.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing row, such
// as a second open active-work row with the same normalized title.
var ErrConflict = errors.New("conflict")

// RuleFilter selects the rules of one scope in a workspace. UserID is
// required for the user scope and ignored for the workspace scope.
type RuleFilter struct {
	WorkspaceID string
	Scope       model.Scope
	UserID      string
}

// RuleStore reads rules and records routing usage.
type RuleStore interface {
	// ListRules returns rules in stable (creation) order.
	ListRules(ctx context.Context, f RuleFilter) ([]model.Rule, error)
	// RuleSummary returns the persisted summary for a scope, or nil when none
	// has been saved.
	RuleSummary(ctx context.Context, f RuleFilter) (*model.RuleSummary, error)
	// MarkRulesRouted increments usage_count and stamps last_routed_at.
	MarkRulesRouted(ctx context.Context, ids []string, at time.Time) error
}

// EventFilter selects raw events. Results are ordered newest first.
type EventFilter struct {
	WorkspaceID string
	ProjectID   string
	Since       time.Time
	Types       []model.EventType
	Limit       int
}

// EventStore reads raw repository events.
type EventStore interface {
	ListRawEvents(ctx context.Context, f EventFilter) ([]model.RawEvent, error)
}

// MemoryFilter selects memories. A zero Since means no lower bound; empty
// Types/Statuses mean any. Results are ordered by updated_at desc.
type MemoryFilter struct {
	WorkspaceID string
	ProjectID   string
	Since       time.Time
	Types       []string
	Statuses    []string
	Limit       int
}

// MemoryStore reads memories.
type MemoryStore interface {
	ListMemories(ctx context.Context, f MemoryFilter) ([]model.Memory, error)
}

// ActiveWorkFilter selects active-work rows of a project. Empty Statuses
// means any status.
type ActiveWorkFilter struct {
	WorkspaceID string
	ProjectID   string
	Statuses    []model.WorkStatus
}

// ActiveWorkStore reads and writes active-work rows and their events.
type ActiveWorkStore interface {
	// ListActiveWork returns rows ordered by created_at, then id.
	ListActiveWork(ctx context.Context, f ActiveWorkFilter) ([]model.ActiveWork, error)
	// GetActiveWork returns ErrNotFound if the row is not in the project.
	GetActiveWork(ctx context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error)
	CreateActiveWork(ctx context.Context, w *model.ActiveWork) error
	UpdateActiveWork(ctx context.Context, w *model.ActiveWork) error
	AppendActiveWorkEvents(ctx context.Context, events ...model.ActiveWorkEvent) error
	// ListActiveWorkEvents returns a row's events oldest first.
	ListActiveWorkEvents(ctx context.Context, activeWorkID string) ([]model.ActiveWorkEvent, error)
}

// WorkspaceStore reads the workspace/project directory and user preferences.
type WorkspaceStore interface {
	ListWorkspaces(ctx context.Context) ([]model.Workspace, error)
	GetWorkspaceByKey(ctx context.Context, key string) (*model.Workspace, error)
	ListProjects(ctx context.Context, workspaceID string) ([]model.Project, error)
	GetProjectByKey(ctx context.Context, workspaceID, key string) (*model.Project, error)
	// UserPreference returns nil when the user has no stored preference.
	UserPreference(ctx context.Context, workspaceID, userID string) (*model.UserPreference, error)
}

// DiagnosticStore reads decision-extraction diagnostics, newest first.
type DiagnosticStore interface {
	RecentDiagnostics(ctx context.Context, workspaceID, projectID string, limit int) ([]model.ExtractionDiagnostic, error)
}

// Store is the full collaborator surface.
type Store interface {
	RuleStore
	EventStore
	MemoryStore
	ActiveWorkStore
	WorkspaceStore
	DiagnosticStore
}
