// Package model holds the records shared by the context engine: rules,
// memories, raw repository events, active-work rows and their lifecycle
// events, plus the workspace/project directory entries they hang off.
//
// The types are plain data. Validation and normalization happen at the
// store boundary (internal/store) so scoring code never sees untyped blobs.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// --- Rule enums ---

// Scope says who a rule applies to.
type Scope string

const (
	ScopeWorkspace Scope = "workspace"
	ScopeUser      Scope = "user"
)

// Category groups rules for summaries.
type Category string

const (
	CategoryPolicy   Category = "policy"
	CategorySecurity Category = "security"
	CategoryStyle    Category = "style"
	CategoryProcess  Category = "process"
	CategoryOther    Category = "other"
)

// CategoryOrder is the display order used when rules are grouped.
var CategoryOrder = []Category{CategoryPolicy, CategorySecurity, CategoryStyle, CategoryProcess, CategoryOther}

var validCategories = map[Category]bool{
	CategoryPolicy:   true,
	CategorySecurity: true,
	CategoryStyle:    true,
	CategoryProcess:  true,
	CategoryOther:    true,
}

// ParseCategory normalizes a category string, defaulting to "other".
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if validCategories[c] {
		return c
	}
	return CategoryOther
}

// Severity is the rule's impact level. High-severity rules get their own
// selection tier.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalizes a severity string, defaulting to "medium".
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow
	case SeverityHigh:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeWorkspace:
		return ScopeWorkspace, nil
	case ScopeUser:
		return ScopeUser, nil
	default:
		return "", fmt.Errorf("invalid scope %q: must be one of: workspace, user", s)
	}
}

// Rule is a standing policy/style/security note shown to the assistant.
type Rule struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	UserID       string     `json:"user_id,omitempty"`
	Scope        Scope      `json:"scope"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     Category   `json:"category"`
	Priority     int        `json:"priority"`
	Severity     Severity   `json:"severity"`
	Pinned       bool       `json:"pinned"`
	Enabled      bool       `json:"enabled"`
	Tags         []string   `json:"tags,omitempty"`
	UsageCount   int        `json:"usage_count"`
	LastRoutedAt *time.Time `json:"last_routed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ClampPriority keeps a priority inside 1..5 (1 is highest).
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

// RuleSummary is a persisted prose digest of a rule set.
type RuleSummary struct {
	WorkspaceID string    `json:"workspace_id"`
	Scope       Scope     `json:"scope"`
	UserID      string    `json:"user_id,omitempty"`
	Content     string    `json:"content"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// --- Memories ---

// Memory types the engine reads.
const (
	MemoryDecision   = "decision"
	MemoryGoal       = "goal"
	MemoryActivity   = "activity"
	MemoryConstraint = "constraint"
	MemorySummary    = "summary"
	MemoryNote       = "note"
)

// Memory statuses.
const (
	MemoryStatusDraft     = "draft"
	MemoryStatusConfirmed = "confirmed"
)

// MemoryMetadata is the typed subset of memory metadata the engine uses.
type MemoryMetadata struct {
	Subpath string `json:"subpath,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Memory is a typed note persisted by the assistant or by hooks.
type Memory struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	ProjectID   string         `json:"project_id"`
	Type        string         `json:"type"`
	Status      string         `json:"status,omitempty"`
	Content     string         `json:"content"`
	Metadata    MemoryMetadata `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// --- Raw events ---

// EventType is the kind of repository hook that produced a raw event.
type EventType string

const (
	EventPostCommit   EventType = "post_commit"
	EventPostMerge    EventType = "post_merge"
	EventPostCheckout EventType = "post_checkout"
)

// ActivityEventTypes are the raw event types active-work inference reads.
var ActivityEventTypes = []EventType{EventPostCommit, EventPostMerge, EventPostCheckout}

// ParseEventType validates a raw event type.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ActivityEventTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q: must be one of: post_commit, post_merge, post_checkout", s)
}

// RawEvent is one repository hook invocation.
type RawEvent struct {
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspace_id"`
	ProjectID     string    `json:"project_id"`
	Type          EventType `json:"type"`
	Branch        string    `json:"branch,omitempty"`
	CommitMessage string    `json:"commit_message,omitempty"`
	ChangedFiles  []string  `json:"changed_files,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ParseChangedFiles decodes a changed-files payload that may mix plain path
// strings and {"path": "..."} objects. Entries without a path are dropped.
func ParseChangedFiles(raw []byte) ([]string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("changed files must be a JSON array: %w", err)
	}
	paths := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				paths = append(paths, s)
			}
			continue
		}
		var obj struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if p := strings.TrimSpace(obj.Path); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

// --- Active work ---

// WorkStatus is the lifecycle state of an active-work row.
type WorkStatus string

const (
	WorkInferred  WorkStatus = "inferred"
	WorkConfirmed WorkStatus = "confirmed"
	WorkClosed    WorkStatus = "closed"
)

// MaxEvidenceIDs caps the evidence set kept on a row.
const MaxEvidenceIDs = 32

// ActiveWork is a persisted "currently active" work item.
type ActiveWork struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspace_id"`
	ProjectID      string     `json:"project_id"`
	Title          string     `json:"title"`
	InferenceKey   string     `json:"inference_key,omitempty"`
	Confidence     float64    `json:"confidence"`
	Status         WorkStatus `json:"status"`
	Stale          bool       `json:"stale"`
	StaleReason    string     `json:"stale_reason,omitempty"`
	EvidenceIDs    []string   `json:"evidence_ids"`
	LastEvidenceAt *time.Time `json:"last_evidence_at,omitempty"`
	LastUpdatedAt  time.Time  `json:"last_updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NormalizeTitle lowercases a title and collapses whitespace. Two titles
// with equal normalized forms identify the same row within a project.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// ActiveWorkEventType names a lifecycle transition.
type ActiveWorkEventType string

const (
	EventCreated      ActiveWorkEventType = "created"
	EventUpdated      ActiveWorkEventType = "updated"
	EventStaleMarked  ActiveWorkEventType = "stale_marked"
	EventStaleCleared ActiveWorkEventType = "stale_cleared"
	EventConfirmed    ActiveWorkEventType = "confirmed"
	EventClosed       ActiveWorkEventType = "closed"
	EventReopened     ActiveWorkEventType = "reopened"
)

// ActiveWorkEvent is an append-only lifecycle record.
type ActiveWorkEvent struct {
	ID            string              `json:"id"`
	ActiveWorkID  string              `json:"active_work_id"`
	Type          ActiveWorkEventType `json:"event_type"`
	Details       map[string]any      `json:"details,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// --- Directory ---

// Policy bounds and defaults for active-work staleness.
const (
	DefaultStaleDays     = 14
	DefaultAutoCloseDays = 45
	minPolicyDays        = 1
	maxPolicyDays        = 3650
)

// ActiveWorkPolicy controls when rows go stale and when inferred rows close.
type ActiveWorkPolicy struct {
	StaleDays        int  `json:"stale_days" yaml:"stale_days"`
	AutoCloseEnabled bool `json:"auto_close_enabled" yaml:"auto_close_enabled"`
	AutoCloseDays    int  `json:"auto_close_days" yaml:"auto_close_days"`
}

// DefaultActiveWorkPolicy returns the 14/45 day policy with auto-close on.
func DefaultActiveWorkPolicy() ActiveWorkPolicy {
	return ActiveWorkPolicy{
		StaleDays:        DefaultStaleDays,
		AutoCloseEnabled: true,
		AutoCloseDays:    DefaultAutoCloseDays,
	}
}

// Normalize fills zero values with defaults and clamps days to [1,3650].
func (p ActiveWorkPolicy) Normalize() ActiveWorkPolicy {
	if p.StaleDays == 0 {
		p.StaleDays = DefaultStaleDays
	}
	if p.AutoCloseDays == 0 {
		p.AutoCloseDays = DefaultAutoCloseDays
	}
	p.StaleDays = clampDays(p.StaleDays)
	p.AutoCloseDays = clampDays(p.AutoCloseDays)
	return p
}

func clampDays(d int) int {
	if d < minPolicyDays {
		return minPolicyDays
	}
	if d > maxPolicyDays {
		return maxPolicyDays
	}
	return d
}

// WorkspaceSettings are the per-workspace knobs persisted with the workspace.
type WorkspaceSettings struct {
	ActivityAutoLog bool             `json:"activity_auto_log"`
	Policy          ActiveWorkPolicy `json:"active_work_policy"`
}

// Workspace is a tenant: a team or an individual's set of projects.
type Workspace struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Name      string            `json:"name"`
	Settings  WorkspaceSettings `json:"settings"`
	CreatedAt time.Time         `json:"created_at"`
}

// Project is a repository inside a workspace.
type Project struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPreference holds a user's explicit persona choice for a workspace.
type UserPreference struct {
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Persona     string    `json:"persona"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExtractionDiagnostic records one run of automated decision extraction.
type ExtractionDiagnostic struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ProjectID   string    `json:"project_id"`
	Source      string    `json:"source"`
	Extracted   int       `json:"extracted"`
	Saved       int       `json:"saved"`
	Duplicates  int       `json:"duplicates"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
