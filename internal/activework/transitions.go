package activework

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// Transition is a manual lifecycle action.
type Transition string

const (
	TransitionConfirm Transition = "confirm"
	TransitionClose   Transition = "close"
	TransitionReopen  Transition = "reopen"
)

// ParseTransition validates a transition name.
func ParseTransition(s string) (Transition, error) {
	switch t := Transition(strings.ToLower(strings.TrimSpace(s))); t {
	case TransitionConfirm, TransitionClose, TransitionReopen:
		return t, nil
	}
	return "", fmt.Errorf("invalid transition %q: must be one of: confirm, close, reopen", s)
}

// Confirm marks a row as confirmed. Confirmed rows are never downgraded or
// auto-closed by Recompute.
func (r *Reconciler) Confirm(ctx context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error) {
	return r.Apply(ctx, workspaceID, projectID, id, TransitionConfirm)
}

// Close closes a row.
func (r *Reconciler) Close(ctx context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error) {
	return r.Apply(ctx, workspaceID, projectID, id, TransitionClose)
}

// Reopen returns a row to inferred.
func (r *Reconciler) Reopen(ctx context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error) {
	return r.Apply(ctx, workspaceID, projectID, id, TransitionReopen)
}

// Apply runs one manual transition and records its event. A row outside the
// given project yields store.ErrNotFound.
func (r *Reconciler) Apply(ctx context.Context, workspaceID, projectID, id string, t Transition) (*model.ActiveWork, error) {
	row, err := r.store.GetActiveWork(ctx, workspaceID, projectID, id)
	if err != nil {
		return nil, err
	}
	now := r.now()
	from := row.Status

	var typ model.ActiveWorkEventType
	switch t {
	case TransitionConfirm:
		typ = model.EventConfirmed
		row.Status = model.WorkConfirmed
		row.Stale = false
		row.StaleReason = ""
		row.ClosedAt = nil
	case TransitionClose:
		typ = model.EventClosed
		closedAt := now
		row.Status = model.WorkClosed
		row.ClosedAt = &closedAt
	case TransitionReopen:
		typ = model.EventReopened
		row.Status = model.WorkInferred
		row.Stale = false
		row.StaleReason = ""
		row.ClosedAt = nil
	default:
		return nil, fmt.Errorf("invalid transition %q", t)
	}
	row.LastUpdatedAt = now

	if err := r.store.UpdateActiveWork(ctx, row); err != nil {
		return nil, fmt.Errorf("saving active work %s: %w", row.ID, err)
	}
	ev := model.ActiveWorkEvent{
		ID:            r.newID(),
		ActiveWorkID:  row.ID,
		Type:          typ,
		Details:       map[string]any{"from": string(from), "to": string(row.Status), "manual": true},
		CorrelationID: r.newID(),
		CreatedAt:     now,
	}
	if err := r.store.AppendActiveWorkEvents(ctx, ev); err != nil {
		return nil, fmt.Errorf("appending %s event: %w", typ, err)
	}
	r.logger.Info("active work transition",
		zap.String("id", row.ID),
		zap.String("transition", string(t)),
		zap.String("from", string(from)),
		zap.String("to", string(row.Status)))
	return row, nil
}

// Events lists the lifecycle history of a row, oldest first.
func (r *Reconciler) Events(ctx context.Context, activeWorkID string) ([]model.ActiveWorkEvent, error) {
	return r.store.ListActiveWorkEvents(ctx, activeWorkID)
}
