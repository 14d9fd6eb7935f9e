package activework

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Evidence window and read caps for one recompute.
const (
	EvidenceWindow    = 14 * 24 * time.Hour
	maxRawEvents      = 800
	maxMemories       = 400
	maxReturnedRows   = 20
	recomputeMaxItems = MaxItems
)

// Store is what the Reconciler reads and writes.
type Store interface {
	store.EventStore
	store.MemoryStore
	store.ActiveWorkStore
}

// Result reports the outcome of a recompute.
type Result struct {
	Created       int                `json:"created"`
	Updated       int                `json:"updated"`
	StaleMarked   int                `json:"stale_marked"`
	StaleCleared  int                `json:"stale_cleared"`
	Closed        int                `json:"closed"`
	Rows          []model.ActiveWork `json:"active_work"`
	Candidates    []Candidate        `json:"candidates,omitempty"`
	CorrelationID string             `json:"correlation_id"`
}

// Report is a Result labelled with the keys of the project it covers.
type Report struct {
	WorkspaceKey string `json:"workspace_key"`
	ProjectKey   string `json:"project_key"`
	*Result
}

// Reconciler keeps stored active-work rows in step with inference.
//
// It assumes it is the only writer for a project during one Recompute call.
// Concurrent recomputes of the same project can race on row creation; the
// unique title index in the store rejects the loser.
type Reconciler struct {
	store      Store
	inferencer *Inferencer
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used by manual transitions.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option {
	return func(r *Reconciler) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(s Store, in *Inferencer, opts ...Option) *Reconciler {
	if in == nil {
		in = NewInferencer(nil)
	}
	r := &Reconciler{
		store:      s,
		inferencer: in,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Inferencer returns the inferencer used for recomputes.
func (r *Reconciler) Inferencer() *Inferencer { return r.inferencer }

// Evidence loads the trailing evidence window for a project.
func (r *Reconciler) Evidence(ctx context.Context, workspaceID, projectID string, now time.Time) ([]model.RawEvent, []model.Memory, error) {
	since := now.Add(-EvidenceWindow)
	events, err := r.store.ListRawEvents(ctx, store.EventFilter{
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Since:       since,
		Types:       model.ActivityEventTypes,
		Limit:       maxRawEvents,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("listing raw events: %w", err)
	}
	memories, err := r.store.ListMemories(ctx, store.MemoryFilter{
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Since:       since,
		Types:       []string{model.MemoryDecision, model.MemoryGoal, model.MemoryActivity},
		Limit:       maxMemories,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("listing memories: %w", err)
	}
	return events, memories, nil
}

// recompute holds the per-call state shared by the steps of Recompute.
type recompute struct {
	r             *Reconciler
	ctx           context.Context
	now           time.Time
	correlationID string
	res           *Result
}

func (rc *recompute) event(row *model.ActiveWork, typ model.ActiveWorkEventType, details map[string]any) model.ActiveWorkEvent {
	return model.ActiveWorkEvent{
		ID:            rc.r.newID(),
		ActiveWorkID:  row.ID,
		Type:          typ,
		Details:       details,
		CorrelationID: rc.correlationID,
		CreatedAt:     rc.now,
	}
}

func (rc *recompute) save(row *model.ActiveWork, create bool, events []model.ActiveWorkEvent) error {
	var err error
	if create {
		err = rc.r.store.CreateActiveWork(rc.ctx, row)
	} else {
		err = rc.r.store.UpdateActiveWork(rc.ctx, row)
	}
	if err != nil {
		return fmt.Errorf("saving active work %s: %w", row.ID, err)
	}
	if len(events) == 0 {
		return nil
	}
	if err := rc.r.store.AppendActiveWorkEvents(rc.ctx, events...); err != nil {
		return fmt.Errorf("appending events for %s: %w", row.ID, err)
	}
	return nil
}

// Recompute re-infers active work for one project at time now and applies
// policy. Store failures abort and propagate; writes already made are not
// rolled back, and a rerun converges to the same state.
func (r *Reconciler) Recompute(ctx context.Context, workspaceID, projectID string, now time.Time, policy model.ActiveWorkPolicy) (*Result, error) {
	policy = policy.Normalize()
	rc := &recompute{r: r, ctx: ctx, now: now, correlationID: r.newID(), res: &Result{}}
	rc.res.CorrelationID = rc.correlationID

	events, memories, err := r.Evidence(ctx, workspaceID, projectID, now)
	if err != nil {
		return nil, err
	}
	existing, err := r.store.ListActiveWork(ctx, store.ActiveWorkFilter{WorkspaceID: workspaceID, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("listing active work: %w", err)
	}

	candidates := r.inferencer.Infer(now, events, memories, recomputeMaxItems)
	rc.res.Candidates = candidates

	if err := rc.applyCandidates(workspaceID, projectID, existing, candidates); err != nil {
		return nil, err
	}

	open, err := r.store.ListActiveWork(ctx, store.ActiveWorkFilter{
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Statuses:    []model.WorkStatus{model.WorkInferred, model.WorkConfirmed},
	})
	if err != nil {
		return nil, fmt.Errorf("listing open active work: %w", err)
	}
	for i := range open {
		if err := rc.applyPolicy(&open[i], policy); err != nil {
			return nil, err
		}
	}

	rows := make([]model.ActiveWork, 0, len(open))
	for _, row := range open {
		if row.Status != model.WorkClosed {
			rows = append(rows, row)
		}
	}
	SortRows(rows)
	if len(rows) > maxReturnedRows {
		rows = rows[:maxReturnedRows]
	}
	rc.res.Rows = rows

	r.logger.Debug("active work recomputed",
		zap.String("workspace_id", workspaceID),
		zap.String("project_id", projectID),
		zap.String("correlation_id", rc.correlationID),
		zap.Int("candidates", len(candidates)),
		zap.Int("created", rc.res.Created),
		zap.Int("updated", rc.res.Updated),
		zap.Int("stale_marked", rc.res.StaleMarked),
		zap.Int("stale_cleared", rc.res.StaleCleared),
		zap.Int("closed", rc.res.Closed))
	return rc.res, nil
}

// applyCandidates matches each candidate to a stored row by inference key,
// then by normalized title, and creates or refreshes rows.
func (rc *recompute) applyCandidates(workspaceID, projectID string, existing []model.ActiveWork, candidates []Candidate) error {
	byKey := make(map[string]*model.ActiveWork, len(existing))
	byTitle := make(map[string]*model.ActiveWork, len(existing))
	for i := range existing {
		row := &existing[i]
		if row.InferenceKey != "" {
			byKey[row.InferenceKey] = row
		}
		byTitle[model.NormalizeTitle(row.Title)] = row
	}
	touched := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		row := byKey[c.Key]
		if row == nil {
			row = byTitle[model.NormalizeTitle(c.Title)]
		}
		if row != nil {
			if touched[row.ID] {
				continue
			}
			touched[row.ID] = true
			if err := rc.refresh(row, c); err != nil {
				return err
			}
			continue
		}

		created := rc.newRow(workspaceID, projectID, c)
		ev := rc.event(created, model.EventCreated, map[string]any{
			"title":      created.Title,
			"key":        c.Key,
			"confidence": created.Confidence,
			"evidence":   len(created.EvidenceIDs),
		})
		if err := rc.save(created, true, []model.ActiveWorkEvent{ev}); err != nil {
			return err
		}
		rc.res.Created++
		touched[created.ID] = true
		byKey[c.Key] = created
		byTitle[model.NormalizeTitle(created.Title)] = created
	}
	return nil
}

func (rc *recompute) newRow(workspaceID, projectID string, c Candidate) *model.ActiveWork {
	last := c.LastEvidenceAt
	return &model.ActiveWork{
		ID:             rc.r.newID(),
		WorkspaceID:    workspaceID,
		ProjectID:      projectID,
		Title:          c.Title,
		InferenceKey:   c.Key,
		Confidence:     c.Confidence,
		Status:         model.WorkInferred,
		EvidenceIDs:    append([]string(nil), c.EvidenceIDs...),
		LastEvidenceAt: &last,
		LastUpdatedAt:  rc.now,
		CreatedAt:      rc.now,
	}
}

// refresh applies a matched candidate to an existing row. A closed row is
// only revived by evidence newer than its closing.
func (rc *recompute) refresh(row *model.ActiveWork, c Candidate) error {
	if row.Status == model.WorkClosed && row.ClosedAt != nil && !c.LastEvidenceAt.After(*row.ClosedAt) {
		return nil
	}

	before := snapshot(*row)
	wasStale := row.Stale
	wasClosed := row.Status == model.WorkClosed
	keyChanged := row.InferenceKey != c.Key

	status := model.WorkInferred
	if row.Status == model.WorkConfirmed {
		status = model.WorkConfirmed
	}
	changed := row.Confidence != c.Confidence ||
		!slices.Equal(row.EvidenceIDs, c.EvidenceIDs) ||
		row.Status != status

	if !changed && !wasStale && !wasClosed && !keyChanged && sameTime(row.LastEvidenceAt, c.LastEvidenceAt) {
		return nil
	}

	last := c.LastEvidenceAt
	row.Confidence = c.Confidence
	row.EvidenceIDs = append([]string(nil), c.EvidenceIDs...)
	row.LastEvidenceAt = &last
	row.InferenceKey = c.Key
	row.Stale = false
	row.StaleReason = ""
	row.ClosedAt = nil
	row.Status = status
	row.LastUpdatedAt = rc.now

	var events []model.ActiveWorkEvent
	if wasStale {
		events = append(events, rc.event(row, model.EventStaleCleared, map[string]any{"reason": "new evidence"}))
		rc.res.StaleCleared++
	}
	if changed {
		events = append(events, rc.event(row, model.EventUpdated, map[string]any{
			"before": before,
			"after":  snapshot(*row),
		}))
		rc.res.Updated++
	}
	return rc.save(row, false, events)
}

// applyPolicy ages an open row: inferred rows past the auto-close window
// close, rows past the stale window are flagged, fresh rows are unflagged.
func (rc *recompute) applyPolicy(row *model.ActiveWork, policy model.ActiveWorkPolicy) error {
	ref := row.LastUpdatedAt
	if row.LastEvidenceAt != nil {
		ref = *row.LastEvidenceAt
	}
	age := math.Max(0, rc.now.Sub(ref).Hours()/24)
	days := int(math.Floor(age))

	switch {
	case policy.AutoCloseEnabled && row.Status == model.WorkInferred && age >= float64(policy.AutoCloseDays):
		closedAt := rc.now
		row.Status = model.WorkClosed
		row.Stale = true
		row.StaleReason = fmt.Sprintf("auto-closed: no new evidence for %d days (limit %d)", days, policy.AutoCloseDays)
		row.ClosedAt = &closedAt
		row.LastUpdatedAt = rc.now
		ev := rc.event(row, model.EventClosed, map[string]any{"reason": row.StaleReason, "auto": true})
		if err := rc.save(row, false, []model.ActiveWorkEvent{ev}); err != nil {
			return err
		}
		rc.res.Closed++
	case age >= float64(policy.StaleDays) && !row.Stale:
		row.Stale = true
		row.StaleReason = fmt.Sprintf("no new evidence for %d days (limit %d)", days, policy.StaleDays)
		row.LastUpdatedAt = rc.now
		ev := rc.event(row, model.EventStaleMarked, map[string]any{"reason": row.StaleReason})
		if err := rc.save(row, false, []model.ActiveWorkEvent{ev}); err != nil {
			return err
		}
		rc.res.StaleMarked++
	case age < float64(policy.StaleDays) && row.Stale:
		row.Stale = false
		row.StaleReason = ""
		row.LastUpdatedAt = rc.now
		ev := rc.event(row, model.EventStaleCleared, map[string]any{"reason": "within stale window"})
		if err := rc.save(row, false, []model.ActiveWorkEvent{ev}); err != nil {
			return err
		}
		rc.res.StaleCleared++
	}
	return nil
}

// SortRows orders rows by status, confidence desc, then most recently
// updated.
func SortRows(rows []model.ActiveWork) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.LastUpdatedAt.After(b.LastUpdatedAt)
	})
}

func snapshot(w model.ActiveWork) map[string]any {
	return map[string]any{
		"status":     string(w.Status),
		"confidence": w.Confidence,
		"evidence":   len(w.EvidenceIDs),
		"stale":      w.Stale,
	}
}

func sameTime(a *time.Time, b time.Time) bool {
	return a != nil && a.Equal(b)
}
