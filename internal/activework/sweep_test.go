package activework

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store/storetest"
)

func seedSweepStore(t *testing.T) *storetest.MemStore {
	t.Helper()
	s := storetest.New()
	s.AddWorkspace(
		model.Workspace{ID: "ws", Key: "acme", Settings: model.WorkspaceSettings{ActivityAutoLog: true, Policy: model.ActiveWorkPolicy{StaleDays: 14, AutoCloseEnabled: false}}},
		model.Project{ID: "p", WorkspaceID: "ws", Key: "web"},
		model.Project{ID: "q", WorkspaceID: "ws", Key: "api"},
	)
	s.AddWorkspace(
		model.Workspace{ID: "quiet", Key: "quiet", Settings: model.WorkspaceSettings{ActivityAutoLog: false}},
		model.Project{ID: "z", WorkspaceID: "quiet", Key: "z"},
	)
	last := now.Add(-20 * 24 * time.Hour)
	s.SeedActiveWork(
		model.ActiveWork{ID: "old-p", WorkspaceID: "ws", ProjectID: "p", Title: "Old p", Status: model.WorkInferred, LastEvidenceAt: &last, LastUpdatedAt: last, CreatedAt: last},
		model.ActiveWork{ID: "old-z", WorkspaceID: "quiet", ProjectID: "z", Title: "Old z", Status: model.WorkInferred, LastEvidenceAt: &last, LastUpdatedAt: last, CreatedAt: last},
	)
	s.AddRawEvents(model.RawEvent{ID: "e1", WorkspaceID: "ws", ProjectID: "q", Type: model.EventPostCommit, ChangedFiles: []string{"services/api/h.go"}, CreatedAt: now})
	return s
}

func TestSweep_Sequential(t *testing.T) {
	s := seedSweepStore(t)
	sw := NewSweeper(s, newTestReconciler(t, s), WithSweepClock(func() time.Time { return now }))

	res, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Workspaces != 1 || res.Skipped != 1 || res.Projects != 2 {
		t.Errorf("workspaces/skipped/projects = %d/%d/%d, want 1/1/2", res.Workspaces, res.Skipped, res.Projects)
	}
	if res.StaleMarked != 1 || res.Created != 1 {
		t.Errorf("stale_marked/created = %d/%d, want 1/1", res.StaleMarked, res.Created)
	}
	z, _ := s.GetActiveWork(context.Background(), "quiet", "z", "old-z")
	if z.Stale {
		t.Error("rows of a workspace with activity logging off must not be touched")
	}
}

func TestSweep_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := seedSweepStore(t)
	sw := NewSweeper(s, newTestReconciler(t, s), WithConcurrency(4), WithSweepClock(func() time.Time { return now }))

	res, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Projects != 2 || res.StaleMarked != 1 || res.Created != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestSweep_CollectsProjectFailures(t *testing.T) {
	s := seedSweepStore(t)
	s.FailOn(storetest.OpListRawEvents, errors.New("busy"))
	sw := NewSweeper(s, newTestReconciler(t, s), WithConcurrency(2), WithSweepClock(func() time.Time { return now }))

	res, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should not fail on per-project errors: %v", err)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("failures = %+v, want 2", res.Failures)
	}
	if res.Failures[0].ProjectKey != "api" || res.Failures[1].ProjectKey != "web" {
		t.Errorf("failures not sorted: %+v", res.Failures)
	}
	if res.Projects != 0 {
		t.Errorf("Projects = %d, want 0", res.Projects)
	}
}

func TestSweep_ListFailureAborts(t *testing.T) {
	s := seedSweepStore(t)
	boom := errors.New("locked")
	s.FailOn(storetest.OpListWorkspaces, boom)
	sw := NewSweeper(s, newTestReconciler(t, s))

	if _, err := sw.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestSweep_UsesInjectedPolicy(t *testing.T) {
	s := seedSweepStore(t)
	var seen []string
	policy := func(ws *model.Workspace) model.ActiveWorkPolicy {
		seen = append(seen, ws.Key)
		return model.ActiveWorkPolicy{StaleDays: 3, AutoCloseEnabled: true, AutoCloseDays: 10}
	}
	sw := NewSweeper(s, newTestReconciler(t, s), WithPolicy(policy), WithSweepClock(func() time.Time { return now }))

	res, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The stored 14-day policy without auto-close would only mark old-p stale.
	if res.Closed != 1 || res.StaleMarked != 0 {
		t.Errorf("closed/stale_marked = %d/%d, want 1/0", res.Closed, res.StaleMarked)
	}
	if len(seen) != 2 || seen[0] != "acme" || seen[1] != "acme" {
		t.Errorf("policy consulted for %v, want one call per acme project", seen)
	}
}

func TestStoredPolicy(t *testing.T) {
	unset := &model.Workspace{}
	if got := storedPolicy(unset); got != model.DefaultActiveWorkPolicy() {
		t.Errorf("storedPolicy(unset) = %+v, want default", got)
	}
	own := &model.Workspace{Settings: model.WorkspaceSettings{Policy: model.ActiveWorkPolicy{StaleDays: 3}}}
	want := model.ActiveWorkPolicy{StaleDays: 3, AutoCloseDays: model.DefaultAutoCloseDays}
	if got := storedPolicy(own); got != want {
		t.Errorf("storedPolicy(own) = %+v, want %+v", got, want)
	}
}
