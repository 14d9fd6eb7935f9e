package activework

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ProjectFailure is one project the sweep could not recompute.
type ProjectFailure struct {
	WorkspaceKey string `json:"workspace_key"`
	ProjectKey   string `json:"project_key"`
	Error        string `json:"error"`
}

// SweepResult aggregates a sweep.
type SweepResult struct {
	Workspaces   int              `json:"workspaces"`
	Skipped      int              `json:"skipped_workspaces"`
	Projects     int              `json:"projects"`
	Created      int              `json:"created"`
	Updated      int              `json:"updated"`
	StaleMarked  int              `json:"stale_marked"`
	StaleCleared int              `json:"stale_cleared"`
	Closed       int              `json:"closed"`
	Failures     []ProjectFailure `json:"failures,omitempty"`
}

func (s *SweepResult) add(r *Result) {
	s.Projects++
	s.Created += r.Created
	s.Updated += r.Updated
	s.StaleMarked += r.StaleMarked
	s.StaleCleared += r.StaleCleared
	s.Closed += r.Closed
}

// Sweeper recomputes every project of every workspace with activity
// logging enabled.
type Sweeper struct {
	directory   store.WorkspaceStore
	reconciler  *Reconciler
	logger      *zap.Logger
	now         func() time.Time
	policy      func(*model.Workspace) model.ActiveWorkPolicy
	concurrency int
}

// SweeperOption customizes a Sweeper.
type SweeperOption func(*Sweeper)

// WithConcurrency sets how many projects are recomputed in parallel. Values
// below 2 keep the sweep sequential.
func WithConcurrency(n int) SweeperOption {
	return func(s *Sweeper) { s.concurrency = n }
}

// WithSweepLogger sets the logger.
func WithSweepLogger(l *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweepClock overrides the sweep's reference time.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPolicy sets how a workspace's effective policy is derived, normally
// directory.Resolver.Policy so sweeps and manual recomputes agree.
func WithPolicy(policy func(*model.Workspace) model.ActiveWorkPolicy) SweeperOption {
	return func(s *Sweeper) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// storedPolicy uses the workspace's own policy, or the built-in default when
// none is set.
func storedPolicy(ws *model.Workspace) model.ActiveWorkPolicy {
	if ws.Settings.Policy == (model.ActiveWorkPolicy{}) {
		return model.DefaultActiveWorkPolicy()
	}
	return ws.Settings.Policy.Normalize()
}

// NewSweeper creates a Sweeper.
func NewSweeper(directory store.WorkspaceStore, reconciler *Reconciler, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{directory: directory, reconciler: reconciler, logger: zap.NewNop(), now: time.Now, policy: storedPolicy, concurrency: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sweepJob struct {
	workspace model.Workspace
	project   model.Project
}

// Run sweeps all workspaces. Listing failures abort; per-project recompute
// failures are collected in the result.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	workspaces, err := s.directory.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}

	res := &SweepResult{}
	var jobs []sweepJob
	for _, ws := range workspaces {
		if !ws.Settings.ActivityAutoLog {
			res.Skipped++
			continue
		}
		res.Workspaces++
		projects, err := s.directory.ListProjects(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("listing projects of %s: %w", ws.Key, err)
		}
		for _, p := range projects {
			jobs = append(jobs, sweepJob{workspace: ws, project: p})
		}
	}

	var mu sync.Mutex
	run := func(job sweepJob) {
		policy := s.policy(&job.workspace)
		r, err := s.reconciler.Recompute(ctx, job.workspace.ID, job.project.ID, now, policy)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("sweep recompute failed",
				zap.String("workspace", job.workspace.Key),
				zap.String("project", job.project.Key),
				zap.Error(err))
			res.Failures = append(res.Failures, ProjectFailure{
				WorkspaceKey: job.workspace.Key,
				ProjectKey:   job.project.Key,
				Error:        err.Error(),
			})
			return
		}
		res.add(r)
	}

	if s.concurrency < 2 {
		for _, job := range jobs {
			run(job)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, job := range jobs {
			g.Go(func() error {
				run(job)
				return nil
			})
		}
		_ = g.Wait()
		sort.Slice(res.Failures, func(i, j int) bool {
			a, b := res.Failures[i], res.Failures[j]
			if a.WorkspaceKey != b.WorkspaceKey {
				return a.WorkspaceKey < b.WorkspaceKey
			}
			return a.ProjectKey < b.ProjectKey
		})
	}

	s.logger.Info("active work sweep finished",
		zap.Int("workspaces", res.Workspaces),
		zap.Int("skipped", res.Skipped),
		zap.Int("projects", res.Projects),
		zap.Int("stale_marked", res.StaleMarked),
		zap.Int("closed", res.Closed),
		zap.Int("failures", len(res.Failures)))
	return res, nil
}
