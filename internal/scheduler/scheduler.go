// Package scheduler runs independent jobs concurrently and aggregates their
// outcomes into a single pipeline result.
//
// Jobs share no mutable state, so each runs on its own goroutine without
// cross-job locking; the result map is the only structure written
// concurrently and each job writes only its own key under the scheduler's
// mutex. Fail-fast is deliberately off: one job's failure never cancels its
// siblings. An external stop signal (context cancellation) moves every
// non-terminal job through CANCELLING, and each job still executes its
// cleanup steps, collects artifacts, and releases resources before reaching
// DONE.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/pipegrid/internal/artifact"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/event"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/provision"
	"github.com/specialistvlad/pipegrid/internal/secrets"
)

// Deps bundles the collaborators one Scheduler instance dispatches to.
type Deps struct {
	Executor     *executor.StepExecutor
	Provisioners map[string]provision.Provisioner
	Artifacts    *artifact.Store
	Secrets      secrets.Resolver
	Event        *event.Event
}

// Options tunes scheduling behavior.
type Options struct {
	// MaxParallel bounds concurrently running jobs. Zero means unbounded.
	MaxParallel int
}

// InternalError marks orchestrator faults (a panicking job goroutine), which
// abort the whole run and are distinct from job failures.
type InternalError struct {
	JobID string
	Cause any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal orchestrator error in job %q: %v", e.JobID, e.Cause)
}

// JobView is a point-in-time snapshot of one job for the status server.
type JobView struct {
	ID     string `json:"id"`
	RunsOn string `json:"runs_on,omitempty"`
	State  string `json:"state"`
	Status string `json:"status,omitempty"`
}

// Scheduler dispatches jobs and tracks per-job state.
type Scheduler struct {
	deps Deps
	opts Options

	mu      sync.Mutex
	states  map[string]*jobState
	order   []string
	results map[string]pipeline.JobResult
}

// New returns a Scheduler.
func New(deps Deps, opts Options) *Scheduler {
	return &Scheduler{
		deps:    deps,
		opts:    opts,
		states:  map[string]*jobState{},
		results: map[string]pipeline.JobResult{},
	}
}

// Run executes all jobs and returns the result map keyed by job identity,
// plus the aggregate pipeline status. The returned error is non-nil only for
// internal orchestrator errors; job failures are reported through statuses.
func (s *Scheduler) Run(ctx context.Context, jobs []pipeline.JobSpec) (map[string]pipeline.JobResult, pipeline.Status, error) {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	for i := range jobs {
		id := jobs[i].ID()
		s.states[id] = &jobState{id: id, runsOn: jobs[i].RunsOn, state: pipeline.StatePending}
		s.order = append(s.order, id)
	}
	s.mu.Unlock()

	var sem chan struct{}
	if s.opts.MaxParallel > 0 {
		sem = make(chan struct{}, s.opts.MaxParallel)
	}

	var (
		wg          sync.WaitGroup
		internalMu  sync.Mutex
		internalErr error
	)
	for i := range jobs {
		job := &jobs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					internalMu.Lock()
					if internalErr == nil {
						internalErr = &InternalError{JobID: job.ID(), Cause: r}
					}
					internalMu.Unlock()
				}
			}()

			if sem != nil {
				// The slot is taken even when the run was already cancelled;
				// the job still has to pass through collection to DONE.
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			result := s.runJob(ctx, job)

			s.mu.Lock()
			s.results[result.JobID] = result
			s.mu.Unlock()
		}()
	}
	wg.Wait()

	if internalErr != nil {
		return nil, pipeline.Failed, internalErr
	}

	s.mu.Lock()
	results := make(map[string]pipeline.JobResult, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}
	s.mu.Unlock()

	aggregate := aggregateStatus(results)
	logger.Info("🏁 Pipeline finished.", "jobs", len(results), "status", aggregate.String())
	return results, aggregate, nil
}

// Snapshot returns the current view of every job in declaration order.
func (s *Scheduler) Snapshot() []JobView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]JobView, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		view := JobView{ID: id, RunsOn: st.runsOn, State: st.state.String()}
		if result, done := s.results[id]; done {
			view.Status = result.Status.String()
		}
		views = append(views, view)
	}
	return views
}

func (s *Scheduler) setState(ctx context.Context, id string, state pipeline.JobState) {
	s.mu.Lock()
	if st, ok := s.states[id]; ok {
		st.state = state
	}
	s.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Job state changed.", "job", id, "state", state.String())
}

// aggregateStatus folds job outcomes into the pipeline status: FAILED if any
// job failed, otherwise CANCELLED if any was cancelled, otherwise PASSED.
func aggregateStatus(results map[string]pipeline.JobResult) pipeline.Status {
	status := pipeline.Passed
	for _, r := range results {
		switch r.Status {
		case pipeline.Failed:
			return pipeline.Failed
		case pipeline.Cancelled:
			status = pipeline.Cancelled
		}
	}
	return status
}

type jobState struct {
	id     string
	runsOn string
	state  pipeline.JobState
}
