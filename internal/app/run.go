package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/pipegrid/internal/artifact"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/event"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/scheduler"
)

// Run executes the full pipeline and returns the aggregate status together
// with the per-job results. The error return is reserved for orchestrator
// faults (bad event descriptor, matrix errors, internal errors); job failures
// are expressed through the status.
func (a *App) Run(ctx context.Context) (pipeline.Status, map[string]pipeline.JobResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	ev, err := a.loadEvent()
	if err != nil {
		return pipeline.Failed, nil, err
	}
	a.logger.Info("Trigger event loaded.", "kind", ev.Kind, "ref", ev.Ref, "repository", ev.Repository)

	jobs, err := config.BuildJobs(a.model, ev)
	if err != nil {
		return pipeline.Failed, nil, fmt.Errorf("failed to expand matrix: %w", err)
	}
	if len(jobs) == 0 {
		a.logger.Warn("No jobs produced by expansion, nothing to run.")
		return pipeline.Passed, map[string]pipeline.JobResult{}, nil
	}
	a.logger.Info("Matrix expanded.", "jobs", len(jobs))

	store, err := artifact.NewStore(a.config.ArtifactsDir)
	if err != nil {
		return pipeline.Failed, nil, err
	}

	sched := scheduler.New(scheduler.Deps{
		Executor:     executor.New(a.runner),
		Provisioners: a.provisioners,
		Artifacts:    store,
		Secrets:      a.secrets,
		Event:        ev,
	}, scheduler.Options{MaxParallel: a.config.MaxParallel})

	if a.config.StatusPort > 0 {
		statusSrv := a.startStatusServer(a.config.StatusPort, sched)
		defer a.stopStatusServer(statusSrv)
	}

	a.logger.Info("🚀 Starting concurrent execution...", "max_parallel", a.config.MaxParallel)
	results, status, err := sched.Run(ctx, jobs)
	if err != nil {
		return pipeline.Failed, nil, err
	}

	if err := store.WriteSummary(results); err != nil {
		a.logger.Error("Failed to write pipeline summary.", "error", err)
	}
	a.logSummary(results)
	return status, results, nil
}

func (a *App) loadEvent() (*event.Event, error) {
	if a.config.EventPath == "" {
		return event.Default(), nil
	}
	return event.Load(a.config.EventPath)
}

func (a *App) logSummary(results map[string]pipeline.JobResult) {
	for _, id := range sortedResultKeys(results) {
		r := results[id]
		attrs := []any{"job", id, "status", r.Status.String()}
		if r.Err != "" {
			attrs = append(attrs, "error", r.Err)
		}
		if len(r.TeardownErrs) > 0 {
			attrs = append(attrs, "teardown_errors", r.TeardownErrs)
		}
		a.logger.Info("Job summary.", attrs...)
	}
}
