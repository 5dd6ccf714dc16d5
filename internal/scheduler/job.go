package scheduler

import (
	"context"
	"errors"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/provision"
)

// runJob drives one job through its full lifecycle:
//
//	PENDING -> PROVISIONING -> RUNNING -> COLLECTING -> DONE
//
// with CANCELLING observed from any non-terminal point. COLLECTING is always
// entered on the way to DONE, even after cancellation or provisioning
// failure, so artifacts are captured and resources released on every path.
func (s *Scheduler) runJob(ctx context.Context, job *pipeline.JobSpec) pipeline.JobResult {
	id := job.ID()
	logger := ctxlog.FromContext(ctx).With("job", id)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Info("🚀 Job starting", "runs_on", job.RunsOn)

	manager := provision.NewManager(s.deps.Provisioners)
	ec := executor.NewExecutionContext(job, s.deps.Event)

	result := pipeline.JobResult{JobID: id}

	// Secrets resolve at job start and live only in the execution context's
	// environment, never on the spec or in results.
	secretErr := s.resolveSecrets(job, ec)

	// --- PROVISIONING ---
	s.setState(ctx, id, pipeline.StateProvisioning)
	var provErr error
	if secretErr != nil {
		provErr = secretErr
	} else {
		provErr = s.provision(ctx, job, manager, ec)
	}
	if provErr != nil {
		// Non-cleanup steps short-circuit; cleanup steps still run below.
		logger.Error("Job provisioning failed.", "error", provErr)
		ec.MarkFailed()
		result.Err = provErr.Error()
	}

	// --- RUNNING ---
	if ctx.Err() != nil {
		s.setState(ctx, id, pipeline.StateCancelling)
	} else {
		s.setState(ctx, id, pipeline.StateRunning)
	}
	stepResults, passed := s.deps.Executor.Execute(ctx, ec, job.Steps)
	result.Steps = stepResults

	if ctx.Err() != nil {
		s.setState(ctx, id, pipeline.StateCancelling)
	}

	// --- COLLECTING ---
	// Collection and teardown run even when cancelled, on a context detached
	// from the stop signal.
	s.setState(ctx, id, pipeline.StateCollecting)
	cleanupCtx := ctxlog.WithLogger(context.WithoutCancel(ctx), logger)
	result.Artifacts = s.deps.Artifacts.Collect(cleanupCtx, id, job.Artifacts)
	for _, terr := range manager.ReleaseAll(cleanupCtx) {
		result.TeardownErrs = append(result.TeardownErrs, terr.Error())
	}

	// --- DONE ---
	result.Status = determineStatus(ctx, provErr, stepResults, passed)
	if result.Err == "" && result.Status == pipeline.Failed {
		result.Err = firstFailure(stepResults)
	}
	s.setState(ctx, id, pipeline.StateDone)

	switch result.Status {
	case pipeline.Passed:
		logger.Info("✅ Job passed")
	case pipeline.Cancelled:
		logger.Warn("🛑 Job cancelled")
	default:
		logger.Error("❌ Job failed", "error", result.Err)
	}
	return result
}

func (s *Scheduler) resolveSecrets(job *pipeline.JobSpec, ec *executor.ExecutionContext) error {
	if len(job.SecretRefs) == 0 {
		return nil
	}
	for _, ref := range job.SecretRefs {
		value, err := s.deps.Secrets.Resolve(ref)
		if err != nil {
			return err
		}
		ec.Export(ref, value)
	}
	return nil
}

func (s *Scheduler) provision(ctx context.Context, job *pipeline.JobSpec, manager *provision.Manager, ec *executor.ExecutionContext) error {
	for _, res := range job.Resources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, err := manager.Acquire(ctx, res)
		if err != nil {
			return err
		}
		for k, v := range env {
			ec.Export(k, v)
		}
	}
	return nil
}

// determineStatus resolves the terminal status. A genuine failure (failed
// provisioning or a failed non-cleanup step) wins over cancellation; a job
// whose steps were merely skipped by the stop signal is CANCELLED, not
// FAILED.
func determineStatus(ctx context.Context, provErr error, steps []pipeline.StepResult, passed bool) pipeline.Status {
	if provErr != nil && !errors.Is(provErr, context.Canceled) {
		return pipeline.Failed
	}
	for _, r := range steps {
		if !r.Cleanup && r.Status == pipeline.StepFailed && !r.Cancelled {
			return pipeline.Failed
		}
	}
	if ctx.Err() != nil {
		return pipeline.Cancelled
	}
	if !passed {
		return pipeline.Failed
	}
	return pipeline.Passed
}

func firstFailure(steps []pipeline.StepResult) string {
	for _, r := range steps {
		if !r.Cleanup && r.Status == pipeline.StepFailed && !r.Cancelled {
			return r.Err
		}
	}
	return ""
}
