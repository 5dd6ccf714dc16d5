// Package executor runs the ordered steps of a single job.
//
// Steps execute strictly sequentially inside one ExecutionContext. Before each
// step its run-condition is evaluated against the fully updated context from
// the previous step; a failure sets the context's failure flag but never
// prevents later always-conditioned cleanup steps from running, including
// after the job's context has been cancelled.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// StepFailure reports a command that exited non-zero or timed out.
type StepFailure struct {
	Step     string
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *StepFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("step %q timed out", e.Step)
	}
	if e.Err != nil {
		return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q exited with code %d", e.Step, e.ExitCode)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// StepExecutor drives the step sequence of one job through a CommandRunner.
type StepExecutor struct {
	runner CommandRunner
}

// New returns a StepExecutor using the given command runner.
func New(runner CommandRunner) *StepExecutor {
	return &StepExecutor{runner: runner}
}

// Execute runs the steps in declaration order and returns one result per
// step. The boolean reports the pass/fail determination: the AND over every
// executed step that is not an always-conditioned cleanup step. A pre-failed
// context (provisioning failure) skips all non-cleanup steps.
func (e *StepExecutor) Execute(ctx context.Context, ec *ExecutionContext, steps []pipeline.Step) ([]pipeline.StepResult, bool) {
	logger := ctxlog.FromContext(ctx).With("job", ec.JobID)

	results := make([]pipeline.StepResult, 0, len(steps))
	for _, step := range steps {
		cleanup := step.Condition.Kind == pipeline.Always

		// Cancellation fails the job but must not suppress cleanup steps.
		if ctx.Err() != nil && !cleanup {
			ec.MarkFailed()
		}

		if !ec.ShouldRun(step.Condition) {
			logger.Debug("Step skipped.", "step", step.Name, "condition", step.Condition.String())
			results = append(results, pipeline.StepResult{
				Name:    step.Name,
				Status:  pipeline.StepSkipped,
				Cleanup: cleanup,
			})
			continue
		}

		result := e.runStep(ctx, ec, step)
		if result.Status == pipeline.StepFailed && !cleanup {
			ec.MarkFailed()
		}
		if result.Status == pipeline.StepFailed && cleanup {
			// Teardown failures are reported loudly but never mask the job's
			// primary determination.
			logger.Error("Cleanup step failed.", "step", step.Name, "error", result.Err)
		}
		results = append(results, result)
	}

	passed := !ec.Failed()
	for _, r := range results {
		if !r.Cleanup && r.Status == pipeline.StepFailed {
			passed = false
		}
	}
	return results, passed
}

func (e *StepExecutor) runStep(ctx context.Context, ec *ExecutionContext, step pipeline.Step) pipeline.StepResult {
	logger := ctxlog.FromContext(ctx).With("job", ec.JobID, "step", step.Name)
	logger.Info("▶️ Starting step")

	runCtx := ctx
	if step.Condition.Kind == pipeline.Always {
		// Cleanup steps run even after the job has been cancelled.
		runCtx = context.WithoutCancel(ctx)
	}
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, step.Timeout)
		defer cancel()
	}

	spec := CommandSpec{
		Path: step.Command[0],
		Args: step.Command[1:],
		Env:  ec.Env(step.Env),
	}

	start := time.Now()
	cmdResult, err := e.runner.Run(runCtx, spec)
	duration := cmdResult.Duration
	if duration == 0 {
		duration = time.Since(start)
	}

	result := pipeline.StepResult{
		Name:     step.Name,
		ExitCode: cmdResult.ExitCode,
		Duration: duration,
		Cleanup:  step.Condition.Kind == pipeline.Always,
	}

	timedOut := step.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded

	switch {
	case timedOut:
		failure := &StepFailure{Step: step.Name, ExitCode: cmdResult.ExitCode, TimedOut: true}
		result.Status = pipeline.StepFailed
		result.TimedOut = true
		result.Err = failure.Error()
		logger.Error("❌ Step timed out.", "timeout", step.Timeout)
	case errors.Is(err, context.Canceled):
		result.Status = pipeline.StepFailed
		result.Cancelled = true
		result.ExitCode = -1
		result.Err = fmt.Sprintf("step %q interrupted by stop signal", step.Name)
		logger.Warn("🛑 Step interrupted.")
	case err != nil:
		failure := &StepFailure{Step: step.Name, Err: err}
		result.Status = pipeline.StepFailed
		result.ExitCode = -1
		result.Err = failure.Error()
		logger.Error("❌ Step could not run.", "error", err)
	case cmdResult.ExitCode != 0:
		failure := &StepFailure{Step: step.Name, ExitCode: cmdResult.ExitCode}
		result.Status = pipeline.StepFailed
		result.Err = failure.Error()
		logger.Error("❌ Step failed.", "exit_code", cmdResult.ExitCode, "stderr", tail(cmdResult.Stderr))
	default:
		result.Status = pipeline.StepPassed
		if step.ExportVar != "" {
			value := strings.TrimSpace(cmdResult.Stdout)
			ec.Export(step.ExportVar, value)
			logger.Debug("Step exported variable.", "name", step.ExportVar)
		}
		logger.Info("✅ Finished step", "duration", duration.Round(time.Millisecond))
	}

	return result
}

// tail keeps log lines bounded when a tool dumps a large stderr.
func tail(s string) string {
	const max = 400
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max:]
}
