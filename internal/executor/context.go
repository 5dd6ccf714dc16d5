package executor

import (
	"sort"

	"github.com/specialistvlad/pipegrid/internal/event"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// ExecutionContext is the per-job mutable state steps run against: the
// accumulated environment, the trigger event, and the failure flag. It is
// created when a job starts and discarded after artifact collection; exactly
// one goroutine touches it, so it needs no locking.
type ExecutionContext struct {
	JobID string
	Event *event.Event

	env    map[string]string
	failed bool
}

// NewExecutionContext seeds the context from a job specification. Secret
// values and resource exports are layered in by the caller via Export; the
// spec itself stays immutable.
func NewExecutionContext(job *pipeline.JobSpec, ev *event.Event) *ExecutionContext {
	env := make(map[string]string, len(job.Env))
	for k, v := range job.Env {
		env[k] = v
	}
	return &ExecutionContext{
		JobID: job.ID(),
		Event: ev,
		env:   env,
	}
}

// Export adds or replaces an environment entry visible to all later steps.
func (ec *ExecutionContext) Export(key, value string) {
	ec.env[key] = value
}

// Env returns the accumulated environment merged with step-local overrides,
// as sorted KEY=VALUE pairs.
func (ec *ExecutionContext) Env(stepEnv map[string]string) []string {
	merged := make(map[string]string, len(ec.env)+len(stepEnv))
	for k, v := range ec.env {
		merged[k] = v
	}
	for k, v := range stepEnv {
		merged[k] = v
	}
	pairs := make([]string, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

// MarkFailed sets the failure flag. Once set it never clears; cleanup steps
// observing it still run while on_success steps are skipped.
func (ec *ExecutionContext) MarkFailed() {
	ec.failed = true
}

// Failed reports whether any earlier step (or provisioning) failed.
func (ec *ExecutionContext) Failed() bool {
	return ec.failed
}

// ShouldRun evaluates a step's run-condition against the current context.
// It is a pure function of the condition, the failure flag, and the event.
func (ec *ExecutionContext) ShouldRun(cond pipeline.Condition) bool {
	switch cond.Kind {
	case pipeline.Always:
		return true
	case pipeline.OnEvent:
		return ec.Event.Kind == cond.EventKind && !ec.failed
	default:
		return !ec.failed
	}
}
