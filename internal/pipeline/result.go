package pipeline

import (
	"encoding/json"
	"time"
)

// JobState is the scheduler-visible lifecycle state of a job.
type JobState int32

const (
	StatePending JobState = iota
	StateProvisioning
	StateRunning
	StateCollecting
	StateCancelling
	StateDone
)

// String returns the lower-case state name used in logs and the status server.
func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProvisioning:
		return "provisioning"
	case StateRunning:
		return "running"
	case StateCollecting:
		return "collecting"
	case StateCancelling:
		return "cancelling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Status is the terminal outcome of a job or of the whole pipeline.
type Status int

const (
	Passed Status = iota
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalJSON emits the status as its string name so result.json stays
// readable without the enum values.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StepStatus is the outcome of a single step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StepResult records one step execution (or skip).
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	// TimedOut tags failures caused by the step exceeding its bound. Timed-out
	// steps are ordinary failures for control flow; the tag exists for
	// diagnostics only.
	TimedOut bool `json:"timed_out,omitempty"`
	// Cancelled marks a step interrupted by the pipeline stop signal. Such a
	// step counts toward a CANCELLED job outcome rather than FAILED.
	Cancelled bool `json:"cancelled,omitempty"`
	// Cleanup marks results of Always-conditioned steps, which are excluded
	// from the job's pass/fail determination.
	Cleanup bool   `json:"cleanup,omitempty"`
	Err     string `json:"error,omitempty"`
}

// CollectedArtifact is one captured output in the artifact store.
type CollectedArtifact struct {
	Label string `json:"label"`
	// StorePath is the location inside the artifact store, or empty when the
	// declared path was missing at collection time.
	StorePath string `json:"store_path,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
}

// JobResult is the terminal record for one job. Immutable once produced.
type JobResult struct {
	JobID     string              `json:"job_id"`
	Status    Status              `json:"status"`
	Steps     []StepResult        `json:"steps"`
	Artifacts []CollectedArtifact `json:"artifacts,omitempty"`
	// TeardownErrs reports cleanup failures. They are surfaced prominently but
	// never re-open the job's primary determination.
	TeardownErrs []string `json:"teardown_errors,omitempty"`
	// Err carries the job-fatal error (provisioning failure, first step
	// failure) for log context. Empty for passed jobs.
	Err string `json:"error,omitempty"`
}
