package pipeline

import (
	"sort"
	"strings"
	"time"
)

// ConditionKind enumerates the supported step run-conditions.
type ConditionKind int

const (
	// OnSuccess runs the step only while no earlier step has failed.
	OnSuccess ConditionKind = iota
	// Always runs the step regardless of earlier failures or cancellation.
	// Steps tagged Always are the cleanup guarantee: their outcome is reported
	// but never counted against the job's pass/fail determination.
	Always
	// OnEvent runs the step only when the trigger event kind matches EventKind.
	OnEvent
)

// Condition is the run-condition attached to a step. It is evaluated as a pure
// function of the execution context right before the step would start.
type Condition struct {
	Kind ConditionKind
	// EventKind is the trigger kind an OnEvent condition matches against.
	// Empty unless Kind == OnEvent.
	EventKind string
}

// String returns the configuration-syntax spelling of the condition.
func (c Condition) String() string {
	switch c.Kind {
	case Always:
		return "always"
	case OnEvent:
		return "on_event(" + c.EventKind + ")"
	default:
		return "on_success"
	}
}

// Step is the smallest unit of work within a job. Steps are owned by exactly
// one JobSpec and execute in declaration order.
type Step struct {
	Name      string
	Condition Condition

	// Command is the resolved argv. Command[0] is the program.
	Command []string

	// Env holds step-local environment overrides merged over the job env.
	Env map[string]string

	// Timeout bounds a single execution of the step. Zero means no bound.
	Timeout time.Duration

	// ExportVar, when non-empty, names an environment variable that receives
	// the step's trimmed stdout, visible to all later steps in the same job.
	// This models discovered values such as a provisioned cluster address.
	ExportVar string
}

// ResourceSpec names an external ephemeral resource a job needs before its
// steps run, e.g. a kind cluster or a tool binary.
type ResourceSpec struct {
	// Type selects the provisioner ("cluster" or "tool").
	Type string
	// Name is the instance name within the job.
	Name string
	// Options carries provisioner-specific settings (cluster name, binary name).
	Options map[string]string
}

// ArtifactSpec declares an output path captured after the job terminates.
type ArtifactSpec struct {
	// Label is the human-readable collection name.
	Label string
	// Path is the file or directory to capture, relative to the job workdir.
	Path string
}

// JobSpec is one concrete matrix combination. It is immutable once expansion
// has produced it; the executor copies Env into a mutable ExecutionContext.
type JobSpec struct {
	// PipelineName is the name of the pipeline block this job came from.
	PipelineName string

	// Axes maps axis name to the value chosen for this combination.
	Axes map[string]string
	// AxisOrder preserves the declared axis order so identity is stable.
	AxisOrder []string

	// Env is the resolved environment for the job: pipeline defaults with the
	// matching override merged on top.
	Env map[string]string

	// RunsOn is an opaque placement hint (e.g. "ubuntu-latest", "self-hosted").
	// The scheduler logs it and passes it through; it never interprets it.
	RunsOn string

	// SecretRefs names secrets resolved at job start and injected into step
	// environments. Values are never stored on the spec or in results.
	SecretRefs []string

	Steps     []Step
	Resources []ResourceSpec
	Artifacts []ArtifactSpec
}

// ID returns the job identity: the tuple of axis values joined in declared
// axis order, e.g. "e2e/linux/amd64". Two JobSpecs from one expansion never
// share an ID. A pipeline without a matrix yields a single job identified by
// the pipeline name alone.
func (j *JobSpec) ID() string {
	parts := make([]string, 0, len(j.AxisOrder)+1)
	if j.PipelineName != "" {
		parts = append(parts, j.PipelineName)
	}
	for _, axis := range j.AxisOrder {
		parts = append(parts, j.Axes[axis])
	}
	return strings.Join(parts, "/")
}

// EnvSorted returns the job environment as sorted KEY=VALUE pairs. Sorting
// keeps logs and fake-runner assertions deterministic.
func (j *JobSpec) EnvSorted() []string {
	pairs := make([]string, 0, len(j.Env))
	for k, v := range j.Env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
