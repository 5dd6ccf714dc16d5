package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// CommandSpec describes one external tool invocation.
type CommandSpec struct {
	// Path is the program; Args are its arguments (argv[1:]).
	Path string
	Args []string
	// Env is the complete environment as KEY=VALUE pairs. The spawned process
	// sees exactly this plus the orchestrator's own environment.
	Env []string
	// Dir is the working directory; empty means inherit.
	Dir string
}

// CommandResult is everything the orchestrator needs back from a tool: exit
// status, output streams, and elapsed time. Tool-specific output is never
// parsed beyond that.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// CommandRunner is the capability boundary for shelling out. The step executor
// and provisioners depend on it rather than on os/exec directly, so tests run
// without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// LocalRunner executes commands as child processes of the orchestrator.
type LocalRunner struct{}

// NewLocalRunner returns a CommandRunner backed by os/exec.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run implements CommandRunner. A non-zero exit is reported in the result,
// not as an error; the error return is reserved for failures to run the
// program at all (missing binary, bad working directory).
func (r *LocalRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A cancelled context kills the child; report that as the context
		// error rather than as an ordinary non-zero exit.
		if ctx.Err() != nil {
			result.ExitCode = -1
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	return result, nil
}
