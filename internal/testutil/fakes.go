package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/provision"
)

// FakeCall records one invocation the FakeRunner received.
type FakeCall struct {
	Path string
	Args []string
	Env  []string
}

// Behavior scripts the FakeRunner's response for a program name.
type Behavior struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Sleep delays the response, honoring context cancellation, to model
	// long-running commands.
	Sleep time.Duration
}

// FakeRunner is a scripted CommandRunner. Unscripted programs succeed with
// empty output.
type FakeRunner struct {
	mu        sync.Mutex
	behaviors map[string]Behavior
	calls     []FakeCall
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{behaviors: map[string]Behavior{}}
}

// Script sets the behavior for a program name.
func (f *FakeRunner) Script(program string, b Behavior) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[program] = b
	return f
}

// Calls returns a copy of everything run so far.
func (f *FakeRunner) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// CallsTo returns how many times the given program was run.
func (f *FakeRunner) CallsTo(program string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Path == program {
			n++
		}
	}
	return n
}

// Run implements executor.CommandRunner.
func (f *FakeRunner) Run(ctx context.Context, spec executor.CommandSpec) (executor.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Path: spec.Path, Args: spec.Args, Env: spec.Env})
	behavior := f.behaviors[spec.Path]
	f.mu.Unlock()

	start := time.Now()
	if behavior.Sleep > 0 {
		select {
		case <-time.After(behavior.Sleep):
		case <-ctx.Done():
			return executor.CommandResult{ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
		}
	} else if ctx.Err() != nil {
		return executor.CommandResult{ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
	}

	return executor.CommandResult{
		ExitCode: behavior.ExitCode,
		Stdout:   behavior.Stdout,
		Stderr:   behavior.Stderr,
		Duration: time.Since(start),
	}, nil
}

// FakeResource counts its releases so tests can assert exactly-once teardown.
type FakeResource struct {
	ResName  string
	Exports  map[string]string
	Releases atomic.Int32
	// ReleaseErr, when set, is returned from Release.
	ReleaseErr error
}

// Name implements provision.Resource.
func (r *FakeResource) Name() string { return r.ResName }

// Env implements provision.Resource.
func (r *FakeResource) Env() map[string]string { return r.Exports }

// Release implements provision.Resource.
func (r *FakeResource) Release(context.Context) error {
	r.Releases.Add(1)
	return r.ReleaseErr
}

// FakeProvisioner hands out FakeResources and can be told to fail.
type FakeProvisioner struct {
	mu sync.Mutex
	// AcquireErr, when set, fails every acquisition.
	AcquireErr error
	// Exports is attached to every resource handed out.
	Exports map[string]string
	// ReleaseErr is attached to every resource handed out.
	ReleaseErr error

	acquired []*FakeResource
}

// Acquire implements provision.Provisioner.
func (p *FakeProvisioner) Acquire(_ context.Context, spec pipeline.ResourceSpec) (provision.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	res := &FakeResource{ResName: spec.Name, Exports: p.Exports, ReleaseErr: p.ReleaseErr}
	p.acquired = append(p.acquired, res)
	return res, nil
}

// Acquired returns every resource handed out so far.
func (p *FakeProvisioner) Acquired() []*FakeResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeResource(nil), p.acquired...)
}

// TotalReleases sums release counts across all handed-out resources.
func (p *FakeProvisioner) TotalReleases() int {
	total := 0
	for _, r := range p.Acquired() {
		total += int(r.Releases.Load())
	}
	return total
}

// RequireReleasedOnce fails with a descriptive error unless every acquired
// resource was released exactly once.
func (p *FakeProvisioner) RequireReleasedOnce() error {
	for _, r := range p.Acquired() {
		if n := r.Releases.Load(); n != 1 {
			return fmt.Errorf("resource %q released %d times, want exactly 1", r.ResName, n)
		}
	}
	return nil
}
