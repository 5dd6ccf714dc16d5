// Package provision acquires and releases the external ephemeral resources a
// job needs before its steps run: test clusters and tool binaries.
//
// Every acquired resource is owned by exactly one job and must be released
// exactly once on every exit path, including failure and cancellation. The
// Manager enforces the exactly-once guarantee with a per-resource sync.Once;
// teardown errors are collected and reported but never mask the job's primary
// outcome.
package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// Resource is one provisioned external dependency.
type Resource interface {
	// Name returns the instance name from the job spec.
	Name() string
	// Env returns environment entries the resource exports to later steps,
	// e.g. a discovered cluster address.
	Env() map[string]string
	// Release tears the resource down. The Manager guarantees it is invoked
	// at most once.
	Release(ctx context.Context) error
}

// Provisioner acquires resources of one type.
type Provisioner interface {
	Acquire(ctx context.Context, spec pipeline.ResourceSpec) (Resource, error)
}

// ProvisionError reports a failed acquisition. It fails the owning job and
// never affects sibling jobs.
type ProvisionError struct {
	Resource string
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision %q: %v", e.Resource, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// TeardownError reports a failed release. It is logged prominently but does
// not re-open an already determined job outcome.
type TeardownError struct {
	Resource string
	Err      error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("failed to release %q: %v", e.Resource, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// held pairs a resource with its release guard.
type held struct {
	resource Resource
	once     sync.Once
}

// Manager dispatches acquisition to registered provisioners and tracks what
// has been acquired so it can guarantee release. One Manager serves one job.
type Manager struct {
	provisioners map[string]Provisioner

	mu   sync.Mutex
	held []*held
}

// NewManager returns a Manager with the given provisioners keyed by resource
// type.
func NewManager(provisioners map[string]Provisioner) *Manager {
	return &Manager{provisioners: provisioners}
}

// Acquire provisions one resource. On success the resource joins the release
// set; its exported environment is returned for the execution context.
func (m *Manager) Acquire(ctx context.Context, spec pipeline.ResourceSpec) (map[string]string, error) {
	logger := ctxlog.FromContext(ctx)

	p, ok := m.provisioners[spec.Type]
	if !ok {
		return nil, &ProvisionError{Resource: spec.Name, Err: fmt.Errorf("no provisioner for resource type %q", spec.Type)}
	}

	logger.Info("▶️ Provisioning resource", "type", spec.Type, "name", spec.Name)
	res, err := p.Acquire(ctx, spec)
	if err != nil {
		return nil, &ProvisionError{Resource: spec.Name, Err: err}
	}

	m.mu.Lock()
	m.held = append(m.held, &held{resource: res})
	m.mu.Unlock()

	logger.Info("✅ Resource provisioned", "name", spec.Name)
	return res.Env(), nil
}

// ReleaseAll tears down every acquired resource in reverse acquisition order.
// It is safe to call more than once; each resource is released at most once.
// Returned errors are TeardownErrors, one per failed release.
func (m *Manager) ReleaseAll(ctx context.Context) []error {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	held := make([]*held, len(m.held))
	copy(held, m.held)
	m.mu.Unlock()

	var errs []error
	for i := len(held) - 1; i >= 0; i-- {
		h := held[i]
		h.once.Do(func() {
			logger.Info("🔥 Releasing resource", "name", h.resource.Name())
			if err := h.resource.Release(ctx); err != nil {
				errs = append(errs, &TeardownError{Resource: h.resource.Name(), Err: err})
				logger.Error("Resource release failed.", "name", h.resource.Name(), "error", err)
			}
		})
	}
	return errs
}
