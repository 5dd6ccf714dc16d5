package provision

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// ToolProvisioner verifies that a named tool binary is available before any
// step runs. A missing tool fails the whole job up front instead of half-way
// through its steps. Release is a no-op: the orchestrator does not own the
// binary.
//
// Options understood on the resource spec:
//
//	binary  the executable to look up (default: the resource instance name)
type ToolProvisioner struct {
	// lookPath is swappable for tests; defaults to exec.LookPath.
	lookPath func(string) (string, error)
}

// NewToolProvisioner returns a tool provisioner using PATH lookup.
func NewToolProvisioner() *ToolProvisioner {
	return &ToolProvisioner{lookPath: exec.LookPath}
}

// Acquire implements Provisioner.
func (p *ToolProvisioner) Acquire(ctx context.Context, spec pipeline.ResourceSpec) (Resource, error) {
	binary := spec.Options["binary"]
	if binary == "" {
		binary = spec.Name
	}

	path, err := p.lookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("tool %q not available: %w", binary, err)
	}

	ctxlog.FromContext(ctx).Debug("Tool located.", "binary", binary, "path", path)
	return &toolBinary{name: spec.Name, path: path}, nil
}

type toolBinary struct {
	name string
	path string
}

func (t *toolBinary) Name() string { return t.name }

func (t *toolBinary) Env() map[string]string { return nil }

func (t *toolBinary) Release(context.Context) error { return nil }
