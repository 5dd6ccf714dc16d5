package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadModel(t *testing.T, hclBody string) (*Model, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(hclBody), 0o644))
	return NewLoader().Load(context.Background(), dir)
}

func TestLoad_FullPipelineBlock(t *testing.T) {
	model, err := loadModel(t, `
pipeline "e2e" {
  env     = { RUST_LOG = "debug" }
  secrets = ["GITHUB_TOKEN"]
  runs_on = "ubuntu-latest"

  matrix {
    axis "os" {
      values = ["linux", "macos"]
    }
    override {
      match   = { os = "macos" }
      runs_on = "macos-latest"
    }
  }

  resource "cluster" "main" {
    options = { name = "e2e" }
  }

  step "build" {
    command = ["make", "build"]
    timeout = "10m"
  }

  step "cleanup" {
    command = ["make", "clean"]
    run_if  = "always"
  }

  artifact "logs" {
    path = "out/logs"
  }
}
`)
	require.NoError(t, err)
	require.Len(t, model.Pipelines, 1)

	p := model.Pipelines[0]
	assert.Equal(t, "e2e", p.Name)
	assert.Equal(t, []string{"GITHUB_TOKEN"}, p.SecretRefs)
	assert.Equal(t, "ubuntu-latest", p.RunsOn)
	require.Len(t, p.Axes, 1)
	assert.Equal(t, []string{"linux", "macos"}, p.Axes[0].Values)
	require.Len(t, p.Overrides, 1)
	assert.Equal(t, "macos-latest", p.Overrides[0].RunsOn)
	require.Len(t, p.Resources, 1)
	assert.Equal(t, "cluster", p.Resources[0].Type)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, 10*time.Minute, p.Steps[0].Timeout)
	assert.Equal(t, "always", p.Steps[1].RunIf)
	require.Len(t, p.Artifacts, 1)
}

func TestLoad_RejectsInvalidRunIf(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
  step "s" {
    command = ["true"]
    run_if  = "sometimes"
  }
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run_if")
}

func TestLoad_RejectsRunIfCombinedWithOnEvent(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
  step "s" {
    command  = ["true"]
    run_if   = "always"
    on_event = "push"
  }
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoad_RejectsInvalidTimeout(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
  step "s" {
    command = ["true"]
    timeout = "ten minutes"
  }
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestLoad_RejectsDuplicatePipelineNames(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
  step "s" { command = ["true"] }
}
pipeline "p" {
  step "s" { command = ["true"] }
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared more than once")
}

func TestLoad_RejectsPipelineWithoutSteps(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no steps")
}

func TestLoad_RejectsDuplicateStepNames(t *testing.T) {
	_, err := loadModel(t, `
pipeline "p" {
  step "s" { command = ["true"] }
  step "s" { command = ["false"] }
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "s" declared more than once`)
}

func TestLoad_AggregatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`
pipeline "a" {
  step "s" { command = ["true"] }
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`
pipeline "b" {
  step "s" { command = ["true"] }
}
`), 0o644))

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Pipelines, 2)
	// Files load in sorted order, so pipeline order is stable.
	assert.Equal(t, "a", model.Pipelines[0].Name)
	assert.Equal(t, "b", model.Pipelines[1].Name)
}
