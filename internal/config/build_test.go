package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/pipegrid/internal/event"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

func buildFrom(t *testing.T, hclBody string, ev *event.Event) ([]pipeline.JobSpec, error) {
	t.Helper()
	model, err := loadModel(t, hclBody)
	require.NoError(t, err)
	return BuildJobs(model, ev)
}

func TestBuildJobs_MatrixInterpolationInStepsAndEnv(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "e2e" {
  env = { TARGET = "${matrix.os}-${matrix.arch}" }

  matrix {
    axis "os" {
      values = ["linux", "macos"]
    }
    axis "arch" {
      values = ["amd64", "arm64"]
    }
  }

  step "build" {
    command = ["make", "build-${matrix.arch}"]
  }
}
`, event.Default())
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	assert.Equal(t, "e2e/linux/amd64", jobs[0].ID())
	assert.Equal(t, "linux-amd64", jobs[0].Env["TARGET"])
	assert.Equal(t, []string{"make", "build-amd64"}, jobs[0].Steps[0].Command)
	assert.Equal(t, "e2e/macos/arm64", jobs[3].ID())
	assert.Equal(t, []string{"make", "build-arm64"}, jobs[3].Steps[0].Command)
}

func TestBuildJobs_EventVariablesInScope(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "p" {
  env = { SOURCE_REF = event.ref }

  step "s" {
    command = ["true"]
  }
}
`, &event.Event{Kind: event.KindPush, Ref: "refs/heads/main"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "refs/heads/main", jobs[0].Env["SOURCE_REF"])
}

func TestBuildJobs_OverrideWinsOverPipelineEnv(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "p" {
  env     = { MODE = "default" }
  runs_on = "ubuntu-latest"

  matrix {
    axis "os" {
      values = ["linux", "macos"]
    }
    override {
      match   = { os = "macos" }
      env     = { MODE = "special" }
      runs_on = "macos-latest"
    }
  }

  step "s" {
    command = ["true"]
  }
}
`, event.Default())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "default", jobs[0].Env["MODE"])
	assert.Equal(t, "ubuntu-latest", jobs[0].RunsOn)
	assert.Equal(t, "special", jobs[1].Env["MODE"])
	assert.Equal(t, "macos-latest", jobs[1].RunsOn)
}

func TestBuildJobs_PipelineWithoutMatrixIsOneJob(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "lint" {
  step "s" {
    command = ["golangci-lint", "run"]
  }
}
`, event.Default())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "lint", jobs[0].ID())
	assert.Empty(t, jobs[0].Axes)
}

func TestBuildJobs_StepConditionsMapFromConfig(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "p" {
  step "build" {
    command = ["make"]
  }
  step "publish" {
    command  = ["make", "publish"]
    on_event = "push"
  }
  step "cleanup" {
    command = ["make", "clean"]
    run_if  = "always"
  }
}
`, event.Default())
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	steps := jobs[0].Steps
	assert.Equal(t, pipeline.OnSuccess, steps[0].Condition.Kind)
	assert.Equal(t, pipeline.OnEvent, steps[1].Condition.Kind)
	assert.Equal(t, "push", steps[1].Condition.EventKind)
	assert.Equal(t, pipeline.Always, steps[2].Condition.Kind)
}

func TestBuildJobs_ArtifactPathInterpolation(t *testing.T) {
	jobs, err := buildFrom(t, `
pipeline "e2e" {
  matrix {
    axis "os" {
      values = ["linux"]
    }
  }

  step "s" {
    command = ["true"]
  }

  artifact "logs" {
    path = "out/${matrix.os}/logs"
  }
}
`, event.Default())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Len(t, jobs[0].Artifacts, 1)
	assert.Equal(t, "out/linux/logs", jobs[0].Artifacts[0].Path)
}

func TestBuildJobs_EmptyCommandIsAnError(t *testing.T) {
	_, err := buildFrom(t, `
pipeline "p" {
  step "s" {
    command = []
  }
}
`, event.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is empty")
}

func TestBuildJobs_UndeclaredOverrideAxisIsAnError(t *testing.T) {
	_, err := buildFrom(t, `
pipeline "p" {
  matrix {
    axis "os" {
      values = ["linux"]
    }
    override {
      match = { arch = "amd64" }
    }
  }

  step "s" {
    command = ["true"]
  }
}
`, event.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arch")
}
