package integration_tests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/pipegrid/internal/app"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/provision"
	"github.com/specialistvlad/pipegrid/internal/testutil"
)

func TestCleanup_AlwaysStepRunsAfterFailure(t *testing.T) {
	pipelineHCL := `
		pipeline "e2e" {
			step "test" {
				command = ["run-tests"]
			}
			step "teardown" {
				command = ["delete-cluster"]
				run_if  = "always"
			}
		}
	`
	runner := testutil.NewFakeRunner().
		Script("run-tests", testutil.Behavior{ExitCode: 1})

	result := testutil.RunPipelineTest(t, map[string]string{"e2e.hcl": pipelineHCL},
		app.WithCommandRunner(runner))

	require.NoError(t, result.Err)
	require.Equal(t, pipeline.Failed, result.Status)
	require.Equal(t, 1, runner.CallsTo("delete-cluster"))

	// The cleanup step's own success never flips a failed job back to passed.
	job := result.Results["e2e"]
	require.Equal(t, pipeline.Failed, job.Status)
	require.Equal(t, pipeline.StepPassed, job.Steps[1].Status)
	require.True(t, job.Steps[1].Cleanup)
}

func TestArtifacts_CollectedForFailedJobs(t *testing.T) {
	// Artifact paths resolve relative to the process workdir here, so stage the
	// declared file in a temp dir and interpolate its absolute path.
	crashDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(crashDir, "crash.log"), []byte("stack trace"), 0o644))

	pipelineHCL := `
		pipeline "e2e" {
			step "test" {
				command = ["run-tests"]
			}
			artifact "logs" {
				path = "` + crashDir + `"
			}
		}
	`
	runner := testutil.NewFakeRunner().
		Script("run-tests", testutil.Behavior{ExitCode: 1})

	result := testutil.RunPipelineTest(t, map[string]string{"e2e.hcl": pipelineHCL},
		app.WithCommandRunner(runner))

	require.NoError(t, result.Err)
	job := result.Results["e2e"]
	require.Equal(t, pipeline.Failed, job.Status)
	require.Len(t, job.Artifacts, 1)
	require.False(t, job.Artifacts[0].Missing)
	require.FileExists(t, filepath.Join(job.Artifacts[0].StorePath, "crash.log"))
}

func TestResources_ProvisionerEnvReachesSteps(t *testing.T) {
	pipelineHCL := `
		pipeline "e2e" {
			resource "cluster" "main" {
				options = { name = "e2e" }
			}
			step "test" {
				command = ["run-tests"]
			}
		}
	`
	runner := testutil.NewFakeRunner()
	prov := &testutil.FakeProvisioner{Exports: map[string]string{"CLUSTER_NODE_ADDR": "172.18.0.2"}}

	result := testutil.RunPipelineTest(t, map[string]string{"e2e.hcl": pipelineHCL},
		app.WithCommandRunner(runner),
		app.WithProvisioners(map[string]provision.Provisioner{"cluster": prov}))

	require.NoError(t, result.Err)
	require.Equal(t, pipeline.Passed, result.Status)
	require.NoError(t, prov.RequireReleasedOnce())

	calls := runner.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Env, "CLUSTER_NODE_ADDR=172.18.0.2")
}
