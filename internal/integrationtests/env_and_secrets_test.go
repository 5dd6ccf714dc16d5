package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/pipegrid/internal/app"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
	"github.com/specialistvlad/pipegrid/internal/secrets"
	"github.com/specialistvlad/pipegrid/internal/testutil"
)

func TestExport_StepStdoutFeedsLaterSteps(t *testing.T) {
	pipelineHCL := `
		pipeline "e2e" {
			step "discover" {
				command = ["discover-addr"]
				export  = "NODE_ADDR"
			}
			step "test" {
				command = ["run-tests"]
			}
		}
	`
	runner := testutil.NewFakeRunner().
		Script("discover-addr", testutil.Behavior{Stdout: "172.18.0.2\n"})

	result := testutil.RunPipelineTest(t, map[string]string{"e2e.hcl": pipelineHCL},
		app.WithCommandRunner(runner))

	require.NoError(t, result.Err)
	require.Equal(t, pipeline.Passed, result.Status)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	require.Contains(t, calls[1].Env, "NODE_ADDR=172.18.0.2")
}

func TestSecrets_ResolvedIntoStepEnvButNeverIntoResults(t *testing.T) {
	pipelineHCL := `
		pipeline "publish" {
			secrets = ["GITHUB_TOKEN"]
			step "push" {
				command = ["git", "push"]
			}
		}
	`
	runner := testutil.NewFakeRunner()
	result := testutil.RunPipelineTest(t, map[string]string{"publish.hcl": pipelineHCL},
		app.WithCommandRunner(runner),
		app.WithSecrets(secrets.Static{"GITHUB_TOKEN": "tok-abc123"}))

	require.NoError(t, result.Err)
	require.Equal(t, pipeline.Passed, result.Status)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Env, "GITHUB_TOKEN=tok-abc123")
	require.NotContains(t, result.LogOutput, "tok-abc123")
}

func TestSecrets_MissingSecretFailsTheJobBeforeSteps(t *testing.T) {
	pipelineHCL := `
		pipeline "publish" {
			secrets = ["GITHUB_TOKEN"]
			step "push" {
				command = ["git", "push"]
			}
		}
	`
	runner := testutil.NewFakeRunner()
	result := testutil.RunPipelineTest(t, map[string]string{"publish.hcl": pipelineHCL},
		app.WithCommandRunner(runner),
		app.WithSecrets(secrets.Static{}))

	require.NoError(t, result.Err)
	require.Equal(t, pipeline.Failed, result.Status)
	require.Equal(t, 0, runner.CallsTo("git"))
}
