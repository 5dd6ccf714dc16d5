package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PositionalPipelinePath(t *testing.T) {
	var out bytes.Buffer
	config, exit, err := Parse([]string{"pipelines/"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "pipelines/", config.PipelinePath)
	assert.Equal(t, "artifacts", config.ArtifactsDir)
}

func TestParse_FlagOverridesPositional(t *testing.T) {
	var out bytes.Buffer
	config, exit, err := Parse([]string{"--pipeline", "a.hcl", "b.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "a.hcl", config.PipelinePath)
}

func TestParse_ShorthandFlag(t *testing.T) {
	var out bytes.Buffer
	config, exit, err := Parse([]string{"-p", "a.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "a.hcl", config.PipelinePath)
}

func TestParse_NoPathPrintsUsageAndExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	_, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_AllOptions(t *testing.T) {
	var out bytes.Buffer
	config, _, err := Parse([]string{
		"--event", "event.yaml",
		"--artifacts-dir", "out",
		"--status-port", "8080",
		"--log-format", "text",
		"--log-level", "debug",
		"--max-parallel", "4",
		"--secret-prefix", "CI_SECRET_",
		"pipelines/",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "event.yaml", config.EventPath)
	assert.Equal(t, "out", config.ArtifactsDir)
	assert.Equal(t, 8080, config.StatusPort)
	assert.Equal(t, "text", config.LogFormat)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 4, config.MaxParallel)
	assert.Equal(t, "CI_SECRET_", config.SecretPrefix)
}

func TestParse_InvalidLogFormat(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"--log-format", "xml", "pipelines/"}, &out)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
	assert.True(t, strings.Contains(exitErr.Message, "log-format"))
}

func TestParse_InvalidLogLevel(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"--log-level", "loud", "pipelines/"}, &out)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
}

func TestParse_UnknownFlagIsUsageError(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"--bogus"}, &out)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
}
