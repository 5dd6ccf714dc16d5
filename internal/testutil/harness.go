// Package testutil provides the shared harness and fakes for pipegrid tests:
// a thread-safe log buffer, a scripted command runner, fake provisioners, and
// a fixture runner that drives the whole app against temp-dir HCL files.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/pipegrid/internal/app"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Status    pipeline.Status
	Results   map[string]pipeline.JobResult
	Err       error
}

// RunPipelineTest writes the given files into a temp dir, builds an App over
// them with the provided options (fake runner, fake provisioners), runs it,
// and returns the outcome. File keys are paths relative to the temp root; the
// pipeline path given to the app is the root itself.
func RunPipelineTest(t *testing.T, files map[string]string, opts ...app.Option) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithContext(context.Background(), t, files, opts...)
}

// RunPipelineTestWithContext is RunPipelineTest with a caller-supplied
// context, for cancellation scenarios.
func RunPipelineTestWithContext(ctx context.Context, t *testing.T, files map[string]string, opts ...app.Option) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	pipelineDir := filepath.Join(tmpDir, "pipelines")
	require.NoError(t, os.Mkdir(pipelineDir, 0o755))

	for name, content := range files {
		filePath := filepath.Join(pipelineDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	appConfig, err := app.NewConfig(app.Config{
		PipelinePath: pipelineDir,
		ArtifactsDir: filepath.Join(tmpDir, "artifacts"),
		LogLevel:     "debug",
		LogFormat:    "text",
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, config.NewLoader(), opts...)
	}()
	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	status, results, runErr := testApp.Run(ctx)

	if os.Getenv("PIPEGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Status:    status,
		Results:   results,
		Err:       runErr,
	}
}
