// Package testutil provides a harness for end-to-end workflow tests: it
// materializes HCL files in a temp dir, boots an isolated app instance and
// runs it against mock runner modules.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covflow/covflow/internal/app"
	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/registry"
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

// HarnessResult holds the outcomes of a workflow test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// RunWorkflowTest writes the given HCL files to a temp directory, builds an
// app around the provided modules and runs every loaded workflow once.
func RunWorkflowTest(t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return runHarness(t, files, nil, modules...)
}

// RunWorkflowTestWithEvent is like RunWorkflowTest but dispatches the given
// event, so only workflows whose triggers match it run.
func RunWorkflowTestWithEvent(t *testing.T, files map[string]string, ev event.Event, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return runHarness(t, files, ev, modules...)
}

func runHarness(t *testing.T, files map[string]string, ev event.Event, modules ...registry.Module) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	cfg, err := app.NewConfig(app.Config{
		WorkflowsPath: tmpDir,
		LogLevel:      "debug",
		LogFormat:     "text",
		WorkerCount:   4,
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("COVFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	testApp, err := app.NewApp(logBuffer, cfg, modules...)
	if err != nil {
		return &HarnessResult{LogOutput: logBuffer.String(), Err: err}
	}

	var runErr error
	if ev != nil {
		runErr = testApp.RunEvent(context.Background(), ev)
	} else {
		runErr = testApp.Run(context.Background())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}
