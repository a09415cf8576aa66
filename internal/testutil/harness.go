// Package testutil provides the shared harness for integration tests: it
// writes flow HCL files into a temp dir, runs the app against a stub
// authorization server, and captures logs, summary, and panics.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/tokengridgo/internal/app"
	"github.com/vk/tokengridgo/internal/hcl"
	"github.com/vk/tokengridgo/internal/scheduler"
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
	Summary   *scheduler.Summary
	Err       error
	App       *app.App
}

// RunFlow provides a standardized harness for running integration tests
// using a default background context. Manual-step completions are read from
// the stdin string; an empty string means the prompter sees immediate EOF
// and any manual step parks the run.
func RunFlow(t *testing.T, files map[string]string, serverURL, stdin string) *HarnessResult {
	t.Helper()
	return RunFlowWithContext(context.Background(), t, files, serverURL, stdin)
}

// RunFlowWithContext is RunFlow with a caller-supplied context.
func RunFlowWithContext(ctx context.Context, t *testing.T, files map[string]string, serverURL, stdin string) *HarnessResult {
	t.Helper()

	// 1. Create a temporary root directory for the test.
	tmpDir, err := os.MkdirTemp("", ".tmp-integration-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	flowDir := filepath.Join(tmpDir, "flow")
	require.NoError(t, os.Mkdir(flowDir, 0755))

	// 2. Write all flow files into the temporary directory.
	for name, content := range files {
		filePath := filepath.Join(flowDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig := &app.Config{
		FlowPath:  flowDir,
		ServerURL: serverURL,
		LogLevel:  "debug",
		LogFormat: "text",
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var summary *scheduler.Summary
	var runErr error
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(strings.NewReader(stdin), logBuffer, appConfig, hcl.NewLoader())
		summary, runErr = testApp.Run(ctx)
	}()

	if panicErr != nil {
		runErr = fmt.Errorf("startup panic: %v", panicErr)
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Summary:   summary,
		Err:       runErr,
		App:       testApp,
	}
}
