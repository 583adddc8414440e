package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/app"
	"github.com/specialistvlad/datagridgo/internal/engine"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/stretchr/testify/require"
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

// Scenario describes one integration run. Files are written relative to a
// temporary root; Pipeline and Input name two of them.
type Scenario struct {
	Files    map[string]string
	Pipeline string
	Input    string
	// Config carries run options. Paths set by the harness are overwritten.
	Config app.Config
	// Modules are installed next to the built-in ones.
	Modules []registry.Module
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Dir       string
	Output    record.Batch
	// Stats is nil when the run never reached the engine.
	Stats *engine.Stats
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, s Scenario) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, s)
}

// RunIntegrationTestWithContext runs a Scenario through the full App with
// a caller-provided context.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, s Scenario) *HarnessResult {
	t.Helper()

	// 1. Lay out the scenario files under a temporary root.
	tmpDir := t.TempDir()
	for name, content := range s.Files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	// 2. Point the config at them.
	cfg := s.Config
	cfg.PipelinePath = filepath.Join(tmpDir, s.Pipeline)
	if s.Input != "" {
		cfg.InputPath = filepath.Join(tmpDir, s.Input)
	}
	cfg.OutputPath = filepath.Join(tmpDir, "out.jsonl")
	cfg.StatsPath = filepath.Join(tmpDir, "stats.json")
	if cfg.CacheMode == app.CacheDisk && cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(tmpDir, "cache")
	}
	cfg.LogLevel = "debug"
	cfg.LogFormat = "text"
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	result := &HarnessResult{Dir: tmpDir}

	// 3. Build the app. A registration conflict panics, which is reported
	// as the run error.
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		modules := append(app.CoreModules(), s.Modules...)
		result.App = app.NewApp(logBuffer, appConfig, modules...)
	}()

	if panicErr != nil {
		result.Err = fmt.Errorf("application startup panicked | %v", panicErr)
	} else {
		result.Err = result.App.Run(ctx)
	}

	// 4. Collect whatever the run left behind.
	if f, err := os.Open(appConfig.OutputPath); err == nil {
		result.Output, err = record.ReadJSONL(f, false)
		f.Close()
		require.NoError(t, err)
	}
	if raw, err := os.ReadFile(appConfig.StatsPath); err == nil {
		result.Stats = &engine.Stats{}
		require.NoError(t, json.Unmarshal(raw, result.Stats))
	}

	result.LogOutput = logBuffer.String()
	if os.Getenv("DATAGRIDGO_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.LogOutput)
	}
	return result
}
