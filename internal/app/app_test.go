package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPipeline = `
mode: dag
steps:
  - name: detect
    operator: lang.detect
    config: {path: payload.text}
  - name: english
    operator: filter.equals
    depends_on: [detect]
    config: {path: metadata.lang, equals: en}
  - name: cap
    operator: limit
    depends_on: [english]
    config: {count: 10}
`

const testInput = `{"id":"a","payload":{"text":"the quick brown fox jumps over the lazy dog"}}
{"id":"b","payload":{"text":"Привет, как у тебя дела сегодня вечером"}}
{"id":"c","payload":{"text":"this is another english sentence for the test"}}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func readStats(t *testing.T, path string) engine.Stats {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var s engine.Stats
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{PipelinePath: "p.yaml", LogLevel: "DEBUG"})
	require.NoError(t, err)
	assert.Equal(t, CacheOff, cfg.CacheMode)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)

	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "no pipeline", cfg: Config{}, wantErr: "PipelinePath is required"},
		{name: "disk without dir", cfg: Config{PipelinePath: "p", CacheMode: CacheDisk}, wantErr: "CacheDir is required when CacheMode is disk"},
		{name: "bad policy", cfg: Config{PipelinePath: "p", Policy: "retry"}, wantErr: "Policy must be one of"},
		{name: "bad format", cfg: Config{PipelinePath: "p", LogFormat: "xml"}, wantErr: "LogFormat must be one of"},
		{name: "negative parallelism", cfg: Config{PipelinePath: "p", Parallelism: -1}, wantErr: "Parallelism failed 'gte'"},
		{name: "port out of range", cfg: Config{PipelinePath: "p", HealthcheckPort: 70000}, wantErr: "HealthcheckPort failed 'lte'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", testPipeline),
		InputPath:    writeFile(t, dir, "input.jsonl", testInput),
		OutputPath:   filepath.Join(dir, "out.jsonl"),
		StatsPath:    filepath.Join(dir, "stats.json"),
	})
	require.NoError(t, err)

	a, logs := SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))

	out, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a"`)
	assert.Contains(t, lines[1], `"id":"c"`)

	stats := readStats(t, cfg.StatsPath)
	assert.Equal(t, 3, stats.RecordsIn)
	assert.Equal(t, 2, stats.RecordsOut)
	assert.Equal(t, 3, stats.Waves)
	assert.Contains(t, logs.String(), "Execution finished.")
}

func TestRun_Streams(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", "- operator: limit\n  config: {count: 1}\n"),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	a, _ := SetupAppTest(t, cfg)
	a.WithStreams(strings.NewReader(testInput), &out)
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), `"id":"a"`)
}

func TestRun_DiskCacheHitsOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", testPipeline),
		InputPath:    writeFile(t, dir, "input.jsonl", testInput),
		OutputPath:   filepath.Join(dir, "out.jsonl"),
		StatsPath:    filepath.Join(dir, "stats.json"),
		CacheMode:    CacheDisk,
		CacheDir:     filepath.Join(dir, "cache"),
	})
	require.NoError(t, err)

	first, _ := SetupAppTest(t, cfg)
	require.NoError(t, first.Run(context.Background()))
	firstOut, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	stats := readStats(t, cfg.StatsPath)
	assert.Equal(t, 3, stats.CacheMisses)
	assert.Zero(t, stats.CacheHits)

	second, _ := SetupAppTest(t, cfg)
	require.NoError(t, second.Run(context.Background()))
	secondOut, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	stats = readStats(t, cfg.StatsPath)
	assert.Equal(t, 3, stats.CacheHits)
	assert.Zero(t, stats.CacheMisses)
	assert.Equal(t, string(firstOut), string(secondOut))
}

func TestRun_FailFastWritesStats(t *testing.T) {
	dir := t.TempDir()
	pipeline := "- operator: metadata.require\n  config: {keys: [language]}\n"
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", pipeline),
		InputPath:    writeFile(t, dir, "input.jsonl", testInput),
		OutputPath:   filepath.Join(dir, "out.jsonl"),
		StatsPath:    filepath.Join(dir, "stats.json"),
	})
	require.NoError(t, err)

	a, _ := SetupAppTest(t, cfg)
	err = a.Run(context.Background())
	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.ErrorContains(t, err, "missing metadata key 'language'")

	stats := readStats(t, cfg.StatsPath)
	require.Len(t, stats.Nodes, 1)
	assert.Equal(t, engine.Failed, stats.Nodes[0].State)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestRun_SkipErrors(t *testing.T) {
	dir := t.TempDir()
	pipeline := "- operator: metadata.require\n  config: {keys: [language]}\n"
	var out bytes.Buffer
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", pipeline),
		InputPath:    writeFile(t, dir, "input.jsonl", testInput),
		StatsPath:    filepath.Join(dir, "stats.json"),
		Policy:       "skip_errors",
	})
	require.NoError(t, err)

	a, _ := SetupAppTest(t, cfg)
	a.WithStreams(nil, &out)
	require.NoError(t, a.Run(context.Background()))

	assert.Empty(t, out.String())
	assert.Equal(t, 3, readStats(t, cfg.StatsPath).Errors)
}

func TestCompile_ReportsUnknownOperator(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{
		PipelinePath: writeFile(t, dir, "pipeline.yaml", "- operator: no.such\n"),
	})
	require.NoError(t, err)

	a, _ := SetupAppTest(t, cfg)
	_, err = a.Compile(context.Background())
	assert.ErrorContains(t, err, "no.such")
}

func TestOperators(t *testing.T) {
	a, _ := SetupAppTest(t, &Config{PipelinePath: "x", LogFormat: "text"})
	names := a.Operators()
	assert.Contains(t, names, "lang.detect")
	assert.Contains(t, names, "filter.equals")
	assert.Contains(t, names, "pii.redact")
	assert.IsIncreasing(t, names)
}

func TestHealthMux(t *testing.T) {
	a, _ := SetupAppTest(t, &Config{PipelinePath: "x", LogFormat: "text", HealthcheckPort: 8080})
	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestEnvironment_IncludesConfiguredEntries(t *testing.T) {
	a, _ := SetupAppTest(t, &Config{PipelinePath: "x", LogFormat: "text", Env: map[string]string{"model": "v2"}})
	env := a.environment()
	assert.Equal(t, "v2", env["model"])
	assert.Equal(t, a.registry.Fingerprint(), env["datagridgo.registry"])
	assert.NotEmpty(t, env["go.version"])
}
