package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDocuments(t *testing.T) {
	docs := []any{
		map[string]any{"operator": "lang.detect", "config": map[string]any{"path": "payload.text"}},
		map[string]any{"operator": "limit", "name": "cap", "config": map[string]any{"count": 1}, "depends_on": []any{"lang.detect#0"}},
	}

	p, err := FromDocuments(ModeAuto, docs)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	assert.Equal(t, "lang.detect#0", p.Steps[0].Name)
	assert.Equal(t, 0, p.Steps[0].Index)
	assert.Equal(t, "cap", p.Steps[1].Name)
	assert.Equal(t, []string{"lang.detect#0"}, p.Steps[1].DependsOn)
	assert.Equal(t, ModeDAG, p.EffectiveMode())

	native, err := p.Steps[1].Config.Native()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1.0}, native)
}

func TestFromDocuments_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		docs    []any
		wantErr string
	}{
		{name: "missing operator", docs: []any{map[string]any{"config": map[string]any{}}}, wantErr: "pipeline step #0 missing string 'operator'"},
		{name: "not an object", docs: []any{"limit"}, wantErr: "pipeline step #0 must be an object"},
		{name: "config not object", docs: []any{map[string]any{"operator": "limit", "config": 3}}, wantErr: "'config' must be an object"},
		{name: "bad depends_on", docs: []any{map[string]any{"operator": "limit", "depends_on": "a"}}, wantErr: "'depends_on' must be a list"},
		{name: "unknown key", docs: []any{map[string]any{"operator": "limit", "cfg": map[string]any{}}}, wantErr: "unsupported key 'cfg'"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromDocuments(ModeAuto, tc.docs)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestFromDocuments_ReportsEveryStep(t *testing.T) {
	_, err := FromDocuments(ModeAuto, []any{
		map[string]any{},
		map[string]any{"operator": "limit"},
		map[string]any{"operator": 4},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step #0")
	assert.Contains(t, err.Error(), "step #2")
	assert.NotContains(t, err.Error(), "step #1")
}

func TestEffectiveMode(t *testing.T) {
	assert.Equal(t, ModeSequential, New(Step{Operator: "a"}, Step{Operator: "b"}).EffectiveMode())
	assert.Equal(t, ModeSequential, Pipeline{Mode: ModeSequential, Steps: []Step{{DependsOn: []string{"x"}}}}.EffectiveMode())
}

func TestParseYAML(t *testing.T) {
	t.Run("bare list", func(t *testing.T) {
		src := `
- operator: lang.detect
  config:
    path: payload.text
- operator: quality.filter
  config:
    min: 0.5
`
		p, err := ParseYAML([]byte(src))
		require.NoError(t, err)
		require.Len(t, p.Steps, 2)
		assert.Equal(t, "quality.filter", p.Steps[1].Operator)
		assert.Equal(t, ModeSequential, p.EffectiveMode())
	})

	t.Run("object with mode", func(t *testing.T) {
		src := `{"mode": "dag", "steps": [{"operator": "limit", "name": "a", "config": {"count": 2}}]}`
		p, err := ParseYAML([]byte(src))
		require.NoError(t, err)
		assert.Equal(t, ModeDAG, p.Mode)
		assert.Equal(t, "a", p.Steps[0].Name)
	})

	t.Run("bad mode", func(t *testing.T) {
		_, err := ParseYAML([]byte(`{"mode": "parallel", "steps": []}`))
		assert.ErrorContains(t, err, "unknown pipeline mode")
	})

	t.Run("scalar document", func(t *testing.T) {
		_, err := ParseYAML([]byte(`42`))
		assert.ErrorContains(t, err, "list of steps")
	})
}

func TestParseHCL(t *testing.T) {
	src := `
pipeline {
  mode = "dag"
}

step "detect" {
  operator = "lang.detect"
  config = {
    path = "payload.text"
    key  = "language"
  }
}

step "score" {
  operator   = "quality.score"
  depends_on = ["detect"]
  config     = { path = "payload.text" }
}

step "noop" {
  operator = "limit"
}
`
	p, err := ParseHCL([]byte(src), "test.hcl")
	require.NoError(t, err)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, ModeDAG, p.Mode)
	assert.Equal(t, "detect", p.Steps[0].Name)
	assert.Equal(t, []string{"detect"}, p.Steps[1].DependsOn)
	assert.Equal(t, 2, p.Steps[2].Index)

	native, err := p.Steps[0].Config.Native()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "payload.text", "key": "language"}, native)

	native, err = p.Steps[2].Config.Native()
	require.NoError(t, err)
	assert.Empty(t, native)
}

func TestParseHCL_Invalid(t *testing.T) {
	_, err := ParseHCL([]byte(`step "a" {`), "broken.hcl")
	assert.ErrorContains(t, err, "failed to parse")

	_, err = ParseHCL([]byte(`step "a" { config = {} }`), "missing.hcl")
	assert.ErrorContains(t, err, "failed to decode")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- operator: limit\n  config: {count: 1}\n"), 0600))

	p, err := Load(context.Background(), yamlPath)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 1)

	txtPath := filepath.Join(dir, "pipeline.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0600))
	_, err = Load(context.Background(), txtPath)
	assert.ErrorContains(t, err, "unsupported pipeline file extension")

	_, err = Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read pipeline")
}
