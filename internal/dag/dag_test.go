package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/pipeline"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type passthrough struct{}

func (passthrough) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Result{Records: in}, nil
}

type hinted struct{ passthrough }

func (hinted) Hints() operator.Hints { return operator.Hints{Reads: []string{"payload.text"}} }
func (hinted) Version() string { return "2" }

type limitConfig struct {
	Count int `cty:"count,required"`
}

// newTestRegistry returns a registry with a few operators whose factories
// behave like real ones.
func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.MustRegister("pass", func(operator.Config) (operator.Operator, error) { return passthrough{}, nil })
	r.MustRegister("hinted", func(operator.Config) (operator.Operator, error) { return hinted{}, nil })
	r.MustRegister("limit", func(cfg operator.Config) (operator.Operator, error) {
		var c limitConfig
		if err := cfg.Decode(&c); err != nil {
			return nil, err
		}
		if c.Count < 0 {
			return nil, operator.Invalid("count", "must be >= 0, got %d", c.Count)
		}
		return passthrough{}, nil
	})
	return r
}

func step(name, op string, deps ...string) pipeline.Step {
	return pipeline.Step{Name: name, Operator: op, DependsOn: deps}
}

func dagPipeline(steps ...pipeline.Step) pipeline.Pipeline {
	p := pipeline.New(steps...)
	p.Mode = pipeline.ModeDAG
	return p
}

// --- Tests ---

func TestCompile_SequentialChain(t *testing.T) {
	p := pipeline.New(step("", "pass"), step("", "hinted"), step("", "pass"))

	plan, err := Compile(context.Background(), p, newTestRegistry(t))
	require.NoError(t, err)

	require.Equal(t, 3, plan.Len())
	assert.Empty(t, plan.Deps(0))
	assert.Equal(t, []int{0}, plan.Deps(1))
	assert.Equal(t, []int{1}, plan.Deps(2))
	assert.Equal(t, []int{0}, plan.Roots())
	assert.Equal(t, []int{2}, plan.Sinks())
	assert.Equal(t, "hinted#1", plan.Node(1).Name)

	n, ok := plan.ByName("pass#2")
	require.True(t, ok)
	assert.Equal(t, 2, n.Index)
}

func TestCompile_HintsDoNotCreateEdges(t *testing.T) {
	p := dagPipeline(step("a", "hinted"), step("b", "hinted"))

	plan, err := Compile(context.Background(), p, newTestRegistry(t))
	require.NoError(t, err)

	require.NotNil(t, plan.Node(0).Hints)
	assert.Equal(t, []string{"payload.text"}, plan.Node(0).Hints.Reads)
	assert.Empty(t, plan.Deps(1))
	assert.Equal(t, []int{0, 1}, plan.Sinks())
}

func TestCompile_DAG(t *testing.T) {
	p := dagPipeline(
		step("src", "pass"),
		step("left", "pass", "src"),
		step("right", "pass", "src"),
		step("join", "pass", "right", "left"),
	)

	plan, err := Compile(context.Background(), p, newTestRegistry(t))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, plan.Dependents(0))
	assert.Equal(t, []int{2, 1}, plan.Deps(3), "deps keep declaration order of depends_on")
	assert.Equal(t, []int{3}, plan.Sinks())
	assert.Equal(t, []int{0}, plan.Roots())
}

func TestCompile_AutoModeSwitchesOnDependsOn(t *testing.T) {
	p := pipeline.New(step("a", "pass"), step("b", "pass"), step("c", "pass", "a"))

	plan, err := Compile(context.Background(), p, newTestRegistry(t))
	require.NoError(t, err)

	assert.Empty(t, plan.Deps(1), "b has no explicit deps in DAG mode")
	assert.Equal(t, []int{0}, plan.Deps(2))
}

func TestCompile_Cycle(t *testing.T) {
	p := dagPipeline(
		step("root", "pass"),
		step("X", "pass", "Y"),
		step("Y", "pass", "X"),
		step("after", "pass", "Y"),
	)

	_, err := Compile(context.Background(), p, newTestRegistry(t))
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"X", "Y"}, cycleErr.Steps)
	assert.Contains(t, err.Error(), "X, Y")
}

func TestCompile_CycleReportsOnlyCycleMembers(t *testing.T) {
	p := dagPipeline(
		step("A", "pass", "B"),
		step("B", "pass", "A"),
		step("between", "pass", "B"),
		step("D", "pass", "between", "E"),
		step("E", "pass", "D"),
		step("tail", "pass", "E"),
	)

	_, err := Compile(context.Background(), p, newTestRegistry(t))

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"A", "B", "D", "E"}, cycleErr.Steps)
	assert.NotContains(t, cycleErr.Steps, "between")
	assert.NotContains(t, cycleErr.Steps, "tail")
}

func TestCompile_CollectsEveryProblem(t *testing.T) {
	p := dagPipeline(
		step("a", "nope"),
		pipeline.Step{Name: "b", Operator: "limit", Config: operator.MustConfig(map[string]any{"count": -1})},
		pipeline.Step{Name: "c", Operator: "limit", Config: operator.MustConfig(map[string]any{"cnt": 1})},
		step("d", "pass", "missing"),
		step("e", "pass", "e"),
		step("a", "pass"),
	)

	_, err := Compile(context.Background(), p, newTestRegistry(t))
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)

	var unknown *UnknownOperatorError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 0, unknown.Index)
	assert.Equal(t, "nope", unknown.Operator)

	var configErrs []*ConfigError
	var depErrs []*DependencyError
	for _, p := range compileErr.Problems {
		var ce *ConfigError
		var de *DependencyError
		switch {
		case errors.As(p, &ce):
			configErrs = append(configErrs, ce)
		case errors.As(p, &de):
			depErrs = append(depErrs, de)
		}
	}

	require.Len(t, configErrs, 3, "bad value, unsupported attribute, missing required attribute")
	assert.Equal(t, "count", configErrs[0].Field)
	assert.Equal(t, "b", configErrs[0].Step)
	for _, ce := range configErrs[1:] {
		assert.Equal(t, "c", ce.Step)
	}

	require.Len(t, depErrs, 3)
	assert.Contains(t, depErrs[0].Error(), "duplicate step name")
	assert.Contains(t, depErrs[1].Error(), "undeclared step 'missing'")
	assert.Contains(t, depErrs[2].Error(), "depends on itself")

	msg := err.Error()
	assert.Contains(t, msg, "step #0 'a'")
	assert.Contains(t, msg, "step #3 'd'")
}

func TestCompile_CodeHash(t *testing.T) {
	compileOne := func(op string, cfg map[string]any) string {
		p := pipeline.New(pipeline.Step{Operator: op, Config: operator.MustConfig(cfg)})
		plan, err := Compile(context.Background(), p, newTestRegistry(t))
		require.NoError(t, err)
		return plan.Node(0).CodeHash
	}

	base := compileOne("limit", map[string]any{"count": 1})
	assert.Len(t, base, 64)
	assert.Equal(t, base, compileOne("limit", map[string]any{"count": 1}))
	assert.NotEqual(t, base, compileOne("limit", map[string]any{"count": 2}), "config is part of the hash")
	assert.NotEqual(t, compileOne("pass", nil), compileOne("hinted", nil), "name and version are part of the hash")
}

func TestCompile_EmptyPipeline(t *testing.T) {
	plan, err := Compile(context.Background(), pipeline.Pipeline{}, newTestRegistry(t))
	require.NoError(t, err)
	assert.Zero(t, plan.Len())
	assert.Empty(t, plan.Sinks())
}
