package engine_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/cache/memstore"
	"github.com/specialistvlad/datagridgo/internal/dag"
	"github.com/specialistvlad/datagridgo/internal/engine"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/pipeline"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/specialistvlad/datagridgo/modules/lang"
	"github.com/specialistvlad/datagridgo/modules/metadata"
	"github.com/specialistvlad/datagridgo/modules/quality"
	"github.com/specialistvlad/datagridgo/modules/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

// harness owns a registry of built-in and test operators plus the
// observations the test operators make.
type harness struct {
	reg     *registry.Registry
	applies atomic.Int64
	active  atomic.Int64
	peak    atomic.Int64
	started chan struct{}
}

type idsConfig struct {
	IDs []string `cty:"ids"`
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{reg: registry.New(), started: make(chan struct{}, 16)}
	require.NoError(t, h.reg.Install(&lang.Module{}, &quality.Module{}, &metadata.Module{}, &sample.Module{}))

	h.reg.MustRegister("test.count", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(_ context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
			h.applies.Add(1)
			ec.Counter("seen").Add(int64(len(in)))
			return operator.Result{Records: in}, nil
		}), nil
	})
	h.reg.MustRegister("test.fail_on", func(cfg operator.Config) (operator.Operator, error) {
		var c idsConfig
		if err := cfg.Decode(&c); err != nil {
			return nil, err
		}
		return operator.Func(func(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
			return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
				if slices.Contains(c.IDs, r.ID) {
					return r, false, fmt.Errorf("bad record %s", r.ID)
				}
				return r, true, nil
			}), nil
		}), nil
	})
	h.reg.MustRegister("test.boom", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(context.Context, *operator.ExecContext, record.Batch) (operator.Result, error) {
			return operator.Result{}, errors.New("boom")
		}), nil
	})
	h.reg.MustRegister("test.panic", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(context.Context, *operator.ExecContext, record.Batch) (operator.Result, error) {
			panic("kaboom")
		}), nil
	})
	// test.scribble mutates its input in place, which a well-behaved operator
	// must never do; the engine has to keep it from leaking to siblings.
	h.reg.MustRegister("test.scribble", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
			for _, r := range in {
				if m, ok := r.Payload.(map[string]any); ok {
					m["text"] = "scribbled"
				}
			}
			return operator.Result{Records: in}, nil
		}), nil
	})
	h.reg.MustRegister("test.block", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(ctx context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
			h.started <- struct{}{}
			<-ctx.Done()
			return operator.Result{Records: in}, nil
		}), nil
	})
	h.reg.MustRegister("test.slow", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
			n := h.active.Add(1)
			for {
				peak := h.peak.Load()
				if n <= peak || h.peak.CompareAndSwap(peak, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			h.active.Add(-1)
			return operator.Result{Records: in}, nil
		}), nil
	})
	return h
}

func (h *harness) compile(t *testing.T, p pipeline.Pipeline) *dag.Plan {
	t.Helper()
	plan, err := dag.Compile(context.Background(), p, h.reg)
	require.NoError(t, err)
	return plan
}

func step(name, op string, cfg map[string]any, deps ...string) pipeline.Step {
	return pipeline.Step{Name: name, Operator: op, Config: operator.MustConfig(cfg), DependsOn: deps}
}

func dagOf(steps ...pipeline.Step) pipeline.Pipeline {
	p := pipeline.New(steps...)
	p.Mode = pipeline.ModeDAG
	return p
}

func texts(n int) record.Batch {
	b := make(record.Batch, n)
	for i := range n {
		b[i] = record.New(fmt.Sprintf("r%d", i), map[string]any{"text": fmt.Sprintf("row number %d", i)})
	}
	return b
}

func ids(b record.Batch) []string {
	out := make([]string, len(b))
	for i, r := range b {
		out[i] = r.ID
	}
	return out
}

func nodeStats(t *testing.T, s engine.Stats, name string) engine.NodeStats {
	t.Helper()
	for _, n := range s.Nodes {
		if n.Name == name {
			return n
		}
	}
	t.Fatalf("no stats for step %q", name)
	return engine.NodeStats{}
}

// --- Tests ---

func TestRun_LinearPipelineMatchesManualComposition(t *testing.T) {
	h := newHarness(t)
	steps := []pipeline.Step{
		step("", "metadata.enrich", map[string]any{"entries": map[string]any{"source": "test"}}),
		step("", "quality.score", map[string]any{"path": "payload.text"}),
		step("", "limit", map[string]any{"count": 3}),
	}
	plan := h.compile(t, pipeline.New(steps...))
	in := texts(5)

	res, err := engine.Run(context.Background(), plan, in, engine.Options{})
	require.NoError(t, err)

	want := in.Clone()
	ec := operator.NewExecContext("", "", nil)
	for _, n := range plan.Nodes() {
		out, err := n.Op.Apply(context.Background(), ec, want)
		require.NoError(t, err)
		want = out.Records
	}
	assert.True(t, record.Equal(want, res.Records))
	assert.Equal(t, 3, res.Stats.Waves)
	assert.Equal(t, 5, res.Stats.RecordsIn)
	assert.Equal(t, 3, res.Stats.RecordsOut)
}

func TestRun_IsDeterministic(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, dagOf(
		step("detect", "lang.detect", map[string]any{"path": "payload.text"}),
		step("score", "quality.score", map[string]any{"path": "payload.text"}),
		step("join", "test.count", nil, "detect", "score"),
	))
	in := texts(20)

	first, err := engine.Run(context.Background(), plan, in, engine.Options{Parallelism: 4})
	require.NoError(t, err)
	for range 10 {
		again, err := engine.Run(context.Background(), plan, in, engine.Options{Parallelism: 4})
		require.NoError(t, err)
		require.True(t, record.Equal(first.Records, again.Records))
	}
	assert.Len(t, first.Records, 40, "join concatenates both branches")
	assert.Equal(t, "r0", first.Records[0].ID)
	assert.Contains(t, first.Records[0].Metadata, "lang", "detect output comes first")
	assert.Contains(t, first.Records[20].Metadata, "quality")
}

func TestRun_DoesNotModifyInput(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(step("", "test.scribble", nil)))
	in := texts(2)

	res, err := engine.Run(context.Background(), plan, in, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, "scribbled", res.Records[0].Payload.(map[string]any)["text"])
	assert.Equal(t, "row number 0", in[0].Payload.(map[string]any)["text"])
}

func TestRun_FanOutGivesEachConsumerItsOwnCopy(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, dagOf(
		step("src", "test.count", nil),
		step("scribble", "test.scribble", nil, "src"),
		step("clean", "test.count", nil, "src"),
	))

	res, err := engine.Run(context.Background(), plan, texts(3), engine.Options{Parallelism: 1})
	require.NoError(t, err)
	require.Len(t, res.Records, 6)
	for _, r := range res.Records[:3] {
		assert.Equal(t, "scribbled", r.Payload.(map[string]any)["text"])
	}
	for _, r := range res.Records[3:] {
		assert.NotEqual(t, "scribbled", r.Payload.(map[string]any)["text"])
	}
}

func TestRun_EndToEndQualityFilter(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("", "lang.detect", map[string]any{"path": "payload.text"}),
		step("", "quality.score", map[string]any{"path": "payload.text"}),
		step("", "quality.filter", map[string]any{"min": 0.5}),
	))
	in := record.Batch{
		record.New("en", map[string]any{"text": "hello there"}),
		record.New("repeated", map[string]any{"text": "aaaaaaaaaaaaaaaaaaaa"}),
		record.New("zh", map[string]any{"text": "你好世界"}),
		record.New("ru", map[string]any{"text": "Привет мир"}),
	}

	res, err := engine.Run(context.Background(), plan, in, engine.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"en"}, ids(res.Records), "the repeated-character record scores 0.05 and is dropped")
	assert.Equal(t, "en", res.Records[0].Metadata["lang"])
	assert.Greater(t, res.Records[0].Metadata["quality"], 0.5)
	assert.Zero(t, res.Stats.Errors)
}

func TestRun_SkipErrorsDropsFailedRecords(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("check", "test.fail_on", map[string]any{"ids": []any{"r3", "r7"}}),
		step("after", "test.count", nil),
	))

	res, err := engine.Run(context.Background(), plan, texts(10), engine.Options{Policy: engine.SkipErrors})
	require.NoError(t, err)

	assert.Len(t, res.Records, 8)
	assert.NotContains(t, ids(res.Records), "r3")
	assert.Equal(t, 2, res.Stats.Errors)

	check := nodeStats(t, res.Stats, "check")
	assert.Equal(t, engine.Done, check.State)
	assert.Equal(t, 10, check.RecordsIn)
	assert.Equal(t, 8, check.RecordsOut)
	require.Len(t, check.Failures, 2)
	assert.Contains(t, check.Failures[0], "r3")
	assert.Equal(t, int64(8), nodeStats(t, res.Stats, "after").Counters["seen"])
}

func TestRun_SkipErrorsContinuesAfterBatchError(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("boom", "test.boom", nil),
		step("after", "test.count", nil),
	))

	res, err := engine.Run(context.Background(), plan, texts(4), engine.Options{Policy: engine.SkipErrors})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, engine.Failed, nodeStats(t, res.Stats, "boom").State)
	assert.Equal(t, engine.Done, nodeStats(t, res.Stats, "after").State)
}

func TestRun_FailFastNamesTheFailingNode(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("ok", "test.count", nil),
		step("check", "test.fail_on", map[string]any{"ids": []any{"r2"}}),
		step("after", "test.count", nil),
	))

	_, err := engine.Run(context.Background(), plan, texts(5), engine.Options{})
	require.Error(t, err)

	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "check", runErr.Node)
	assert.Equal(t, 1, runErr.Index)
	assert.Contains(t, err.Error(), "bad record r2")

	var opErr *engine.OperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 2, opErr.RecordIndex)
	assert.Equal(t, "r2", opErr.RecordID)

	require.NotNil(t, runErr.Stats)
	assert.Equal(t, engine.Done, nodeStats(t, *runErr.Stats, "ok").State)
	assert.Equal(t, engine.Failed, nodeStats(t, *runErr.Stats, "check").State)
	assert.Equal(t, engine.Skipped, nodeStats(t, *runErr.Stats, "after").State)
	assert.Equal(t, int64(1), h.applies.Load(), "nothing runs after the failure")
}

func TestRun_FailFastLetsRunningSiblingsFinish(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, dagOf(
		step("boom", "test.boom", nil),
		step("side", "test.count", nil),
		step("after", "test.count", nil, "side"),
	))

	_, err := engine.Run(context.Background(), plan, texts(2), engine.Options{Parallelism: 2})
	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "boom", runErr.Node)

	side := nodeStats(t, *runErr.Stats, "side")
	assert.Contains(t, []engine.State{engine.Done, engine.Skipped}, side.State)
	assert.Equal(t, engine.Skipped, nodeStats(t, *runErr.Stats, "after").State)
}

func TestRun_OperatorPanicIsABatchError(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(step("p", "test.panic", nil)))

	_, err := engine.Run(context.Background(), plan, texts(1), engine.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator panicked: kaboom")
}

func TestRun_CacheIsTransparent(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("count", "test.count", nil),
		step("check", "test.fail_on", map[string]any{"ids": []any{"r1"}}),
		step("score", "quality.score", map[string]any{"path": "payload.text"}),
	))
	in := texts(6)
	opts := engine.Options{Policy: engine.SkipErrors}

	uncached, err := engine.Run(context.Background(), plan, in, opts)
	require.NoError(t, err)
	require.Equal(t, int64(1), h.applies.Load())

	store := memstore.New()
	opts.Cache = cache.New(store)
	cold, err := engine.Run(context.Background(), plan, in, opts)
	require.NoError(t, err)
	warm, err := engine.Run(context.Background(), plan, in, opts)
	require.NoError(t, err)

	assert.True(t, record.Equal(uncached.Records, cold.Records))
	assert.True(t, record.Equal(uncached.Records, warm.Records))
	assert.Equal(t, int64(2), h.applies.Load(), "the warm run must not call operators")

	assert.Equal(t, 3, cold.Stats.CacheMisses)
	assert.Equal(t, 3, warm.Stats.CacheHits)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 1, warm.Stats.Errors, "cached failures are replayed")
	assert.Equal(t, int64(6), nodeStats(t, cold.Stats, "count").Counters["seen"])
	assert.Nil(t, nodeStats(t, warm.Stats, "count").Counters, "counters only move when the operator runs")
}

func TestRun_CacheKeyIncludesEnvironment(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(step("count", "test.count", nil)))
	c := cache.New(memstore.New())

	_, err := engine.Run(context.Background(), plan, texts(2), engine.Options{Cache: c, Env: cache.Environment{"host": "a"}})
	require.NoError(t, err)
	res, err := engine.Run(context.Background(), plan, texts(2), engine.Options{Cache: c, Env: cache.Environment{"host": "b"}})
	require.NoError(t, err)

	assert.Equal(t, engine.CacheMiss, nodeStats(t, res.Stats, "count").Cache)
	assert.Equal(t, int64(2), h.applies.Load())
}

func TestRun_CancelledNodeIsInterruptedAndNotCached(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New(
		step("wait", "test.block", nil),
		step("after", "test.count", nil),
	))
	store := memstore.New()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.started
		cancel()
	}()

	_, err := engine.Run(ctx, plan, texts(3), engine.Options{Cache: cache.New(store)})
	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, -1, runErr.Index)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, engine.Interrupted, nodeStats(t, *runErr.Stats, "wait").State)
	assert.Equal(t, engine.Skipped, nodeStats(t, *runErr.Stats, "after").State)
	assert.Zero(t, store.Len())
}

func TestRun_SharedCacheSurvivesAnotherRunsCancellation(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int64
	started := make(chan struct{})
	// The first apply blocks until its run is cancelled; later ones pass through.
	h.reg.MustRegister("test.first_waits", func(operator.Config) (operator.Operator, error) {
		return operator.Func(func(ctx context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-ctx.Done()
				return operator.Result{}, ctx.Err()
			}
			return operator.Result{Records: in}, nil
		}), nil
	})
	plan := h.compile(t, pipeline.New(step("w", "test.first_waits", nil)))
	store := memstore.New()
	shared := cache.New(store)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := engine.Run(ctxA, plan, texts(3), engine.Options{Cache: shared})
		errA <- err
	}()
	<-started

	type outcome struct {
		res *engine.Result
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := engine.Run(context.Background(), plan, texts(3), engine.Options{Cache: shared})
		doneB <- outcome{res: res, err: err}
	}()

	// Give run B time to join run A's computation.
	time.Sleep(50 * time.Millisecond)
	cancelA()

	assert.ErrorIs(t, <-errA, context.Canceled)
	b := <-doneB
	require.NoError(t, b.err, "run B was never cancelled")
	assert.Equal(t, ids(texts(3)), ids(b.res.Records))
	assert.Equal(t, engine.Done, nodeStats(t, b.res.Stats, "w").State)
	assert.Zero(t, b.res.Stats.Errors)
	assert.Equal(t, 1, store.Len())
}

func TestRun_RespectsParallelism(t *testing.T) {
	h := newHarness(t)
	var steps []pipeline.Step
	for i := range 6 {
		steps = append(steps, step(fmt.Sprintf("n%d", i), "test.slow", nil))
	}
	plan := h.compile(t, dagOf(steps...))

	res, err := engine.Run(context.Background(), plan, texts(1), engine.Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Waves)
	assert.LessOrEqual(t, h.peak.Load(), int64(2))
	assert.Len(t, res.Records, 6)
}

func TestRun_EmptyPlanPassesInputThrough(t *testing.T) {
	h := newHarness(t)
	plan := h.compile(t, pipeline.New())
	in := texts(3)

	res, err := engine.Run(context.Background(), plan, in, engine.Options{})
	require.NoError(t, err)
	assert.True(t, record.Equal(in, res.Records))
	assert.Zero(t, res.Stats.Waves)
}

func TestParsePolicy(t *testing.T) {
	p, err := engine.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, engine.FailFast, p)

	p, err = engine.ParsePolicy("skip_errors")
	require.NoError(t, err)
	assert.Equal(t, engine.SkipErrors, p)

	_, err = engine.ParsePolicy("retry")
	assert.ErrorContains(t, err, "unknown failure policy")
}
