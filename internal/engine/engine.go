package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/dag"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/scheduler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a completed run.
type Result struct {
	Records record.Batch
	Stats   Stats
}

// run holds the state of one Run call. Per-node slices are indexed by plan
// index; each slot is written by exactly one goroutine and read only after
// its wave has been waited on.
type run struct {
	plan    *dag.Plan
	opts    Options
	input   record.Batch
	envHash string

	outputs []record.Batch
	pending []atomic.Int32
	stats   []NodeStats
	fatal   []error

	aborted atomic.Bool
}

// Run executes plan over input. A nil error means every node completed (under
// SkipErrors, possibly with dropped records). Any abort is reported as a
// *RunError carrying the partial stats.
func Run(ctx context.Context, plan *dag.Plan, input record.Batch, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	ctx = ctxlog.With(ctx, "run_id", opts.RunID)
	logger := ctxlog.FromContext(ctx)
	initMetrics(logger)

	ctx, span := tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("run.id", opts.RunID),
			attribute.String("run.policy", string(opts.Policy)),
			attribute.Int("run.nodes", plan.Len()),
			attribute.Int("run.records_in", len(input)),
		),
	)
	defer span.End()
	start := time.Now()

	r := &run{
		plan:    plan,
		opts:    opts,
		input:   input,
		envHash: cache.EnvHash(opts.Env),
		outputs: make([]record.Batch, plan.Len()),
		pending: make([]atomic.Int32, plan.Len()),
		stats:   make([]NodeStats, plan.Len()),
		fatal:   make([]error, plan.Len()),
	}
	for i, n := range plan.Nodes() {
		r.stats[i] = NodeStats{Index: i, Name: n.Name, Operator: n.Operator, State: Pending, Cache: CacheDisabled}
		r.pending[i].Store(int32(len(plan.Dependents(i))))
	}

	waves, err := scheduler.Waves(plan)
	if err != nil {
		stats := r.summary(start, 0)
		return nil, &RunError{Index: -1, Err: err, Stats: &stats}
	}
	for w, wave := range waves {
		for _, i := range wave {
			r.stats[i].Wave = w
		}
	}

	logger.Info("▶️ Starting pipeline run.",
		"nodes", plan.Len(),
		"waves", len(waves),
		"records", len(input),
		"policy", string(opts.Policy),
		"parallelism", opts.Parallelism,
	)

	for w, wave := range scheduler.All(plan) {
		if r.stopped(ctx) {
			break
		}
		logger.Debug("Starting wave.", "wave", w, "nodes", len(wave))
		r.runWave(ctx, wave)
	}

	if r.stopped(ctx) {
		for i := range r.stats {
			if r.stats[i].State == Pending {
				r.stats[i].State = Skipped
			}
		}
	}

	stats := r.summary(start, len(waves))
	if runLatency != nil {
		runLatency.Record(ctx, stats.Elapsed.Seconds())
	}

	for i, err := range r.fatal {
		if err == nil {
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Pipeline run aborted.", "step", r.stats[i].Name, "error", err)
		return nil, &RunError{Node: r.stats[i].Name, Index: i, Err: err, Stats: &stats}
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Pipeline run cancelled.", "error", err)
		return nil, &RunError{Index: -1, Err: err, Stats: &stats}
	}

	out := r.output()
	stats.RecordsOut = len(out)
	span.SetAttributes(attribute.Int("run.records_out", len(out)), attribute.Int("run.errors", stats.Errors))
	logger.Info("✅ Pipeline run finished.",
		"records_out", len(out),
		"errors", stats.Errors,
		"cache_hits", stats.CacheHits,
		"duration", stats.Elapsed,
	)
	return &Result{Records: out, Stats: stats}, nil
}

// runWave runs every node of a wave, at most Parallelism at a time. Node
// failures are recorded in the run state, never returned to the group, so one
// failing node does not cancel its siblings.
func (r *run) runWave(ctx context.Context, wave scheduler.Wave) {
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)
	for _, i := range wave {
		g.Go(func() error {
			if r.stopped(ctx) {
				r.stats[i].State = Skipped
				return nil
			}
			r.runNode(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// stopped reports whether new nodes must not start.
func (r *run) stopped(ctx context.Context) bool {
	return r.aborted.Load() || ctx.Err() != nil
}

// gatherInput assembles node i's input: a private copy of the run input for
// roots, otherwise the dependencies' outputs in declaration order. Outputs
// feeding more than one consumer are cloned per consumer. Once the last
// consumer has taken its copy the output slot is released.
func (r *run) gatherInput(i int) record.Batch {
	deps := r.plan.Deps(i)
	if len(deps) == 0 {
		return r.input.Clone()
	}
	parts := make([]record.Batch, len(deps))
	for k, d := range deps {
		out := r.outputs[d]
		if len(r.plan.Dependents(d)) > 1 {
			out = out.Clone()
		}
		parts[k] = out
		r.release(d)
	}
	return record.Concat(parts...)
}

// release records that one consumer of d has read its output. The consumer
// that brings the count to zero clears the slot; every other consumer has
// finished reading by then. Sinks have no consumers and are never released.
func (r *run) release(d int) {
	if r.pending[d].Add(-1) == 0 {
		r.outputs[d] = nil
	}
}

// output concatenates the sinks' outputs. An empty plan passes its input
// through.
func (r *run) output() record.Batch {
	if r.plan.Len() == 0 {
		return r.input.Clone()
	}
	sinks := r.plan.Sinks()
	parts := make([]record.Batch, len(sinks))
	for k, s := range sinks {
		parts[k] = r.outputs[s]
	}
	return record.Concat(parts...)
}

func (r *run) summary(start time.Time, waves int) Stats {
	s := Stats{
		RunID:     r.opts.RunID,
		Policy:    r.opts.Policy,
		Waves:     waves,
		Nodes:     r.stats,
		RecordsIn: len(r.input),
		Elapsed:   time.Since(start),
	}
	s.finalize()
	return s
}
