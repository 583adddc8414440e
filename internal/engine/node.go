package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/dag"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runNode executes node i and applies the failure policy to its outcome.
func (r *run) runNode(ctx context.Context, i int) {
	n := r.plan.Node(i)
	ns := &r.stats[i]

	ctx, span := tracer.Start(ctx, n.Name,
		trace.WithAttributes(
			attribute.String("pipeline.step", n.Name),
			attribute.String("pipeline.operator", n.Operator),
			attribute.Int("pipeline.wave", ns.Wave),
		),
	)
	defer span.End()
	trackActive(ctx, 1)
	defer trackActive(ctx, -1)

	ctx = ctxlog.With(ctx, "step", n.Name, "operator", n.Operator)
	logger := ctxlog.FromContext(ctx)
	logger.Info("▶️ Starting step")

	start := time.Now()
	in := r.gatherInput(i)
	ns.RecordsIn = len(in)

	ec := operator.NewExecContext(r.opts.RunID, n.Name, logger)
	res, err := r.execute(ctx, n, ec, in, ns)
	ns.Elapsed = time.Since(start)
	if counters := ec.Counters(); len(counters) > 0 {
		ns.Counters = counters
	}
	span.SetAttributes(attribute.String("pipeline.cache", string(ns.Cache)))

	if ctxErr := ctx.Err(); ctxErr != nil {
		ns.State = Interrupted
		ns.Err = ctxErr.Error()
		span.SetStatus(codes.Error, "interrupted")
		logger.Warn("Step interrupted.", "error", ctxErr)
		return
	}

	r.judge(ctx, i, n, ns, res, err)
	recordNode(ctx, ns)
	if ns.State == Failed {
		span.SetStatus(codes.Error, ns.Err)
	}
}

// execute obtains the node's result, through the cache when one is configured.
func (r *run) execute(ctx context.Context, n *dag.Node, ec *operator.ExecContext, in record.Batch, ns *NodeStats) (operator.Result, error) {
	c := r.opts.Cache
	if c == nil {
		return apply(ctx, n, ec, in)
	}

	key, err := cache.NewKey(in, n.CodeHash, r.envHash)
	if err != nil {
		ns.Cache = CacheBypass
		ns.Warnings = append(ns.Warnings, fmt.Sprintf("cache bypassed: %v", err))
		return apply(ctx, n, ec, in)
	}

	// fresh keeps the original error values when this call did the work.
	var fresh *operator.Result
	entry, outcome, err := c.GetOrCompute(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		start := time.Now()
		res, err := apply(ctx, n, ec, in)
		if err != nil {
			return nil, err
		}
		fresh = &res
		return cache.NewEntry(res, time.Since(start)), nil
	})
	for _, w := range outcome.Warnings {
		ns.Warnings = append(ns.Warnings, w.Error())
	}
	switch {
	case outcome.Hit:
		ns.Cache = CacheHit
	case outcome.Shared:
		ns.Cache = CacheShared
	default:
		ns.Cache = CacheMiss
	}
	if err != nil {
		return operator.Result{}, err
	}
	if fresh != nil {
		return *fresh, nil
	}
	return entry.Result(), nil
}

// apply calls the operator, converting a panic into a batch-level error.
func apply(ctx context.Context, n *dag.Node, ec *operator.ExecContext, in record.Batch) (res operator.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operator panicked: %v", p)
		}
	}()
	return n.Op.Apply(ctx, ec, in)
}

// judge applies the failure policy and publishes the node's output.
func (r *run) judge(ctx context.Context, i int, n *dag.Node, ns *NodeStats, res operator.Result, err error) {
	logger := ctxlog.FromContext(ctx)

	if err != nil {
		opErr := &OperatorError{Node: n.Name, Operator: n.Operator, RecordIndex: -1, Err: err}
		ns.State = Failed
		ns.Errors = 1
		ns.Err = opErr.Error()
		if r.opts.Policy == FailFast {
			logger.Error("Step failed.", "error", err)
			r.abort(i, opErr)
			return
		}
		logger.Warn("Step failed, continuing with an empty batch.", "error", err)
		recordDropped(ctx, ns, ns.RecordsIn)
		return
	}

	if len(res.Failures) > 0 {
		ns.Errors = len(res.Failures)
		for _, f := range res.Failures {
			ns.Failures = append(ns.Failures, fmt.Sprintf("record #%d (%s): %v", f.Index, f.ID, f.Err))
		}
		if r.opts.Policy == FailFast {
			f := res.Failures[0]
			opErr := &OperatorError{Node: n.Name, Operator: n.Operator, RecordIndex: f.Index, RecordID: f.ID, Err: f.Err}
			ns.State = Failed
			ns.Err = opErr.Error()
			logger.Error("Step failed on a record.", "record", f.ID, "error", f.Err)
			r.abort(i, opErr)
			return
		}
		logger.Warn("Dropped failed records.", "count", len(res.Failures))
		recordDropped(ctx, ns, len(res.Failures))
	}

	r.outputs[i] = res.Records
	ns.RecordsOut = len(res.Records)
	ns.State = Done
	logger.Info("✅ Finished step",
		"records_in", ns.RecordsIn,
		"records_out", ns.RecordsOut,
		"cache", string(ns.Cache),
	)
}

func (r *run) abort(i int, err error) {
	r.fatal[i] = err
	r.aborted.Store(true)
}
