package engine

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("datagridgo.engine")
	meter  = otel.Meter("datagridgo.engine")
)

var (
	nodeLatency    metric.Float64Histogram
	nodeSuccesses  metric.Int64Counter
	nodeFailures   metric.Int64Counter
	recordsDropped metric.Int64Counter
	activeNodes    metric.Int64UpDownCounter
	runLatency     metric.Float64Histogram

	metricsOnce sync.Once
)

// initMetrics lazily creates the instruments. Failures are logged once and
// leave the affected instrument nil; execution continues without it.
func initMetrics(logger *slog.Logger) {
	metricsOnce.Do(func() {
		var initErrors []string
		var err error

		nodeLatency, err = meter.Float64Histogram("pipeline_node_duration_seconds",
			metric.WithDescription("Time spent executing each pipeline node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		nodeSuccesses, err = meter.Int64Counter("pipeline_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_successes: "+err.Error())
		}

		nodeFailures, err = meter.Int64Counter("pipeline_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		recordsDropped, err = meter.Int64Counter("pipeline_records_dropped_total",
			metric.WithDescription("Number of records dropped by the skip_errors policy"),
		)
		if err != nil {
			initErrors = append(initErrors, "records_dropped: "+err.Error())
		}

		activeNodes, err = meter.Int64UpDownCounter("pipeline_active_nodes",
			metric.WithDescription("Number of currently executing nodes"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_nodes: "+err.Error())
		}

		runLatency, err = meter.Float64Histogram("pipeline_run_duration_seconds",
			metric.WithDescription("Total pipeline run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Error("Failed to initialize some pipeline metrics (observability degraded).",
				"failed_count", len(initErrors),
				"errors", initErrors,
			)
		}
	})
}

func recordNode(ctx context.Context, ns *NodeStats) {
	attrs := metric.WithAttributes(
		attribute.String("step", ns.Name),
		attribute.String("operator", ns.Operator),
	)
	if nodeLatency != nil {
		nodeLatency.Record(ctx, ns.Elapsed.Seconds(), attrs)
	}
	switch ns.State {
	case Done:
		if nodeSuccesses != nil {
			nodeSuccesses.Add(ctx, 1, attrs)
		}
	case Failed:
		if nodeFailures != nil {
			nodeFailures.Add(ctx, 1, attrs)
		}
	}
}

func recordDropped(ctx context.Context, ns *NodeStats, n int) {
	if recordsDropped != nil && n > 0 {
		recordsDropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("step", ns.Name)))
	}
}

func trackActive(ctx context.Context, delta int64) {
	if activeNodes != nil {
		activeNodes.Add(ctx, delta)
	}
}
