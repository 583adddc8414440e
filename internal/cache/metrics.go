package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("datagridgo.cache")
	meter  = otel.Meter("datagridgo.cache")
)

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	cacheShared metric.Int64Counter
	cacheErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"cache_hits_total",
			metric.WithDescription("Total number of node results served from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"cache_misses_total",
			metric.WithDescription("Total number of node results computed on a miss"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheShared, err = meter.Int64Counter(
			"cache_shared_total",
			metric.WithDescription("Total number of lookups that joined an in-flight computation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheErrors, err = meter.Int64Counter(
			"cache_errors_total",
			metric.WithDescription("Total number of absorbed cache store failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordCacheMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordCacheShared(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheShared.Add(ctx, 1)
}

func recordCacheError(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// startLookupSpan creates a span for one GetOrCompute call.
func startLookupSpan(ctx context.Context, key Key) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Cache.GetOrCompute",
		trace.WithAttributes(
			attribute.String("cache.key.data", key.Data),
			attribute.String("cache.key.code", key.Code),
		),
	)
}

func setLookupSpanResult(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}
