package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/cache/badgerstore"
	"github.com/specialistvlad/datagridgo/internal/cache/memstore"
	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/dag"
	"github.com/specialistvlad/datagridgo/internal/engine"
	"github.com/specialistvlad/datagridgo/internal/pipeline"
	"github.com/specialistvlad/datagridgo/internal/record"
)

// Run executes the configured pipeline over the configured input.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")
	defer func() {
		if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Telemetry shutdown failed.", "error", err)
		}
	}()

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
		defer a.closeHealthCheckServer()
	}

	plan, err := a.Compile(ctx)
	if err != nil {
		return err
	}

	input, err := a.readInput()
	if err != nil {
		return err
	}
	a.logger.Debug("Input loaded.", "records", len(input))

	c, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	policy, err := engine.ParsePolicy(a.config.Policy)
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Starting pipeline execution...")
	res, err := engine.Run(ctx, plan, input, engine.Options{
		Parallelism: a.config.Parallelism,
		Policy:      policy,
		Cache:       c,
		Env:         a.environment(),
	})
	if err != nil {
		var runErr *engine.RunError
		if errors.As(err, &runErr) && runErr.Stats != nil {
			if serr := a.writeStats(*runErr.Stats); serr != nil {
				a.logger.Warn("Could not write stats of the failed run.", "error", serr)
			}
		}
		return fmt.Errorf("execution failed: %w", err)
	}

	if err := a.writeOutput(res.Records); err != nil {
		return err
	}
	if err := a.writeStats(res.Stats); err != nil {
		return err
	}
	a.logger.Info("🏁 Execution finished.", "records_out", len(res.Records), "errors", res.Stats.Errors)
	a.logger.Debug("App.Run method finished.")
	return nil
}

// Compile loads the pipeline file and compiles it against the registry.
func (a *App) Compile(ctx context.Context) (*dag.Plan, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	p, err := pipeline.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return nil, err
	}
	plan, err := dag.Compile(ctx, p, a.registry)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Pipeline compiled.", "nodes", plan.Len(), "sinks", len(plan.Sinks()))
	return plan, nil
}

func (a *App) readInput() (record.Batch, error) {
	r := a.stdin
	if a.config.InputPath != "" {
		f, err := os.Open(a.config.InputPath)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := record.ReadJSONL(r, a.config.AssignIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

func (a *App) writeOutput(b record.Batch) error {
	return a.writeTo(a.config.OutputPath, func(w io.Writer) error {
		return record.WriteJSONL(w, b)
	})
}

func (a *App) writeStats(s engine.Stats) error {
	if a.config.StatsPath == "" {
		return nil
	}
	return a.writeTo(a.config.StatsPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	})
}

// writeTo writes to path, or to the App's output stream when path is empty.
func (a *App) writeTo(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(a.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// openCache builds the cache selected by CacheMode. The returned func
// releases it.
func (a *App) openCache(ctx context.Context) (*cache.Cache, func(), error) {
	logger := ctxlog.FromContext(ctx)
	switch a.config.CacheMode {
	case CacheMemory:
		logger.Debug("Using in-memory cache.")
		return cache.New(memstore.New()), func() {}, nil
	case CacheDisk:
		cfg := badgerstore.DefaultConfig(a.config.CacheDir)
		cfg.Logger = logger.With("component", "badger")
		store, err := badgerstore.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		logger.Debug("Using on-disk cache.", "dir", a.config.CacheDir)
		return cache.New(store), func() {
			if err := store.Close(); err != nil {
				logger.Warn("Closing the cache failed.", "error", err)
			}
		}, nil
	default:
		return nil, func() {}, nil
	}
}
