package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"

	"github.com/specialistvlad/datagridgo/internal/cache"
	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/specialistvlad/datagridgo/internal/telemetry"
)

// Version is reported in telemetry and mixed into the cache environment.
var Version = "dev"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	registry   *registry.Registry
	config     *Config
	telemetry  *telemetry.Provider
	httpServer *http.Server

	stdin  io.Reader
	stdout io.Writer
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Logs go to logW; records read from and written to the standard streams
// unless the config names files.
func NewApp(logW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	if err := reg.Install(modules...); err != nil {
		// Two built-in modules claiming one name is a programmer error.
		panic(fmt.Errorf("failed to register operators: %w", err))
	}
	logger.Debug("All operator modules registered.", "modules", len(modules), "operators", reg.Len())

	tp, err := telemetry.Init(telemetry.Config{
		ServiceName:    "datagridgo",
		ServiceVersion: Version,
		Metrics:        cfg.HealthcheckPort > 0,
		Tracing:        cfg.LogLevel == "debug",
		Logger:         logger,
	})
	if err != nil {
		panic(fmt.Errorf("failed to initialise telemetry: %w", err))
	}

	return &App{
		ctx:       ctx,
		logger:    logger,
		registry:  reg,
		config:    cfg,
		telemetry: tp,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
}

// WithStreams replaces the streams used when no input or output path is set.
func (a *App) WithStreams(in io.Reader, out io.Writer) *App {
	a.stdin, a.stdout = in, out
	return a
}

// Registry returns the application's registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Operators lists the registered operator names, sorted.
func (a *App) Operators() []string {
	return a.registry.Names()
}

// environment is the host fingerprint mixed into every cache key: the
// configured entries plus the operator set and the toolchain.
func (a *App) environment() cache.Environment {
	env := cache.Environment{
		"datagridgo.version":  Version,
		"datagridgo.registry": a.registry.Fingerprint(),
		"go.version":          runtime.Version(),
	}
	for k, v := range a.config.Env {
		env[k] = v
	}
	return env
}
