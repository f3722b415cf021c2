package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	registry  *registry.Registry
	workflows *workflow.Set
	config    *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	set, err := workflow.Load(ctx, cfg.WorkflowsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}
	logger.Info("Workflows loaded successfully.", "workflows_found", len(set.Names()))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All runner modules registered.", "count", len(modules))

	if err := reg.Validate(ctx, set); err != nil {
		return nil, fmt.Errorf("registry validation failed: %w", err)
	}

	return &App{
		outW:      outW,
		logger:    logger,
		registry:  reg,
		workflows: set,
		config:    cfg,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Workflows returns the loaded workflow set. This is primarily for testing.
func (a *App) Workflows() *workflow.Set {
	return a.workflows
}
