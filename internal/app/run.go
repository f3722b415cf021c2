package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/githubstatus"
	"github.com/covflow/covflow/internal/run"
	"github.com/covflow/covflow/internal/server"
	"github.com/covflow/covflow/internal/trigger"
	"github.com/covflow/covflow/internal/workflow"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	if a.config.Serve {
		return a.serve(ctx)
	}
	return a.runOnce(ctx)
}

// serve starts the webhook server and blocks until ctx is canceled.
func (a *App) serve(ctx context.Context) error {
	cfg, err := server.ConfigFromEnv()
	if err != nil {
		return err
	}
	srv := server.New(cfg, a.logger, a.workflows, a.newOrchestrator(cfg.GitHubToken))
	return srv.ListenAndServe(ctx)
}

// runOnce executes matching workflows once and exits. Without an event file
// every loaded workflow runs; with one, trigger matching decides.
func (a *App) runOnce(ctx context.Context) error {
	var ev event.Event
	if a.config.EventPath != "" {
		payload, err := os.ReadFile(a.config.EventPath)
		if err != nil {
			return fmt.Errorf("failed to read event file: %w", err)
		}
		ev, err = event.Parse(event.Kind(a.config.EventType), payload)
		if err != nil {
			return fmt.Errorf("failed to parse event file: %w", err)
		}
	}

	var matched []*workflow.Workflow
	switch {
	case ev == nil || a.config.Force:
		for _, name := range a.workflows.Names() {
			wf, _ := a.workflows.Get(name)
			matched = append(matched, wf)
		}
	default:
		matched = trigger.Match(a.workflows, ev)
	}

	if len(matched) == 0 {
		a.logger.Warn("No workflow triggers matched the event, nothing to run.")
		return nil
	}

	orchestrator := a.newOrchestrator(os.Getenv("COVFLOW_GITHUB_TOKEN"))

	a.logger.Info("🚀 Starting workflow runs...", "count", len(matched))
	var errs []error
	for _, wf := range matched {
		r := orchestrator.NewRun(wf, ev)
		a.logger.Info("▶️ Starting workflow", "workflow", wf.Name, "run_id", r.ID)
		if err := orchestrator.Execute(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("workflow %q: %w", wf.Name, err))
		}
	}
	a.logger.Info("🏁 Execution finished.")

	return errors.Join(errs...)
}

// RunEvent matches ev against the loaded workflows and executes the matches
// synchronously. Used by the test harness.
func (a *App) RunEvent(ctx context.Context, ev event.Event) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	orchestrator := a.newOrchestrator("")

	var errs []error
	for _, wf := range trigger.Match(a.workflows, ev) {
		r := orchestrator.NewRun(wf, ev)
		if err := orchestrator.Execute(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("workflow %q: %w", wf.Name, err))
		}
	}
	return errors.Join(errs...)
}

// newOrchestrator wires a run orchestrator, with commit status reporting
// when a token is available.
func (a *App) newOrchestrator(token string) *run.Orchestrator {
	var reporter run.StatusReporter
	if token != "" {
		reporter = githubstatus.NewReporter(token)
	}
	return run.NewOrchestrator(a.registry, reporter, a.config.WorkerCount)
}
