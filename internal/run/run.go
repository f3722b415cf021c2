// Package run owns the lifecycle of a single workflow run: workspace
// creation, commit status reporting, graph execution and cleanup.
package run

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/dag"
	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/observability"
	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/workflow"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one execution of a workflow against an event.
type Run struct {
	ID         string
	Workflow   *workflow.Workflow
	Event      event.Event
	Workspace  string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// StatusReporter publishes a run's state against the commit that triggered
// it. Implementations that talk to a forge may fail transiently; the
// orchestrator treats reporting errors as non-fatal.
type StatusReporter interface {
	Report(ctx context.Context, repo event.Repository, sha, state, description string) error
}

// Orchestrator executes runs against a runner registry.
type Orchestrator struct {
	registry *registry.Registry
	reporter StatusReporter
	workers  int
}

// NewOrchestrator creates an orchestrator. reporter may be nil, in which
// case commit statuses are not published.
func NewOrchestrator(r *registry.Registry, reporter StatusReporter, workers int) *Orchestrator {
	return &Orchestrator{registry: r, reporter: reporter, workers: workers}
}

// NewRun prepares a pending run for the given workflow and event.
func (o *Orchestrator) NewRun(wf *workflow.Workflow, ev event.Event) *Run {
	return &Run{
		ID:       uuid.NewString(),
		Workflow: wf,
		Event:    ev,
		Status:   StatusPending,
	}
}

// Execute drives a run to completion. The workspace directory is created
// before the first step and removed after the last one regardless of the
// outcome.
func (o *Orchestrator) Execute(ctx context.Context, r *Run) error {
	logger := ctxlog.FromContext(ctx).With("run_id", r.ID, "workflow", r.Workflow.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	workspace, err := os.MkdirTemp("", "covflow-run-*")
	if err != nil {
		r.Status = StatusFailed
		r.Err = fmt.Errorf("creating workspace: %w", err)
		return r.Err
	}
	r.Workspace = workspace
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("Failed to remove workspace.", "path", workspace, "error", err)
		}
	}()

	o.report(ctx, r, "pending", "run queued")

	graph, err := dag.Build(ctx, r.Workflow, o.registry)
	if err != nil {
		return o.finish(ctx, r, fmt.Errorf("building execution graph: %w", err))
	}

	logger.Info("▶️ Starting run", "steps", len(graph.Nodes))
	r.Status = StatusRunning
	r.StartedAt = time.Now()
	observability.RunsInFlight.Inc()
	defer observability.RunsInFlight.Dec()

	sc := &registry.StepContext{
		RunID:     r.ID,
		Workflow:  r.Workflow.Name,
		Workspace: workspace,
		Event:     r.Event,
		Container: r.Workflow.Container,
		Environ:   os.Environ(),
	}

	executor := dag.NewExecutor(graph, o.workers, o.registry, sc)
	return o.finish(ctx, r, executor.Run(ctx))
}

// finish records the terminal state, emits metrics and publishes the final
// commit status.
func (o *Orchestrator) finish(ctx context.Context, r *Run, runErr error) error {
	logger := ctxlog.FromContext(ctx)
	r.FinishedAt = time.Now()
	if !r.StartedAt.IsZero() {
		observability.RunDurationSeconds.WithLabelValues(r.Workflow.Name).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}

	if runErr != nil {
		r.Status = StatusFailed
		r.Err = runErr
		observability.RunsTotal.WithLabelValues(r.Workflow.Name, string(StatusFailed)).Inc()
		logger.Error("Run failed.", "error", runErr)
		o.report(ctx, r, "failure", truncate(runErr.Error(), 140))
		return runErr
	}

	r.Status = StatusSucceeded
	observability.RunsTotal.WithLabelValues(r.Workflow.Name, string(StatusSucceeded)).Inc()
	logger.Info("✅ Run succeeded")
	o.report(ctx, r, "success", "all steps succeeded")
	return nil
}

// report publishes a commit status. Reporting failures are logged and
// swallowed: a broken forge connection must not change the run's outcome.
func (o *Orchestrator) report(ctx context.Context, r *Run, state, description string) {
	if o.reporter == nil || r.Event == nil || r.Event.SHA() == "" {
		return
	}
	if err := o.reporter.Report(ctx, r.Event.Repo(), r.Event.SHA(), state, description); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to report commit status.", "state", state, "error", err)
	}
}

// truncate caps s for use in commit status descriptions, which forges limit.
// Cuts on a rune boundary so a multi-byte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
