package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/observability"
	"github.com/covflow/covflow/internal/registry"
)

// Executor runs a graph's steps concurrently on a worker pool, unlocking
// dependents as their dependencies finish.
type Executor struct {
	graph      *Graph
	numWorkers int
	registry   *registry.Registry
	sc         *registry.StepContext
	wg         sync.WaitGroup
}

// NewExecutor creates an executor for the given graph.
func NewExecutor(graph *Graph, workers int, r *registry.Registry, sc *registry.StepContext) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		graph:      graph,
		numWorkers: workers,
		registry:   r,
		sc:         sc,
	}
}

// Run executes the entire graph and returns an error if any node fails. A
// failing node cancels the run and transitively skips its dependents; the
// returned error reports the root cause, not the skip symptoms.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, node := range e.graph.Nodes {
		if node.depCount.Load() == 0 {
			readyChan <- node
			rootCount++
		}
	}
	logger.Debug("Executor found root nodes.", "count", rootCount)

	e.wg.Add(len(e.graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	var failedNodes []string
	var rootCause error
	for _, node := range e.graph.Nodes {
		if node.State() != Failed {
			continue
		}
		logger.Error("Step failed.", "step", node.ID, "error", node.Error)
		// A "skipped" error is a symptom, not a cause.
		if node.Error != nil && !strings.HasPrefix(node.Error.Error(), "skipped") && !errors.Is(node.Error, context.Canceled) {
			failedNodes = append(failedNodes, node.ID)
			if rootCause == nil {
				rootCause = node.Error
			}
		}
	}

	if rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCause)
	}
	return nil
}

// skipDependents recursively marks all downstream nodes as failed.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping step due to upstream failure.", "step", dependent.ID, "dependency", node.ID)
			dependent.setState(Failed)
			dependent.Error = fmt.Errorf("skipped due to upstream failure of '%s'", node.ID)
			observability.StepsTotal.WithLabelValues(dependent.Step.RunnerType, "skipped").Inc()
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for node := range readyChan {
		stepLogger := logger.With("workerID", workerID, "step", node.ID)

		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				stepLogger.Warn("Context canceled, skipping step.")
				node.setState(Failed)
				node.Error = ctx.Err()
				observability.StepsTotal.WithLabelValues(node.Step.RunnerType, "skipped").Inc()
				e.wg.Done()
				e.skipDependents(ctx, node)
			})
			continue
		}

		stepLogger.Info("▶️ Starting step")
		node.setState(Running)

		if err := e.executeStep(ctx, node); err != nil {
			stepLogger.Error("Step execution failed.", "error", err)
			node.setState(Failed)
			node.Error = err
			cancel()
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		stepLogger.Info("✅ Finished step")
		node.setState(Done)

		for _, dependent := range node.Dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
}

// executeStep decodes the node's arguments against the runner's input struct
// and invokes the handler.
func (e *Executor) executeStep(ctx context.Context, node *Node) error {
	rr, ok := e.registry.Runner(node.Step.RunnerType)
	if !ok {
		return fmt.Errorf("unknown runner type %q", node.Step.RunnerType)
	}

	var input any
	if rr.NewInput != nil {
		input = rr.NewInput()
		if node.Step.Arguments != nil {
			evalCtx := buildEvalContext(node, e.sc)
			if diags := gohcl.DecodeBody(node.Step.Arguments, evalCtx, input); diags.HasErrors() {
				return fmt.Errorf("decoding arguments of '%s': %w", node.ID, diags)
			}
		}
	}

	start := time.Now()
	output, err := rr.Fn(ctx, e.sc, input)
	observability.StepDurationSeconds.WithLabelValues(node.Step.RunnerType).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.StepsTotal.WithLabelValues(node.Step.RunnerType, "failed").Inc()
		return err
	}
	observability.StepsTotal.WithLabelValues(node.Step.RunnerType, "succeeded").Inc()

	node.Output = output
	return nil
}
