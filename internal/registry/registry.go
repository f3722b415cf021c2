// Package registry holds the runner types a covflow binary knows how to
// execute. Modules register their runners at startup; registry validation is
// a startup gate, so a workflow referencing an unknown runner never reaches
// the executor.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/workflow"
)

// StepContext carries the per-run environment a runner executes in.
type StepContext struct {
	// RunID is the unique identifier of the run this step belongs to.
	RunID string
	// Workflow is the name of the workflow being executed.
	Workflow string
	// Workspace is the run's private working directory. Runners resolve
	// relative paths against it and must not write outside it.
	Workspace string
	// Event is the repository event that triggered the run. Nil for runs
	// started directly without an event.
	Event event.Event
	// Container is the workflow's pinned execution image, or nil when steps
	// run directly on the host.
	Container *workflow.Container
	// Environ is the base environment for command-running steps.
	Environ []string
}

// RunFunc executes a step. The input is the value produced by the runner's
// NewInput constructor, populated from the step's decoded arguments; it is
// nil for runners that declare no input. The returned cty.Value becomes the
// step's output, addressable by dependent steps.
type RunFunc func(ctx context.Context, sc *StepContext, input any) (cty.Value, error)

// RegisteredRunner couples a runner's input constructor with its handler.
type RegisteredRunner struct {
	// NewInput returns a pointer to a fresh input struct with hcl field
	// tags, or nil for runners without arguments.
	NewInput func() any
	// Fn is the step handler.
	Fn RunFunc
}

// Module is the interface all compiled-in runner modules implement.
type Module interface {
	Register(r *Registry)
}

// Registry maps runner type names to their registered handlers.
type Registry struct {
	runners map[string]*RegisteredRunner
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{runners: make(map[string]*RegisteredRunner)}
}

// RegisterRunner adds a runner under the given type name. Registering the
// same name twice panics: that is a programmer error in module wiring.
func (r *Registry) RegisterRunner(name string, rr *RegisteredRunner) {
	if _, exists := r.runners[name]; exists {
		panic(fmt.Sprintf("registry: runner %q registered twice", name))
	}
	r.runners[name] = rr
}

// Runner looks up a runner by type name.
func (r *Registry) Runner(name string) (*RegisteredRunner, bool) {
	rr, ok := r.runners[name]
	return rr, ok
}

// RunnerTypes returns the sorted list of registered runner type names.
func (r *Registry) RunnerTypes() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the integrity of the registry and that every step in the
// given workflows is bound to a registered runner.
func (r *Registry) Validate(ctx context.Context, set *workflow.Set) error {
	logger := ctxlog.FromContext(ctx)

	for name, rr := range r.runners {
		if rr == nil || rr.Fn == nil {
			return fmt.Errorf("runner %q has no handler", name)
		}
	}

	for _, wf := range set.Workflows {
		for _, step := range wf.Steps {
			if _, ok := r.runners[step.RunnerType]; !ok {
				return fmt.Errorf("workflow %q: step %q uses unknown runner type %q (registered: %v)",
					wf.Name, step.ID(), step.RunnerType, r.RunnerTypes())
			}
		}
	}

	logger.Debug("Registry validation passed.", "runners", len(r.runners), "workflows", len(set.Workflows))
	return nil
}
