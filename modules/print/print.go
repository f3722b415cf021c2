// Package print logs a message, useful for debugging workflow wiring and
// step outputs.
package print

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print runner.
type Input struct {
	Message string `hcl:"message"`
}

// OnRunPrint is the handler for the 'print' runner.
func OnRunPrint(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	ctxlog.FromContext(ctx).Info("🖨️ "+in.Message, "runner", "print")
	return cty.NilVal, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("print", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunPrint,
	})
}
