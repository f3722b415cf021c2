// Package env_vars exposes the run's environment to dependent steps.
package env_vars

import (
	"context"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Names filters the output to the listed variables. Empty means all.
	Names []string `hcl:"names,optional"`
}

// OnRunEnvVars is the handler for the 'env_vars' runner.
func OnRunEnvVars(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)

	wanted := make(map[string]bool, len(in.Names))
	for _, name := range in.Names {
		wanted[name] = true
	}

	envMap := make(map[string]cty.Value)
	for _, e := range sc.Environ {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			continue
		}
		if len(wanted) > 0 && !wanted[pair[0]] {
			continue
		}
		envMap[pair[0]] = cty.StringVal(pair[1])
	}

	all := cty.MapValEmpty(cty.String)
	if len(envMap) > 0 {
		all = cty.MapVal(envMap)
	}
	return cty.ObjectVal(map[string]cty.Value{"all": all}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("env_vars", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunEnvVars,
	})
}
