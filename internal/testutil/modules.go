package testutil

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/registry"
)

// NoOpModule registers a single "noop" runner. It's useful for tests that
// should fail before execution begins but still need valid HCL that can
// pass registry validation.
type NoOpModule struct{}

// Register registers a single "noop" runner that takes no inputs and does
// nothing.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterRunner("noop", &registry.RegisteredRunner{
		Fn: func(context.Context, *registry.StepContext, any) (cty.Value, error) {
			return cty.NilVal, nil
		},
	})
}

// SimpleModule is a test helper for easily creating a mock module that
// registers a single runner.
type SimpleModule struct {
	RunnerName string
	Runner     *registry.RegisteredRunner
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.RunnerName != "" && m.Runner != nil {
		r.RegisterRunner(m.RunnerName, m.Runner)
	}
}
