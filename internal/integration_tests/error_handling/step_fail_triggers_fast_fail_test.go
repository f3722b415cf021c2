package integration_tests

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/testutil"
)

// mockFailerModule registers a "failer" runner that returns the injected
// error and a "spy" runner that records whether it executed.
type mockFailerModule struct {
	wasSpyExecuted *atomic.Bool
	injectedError  error
}

func (m *mockFailerModule) Register(r *registry.Registry) {
	r.RegisterRunner("failer", &registry.RegisteredRunner{
		Fn: func(context.Context, *registry.StepContext, any) (cty.Value, error) {
			return cty.NilVal, m.injectedError
		},
	})
	r.RegisterRunner("spy", &registry.RegisteredRunner{
		Fn: func(context.Context, *registry.StepContext, any) (cty.Value, error) {
			m.wasSpyExecuted.Store(true) // If this runs, the test has failed.
			return cty.NilVal, nil
		},
	})
}

func TestErrorHandling_FailingStep_TriggersFailFast(t *testing.T) {
	files := map[string]string{
		"main.hcl": `
			workflow "broken" {
				step "failer" "A" {}

				step "spy" "B" {
					depends_on = ["failer.A"]
				}
			}
		`,
	}

	expectedErr := errors.New("handler failed as expected")
	var wasSpyExecuted atomic.Bool
	mock := &mockFailerModule{wasSpyExecuted: &wasSpyExecuted, injectedError: expectedErr}

	result := testutil.RunWorkflowTest(t, files, mock)

	require.Error(t, result.Err)
	require.ErrorIs(t, result.Err, expectedErr)
	require.Contains(t, result.Err.Error(), "execution failed for")
	require.False(t, wasSpyExecuted.Load(), "fail-fast did not work: a step dependent on the failing step was executed")
}
