// Package checkout fetches the commit that triggered the run into the
// workspace. The clone is shallow and pinned to the exact SHA, so a branch
// moving underneath the run cannot change what gets tested.
package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block. Both fields
// default to the triggering event and only need setting for runs started
// without one.
type Input struct {
	Repository string `hcl:"repository,optional"`
	SHA        string `hcl:"sha,optional"`
}

// resolve fills the checkout target from the event when the arguments leave
// it open.
func resolve(input *Input, sc *registry.StepContext) (cloneURL, sha string, err error) {
	cloneURL = input.Repository
	sha = input.SHA

	if sc.Event != nil {
		if cloneURL == "" {
			cloneURL = sc.Event.Repo().CloneURL
		}
		if sha == "" {
			sha = sc.Event.SHA()
		}
	}

	if cloneURL == "" {
		return "", "", errors.New("no repository to check out: set 'repository' or run against an event")
	}
	if sha == "" {
		return "", "", errors.New("no commit to check out: set 'sha' or run against an event")
	}
	return cloneURL, sha, nil
}

// gitCommands is the argv sequence executed in the workspace.
func gitCommands(cloneURL, sha string) [][]string {
	return [][]string{
		{"git", "init", "--quiet"},
		{"git", "remote", "add", "origin", cloneURL},
		{"git", "fetch", "--quiet", "--depth", "1", "origin", sha},
		{"git", "checkout", "--quiet", "--detach", "FETCH_HEAD"},
	}
}

// OnRunCheckout is the handler for the 'checkout' runner.
func OnRunCheckout(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "checkout")

	cloneURL, sha, err := resolve(in, sc)
	if err != nil {
		return cty.NilVal, err
	}
	logger.Info("Checking out commit", "repository", cloneURL, "sha", sha)

	for _, argv := range gitCommands(cloneURL, sha) {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = sc.Workspace
		cmd.Env = sc.Environ

		var output bytes.Buffer
		cmd.Stdout = &output
		cmd.Stderr = &output
		if err := cmd.Run(); err != nil {
			return cty.NilVal, fmt.Errorf("%v failed: %w\n%s", argv, err, output.String())
		}
	}

	return cty.ObjectVal(map[string]cty.Value{
		"sha":  cty.StringVal(sha),
		"path": cty.StringVal(sc.Workspace),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("checkout", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunCheckout,
	})
}
