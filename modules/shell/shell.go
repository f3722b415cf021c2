// Package shell runs commands inside the run's workspace, either directly
// on the host or wrapped in the workflow's pinned container image.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/workflow"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Command string            `hcl:"command"`
	Env     map[string]string `hcl:"env,optional"`
	WorkDir string            `hcl:"work_dir,optional"`
}

// containerWorkspace is where the run workspace is mounted inside the
// workflow's container.
const containerWorkspace = "/workspace"

// buildCommand translates the input into the argv executed for the step.
// With a container configured the command is wrapped in a single-use
// `docker run`; otherwise it runs through the host shell.
func buildCommand(input *Input, sc *registry.StepContext) (string, []string) {
	workDir := input.WorkDir

	if sc.Container == nil {
		dir := sc.Workspace
		if workDir != "" {
			dir = filepath.Join(dir, workDir)
		}
		return "sh", []string{"-c", "cd " + shellQuote(dir) + " && " + input.Command}
	}

	args := []string{
		"run", "--rm",
		"-v", sc.Workspace + ":" + containerWorkspace,
	}

	dir := containerWorkspace
	if workDir != "" {
		dir = filepath.Join(containerWorkspace, workDir)
	}
	args = append(args, "-w", dir)

	for _, name := range sortedKeys(input.Env) {
		args = append(args, "-e", name+"="+input.Env[name])
	}

	args = append(args, containerOptions(sc.Container)...)
	args = append(args, sc.Container.Image, "sh", "-c", input.Command)
	return "docker", args
}

// containerOptions turns the workflow's security options into docker
// arguments.
func containerOptions(c *workflow.Container) []string {
	var args []string
	for _, opt := range c.Options {
		args = append(args, "--security-opt", opt)
	}
	return args
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellQuote wraps s in single quotes for safe interpolation into sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// OnRunShell is the handler for the 'shell' runner.
func OnRunShell(ctx context.Context, sc *registry.StepContext, input any) (cty.Value, error) {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx).With("runner", "shell")

	name, args := buildCommand(in, sc)
	logger.Info("Executing command", "command", in.Command, "containerized", sc.Container != nil)

	cmd := exec.CommandContext(ctx, name, args...)
	if sc.Container == nil {
		cmd.Env = append(append([]string{}, sc.Environ...), flattenEnv(in.Env)...)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	stdout := output.String()
	if stdout != "" {
		logger.Debug("Command output", "output", stdout)
	}
	if err != nil {
		return cty.NilVal, fmt.Errorf("command %q failed: %w\n%s", in.Command, err, stdout)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"exit_code": cty.NumberIntVal(0),
		"stdout":    cty.StringVal(stdout),
	}), nil
}

func flattenEnv(env map[string]string) []string {
	flat := make([]string, 0, len(env))
	for _, name := range sortedKeys(env) {
		flat = append(flat, name+"="+env[name])
	}
	return flat
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("shell", &registry.RegisteredRunner{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunShell,
	})
}
