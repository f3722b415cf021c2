package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/workflow"
)

func TestBuildCommand_Host(t *testing.T) {
	sc := &registry.StepContext{Workspace: "/tmp/ws"}
	name, args := buildCommand(&Input{Command: "cargo test"}, sc)

	require.Equal(t, "sh", name)
	require.Equal(t, []string{"-c", "cd '/tmp/ws' && cargo test"}, args)
}

func TestBuildCommand_HostWorkDir(t *testing.T) {
	sc := &registry.StepContext{Workspace: "/tmp/ws"}
	_, args := buildCommand(&Input{Command: "ls", WorkDir: "sub"}, sc)
	require.Equal(t, []string{"-c", "cd '/tmp/ws/sub' && ls"}, args)
}

func TestBuildCommand_Container(t *testing.T) {
	sc := &registry.StepContext{
		Workspace: "/tmp/ws",
		Container: &workflow.Container{
			Image:   "xd009642/tarpaulin:0.20.1",
			Options: []string{"seccomp=unconfined"},
		},
	}
	in := &Input{
		Command: "cargo tarpaulin --out Xml",
		Env:     map[string]string{"RUST_BACKTRACE": "1"},
	}

	name, args := buildCommand(in, sc)
	require.Equal(t, "docker", name)
	require.Equal(t, []string{
		"run", "--rm",
		"-v", "/tmp/ws:/workspace",
		"-w", "/workspace",
		"-e", "RUST_BACKTRACE=1",
		"--security-opt", "seccomp=unconfined",
		"xd009642/tarpaulin:0.20.1",
		"sh", "-c", "cargo tarpaulin --out Xml",
	}, args)
}

func TestOnRunShell_CommandSucceeds(t *testing.T) {
	ws := t.TempDir()
	sc := &registry.StepContext{Workspace: ws, Environ: os.Environ()}

	out, err := OnRunShell(context.Background(), sc, &Input{Command: "echo hello > out.txt"})
	require.NoError(t, err)
	require.Equal(t, cty.NumberIntVal(0), out.GetAttr("exit_code"))

	data, err := os.ReadFile(filepath.Join(ws, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestOnRunShell_NonZeroExitFails(t *testing.T) {
	sc := &registry.StepContext{Workspace: t.TempDir(), Environ: os.Environ()}

	_, err := OnRunShell(context.Background(), sc, &Input{Command: "exit 3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit status 3")
}

func TestOnRunShell_EnvIsVisible(t *testing.T) {
	sc := &registry.StepContext{Workspace: t.TempDir(), Environ: os.Environ()}
	in := &Input{
		Command: `test "$GREETING" = bonjour`,
		Env:     map[string]string{"GREETING": "bonjour"},
	}

	_, err := OnRunShell(context.Background(), sc, in)
	require.NoError(t, err)
}
