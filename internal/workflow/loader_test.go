package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad_SingleWorkflow(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"coverage.hcl": `
			workflow "coverage" {
				on {
					push { branches = ["main"] }
					pull_request { ignore_title_prefixes = ["build(deps): "] }
				}

				container {
					image   = "xd009642/tarpaulin:0.20.1"
					options = ["seccomp=unconfined"]
				}

				step "shell" "test" {
					arguments {
						command = "cargo tarpaulin --out Xml"
					}
				}

				step "upload" "report" {
					arguments {
						source_path = "cobertura.xml"
						upload_url  = "https://reports.example.com/upload"
					}
					depends_on = ["shell.test"]
				}
			}
		`,
	})

	set, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, set.Workflows, 1)

	wf, ok := set.Get("coverage")
	require.True(t, ok)
	require.Equal(t, []string{"main"}, wf.On.Push.Branches)
	require.Equal(t, []string{"build(deps): "}, wf.On.PullRequest.IgnoreTitlePrefixes)
	require.Equal(t, "xd009642/tarpaulin:0.20.1", wf.Container.Image)
	require.Equal(t, []string{"seccomp=unconfined"}, wf.Container.Options)
	require.Len(t, wf.Steps, 2)
	require.Equal(t, "step.shell.test", wf.Steps[0].ID())
	require.NotNil(t, wf.Steps[0].Arguments)
	require.Equal(t, []string{"shell.test"}, wf.Steps[1].DependsOn)
}

func TestLoad_MergesMultipleFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a/one.hcl": `workflow "one" {}`,
		"b/two.hcl": `workflow "two" {}`,
	})

	set, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"one", "two"}, set.Names())
}

func TestLoad_DuplicateWorkflowName(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"one.hcl": `workflow "dup" {}`,
		"two.hcl": `workflow "dup" {}`,
	})

	_, err := Load(context.Background(), dir)
	require.ErrorContains(t, err, "duplicate workflow")
}

func TestLoad_DuplicateStep(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"wf.hcl": `
			workflow "w" {
				step "shell" "a" {}
				step "shell" "a" {}
			}
		`,
	})

	_, err := Load(context.Background(), dir)
	require.ErrorContains(t, err, "duplicate step")
}

func TestLoad_EmptyContainerImage(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"wf.hcl": `
			workflow "w" {
				container { image = "" }
			}
		`,
	})

	_, err := Load(context.Background(), dir)
	require.ErrorContains(t, err, "container image")
}

func TestLoad_InvalidHCLIsRejected(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"broken.hcl": `workflow "w" {`,
	})

	_, err := Load(context.Background(), dir)
	require.Error(t, err)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
