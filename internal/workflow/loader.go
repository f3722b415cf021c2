package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/schema"
)

// Load discovers all .hcl files under the given paths (files or directories,
// recursive), parses them and merges the workflows into a single Set.
// Duplicate workflow names across files are an error.
func Load(ctx context.Context, paths ...string) (*Set, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Workflow loader started.", "path_count", len(paths))

	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	set := NewSet()
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}

		var root schema.FileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}

		for _, wf := range root.Workflows {
			translated, err := translateWorkflow(wf)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			if _, exists := set.Workflows[translated.Name]; exists {
				return nil, fmt.Errorf("duplicate workflow %q defined in %s", translated.Name, file)
			}
			set.Workflows[translated.Name] = translated
			logger.Debug("Loaded workflow.", "workflow", translated.Name, "steps", len(translated.Steps))
		}
	}

	logger.Debug("Workflow loading complete.", "workflows", len(set.Workflows))
	return set, nil
}

// translateWorkflow converts a decoded schema block into the model form and
// applies structural validation that does not need the registry.
func translateWorkflow(wf *schema.Workflow) (*Workflow, error) {
	out := &Workflow{Name: wf.Name}

	if wf.On != nil {
		out.On = &Trigger{}
		if wf.On.Push != nil {
			out.On.Push = &PushTrigger{Branches: wf.On.Push.Branches}
		}
		if wf.On.PullRequest != nil {
			out.On.PullRequest = &PullRequestTrigger{
				IgnoreTitlePrefixes: wf.On.PullRequest.IgnoreTitlePrefixes,
			}
		}
	}

	if wf.Container != nil {
		if wf.Container.Image == "" {
			return nil, fmt.Errorf("workflow %q: container image must not be empty", wf.Name)
		}
		out.Container = &Container{
			Image:   wf.Container.Image,
			Options: wf.Container.Options,
		}
	}

	seen := make(map[string]struct{}, len(wf.Steps))
	for _, s := range wf.Steps {
		step := &Step{
			RunnerType: s.RunnerType,
			Name:       s.Name,
			DependsOn:  s.DependsOn,
		}
		if s.Arguments != nil {
			step.Arguments = s.Arguments.Body
		}
		if _, dup := seen[step.ID()]; dup {
			return nil, fmt.Errorf("workflow %q: duplicate step %q", wf.Name, step.ID())
		}
		seen[step.ID()] = struct{}{}
		out.Steps = append(out.Steps, step)
	}

	return out, nil
}

// findHCLFiles walks all given paths and returns a flat list of .hcl files.
func findHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if !info.IsDir() {
			if _, dup := seen[path]; !dup {
				seen[path] = struct{}{}
				all = append(all, path)
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(p, ".hcl") {
				return nil
			}
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				all = append(all, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}

	return all, nil
}
