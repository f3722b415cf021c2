// Package schema declares the HCL surface of workflow files. These structs
// are decode targets only; the translated model lives in internal/workflow.
package schema

import "github.com/hashicorp/hcl/v2"

// StepArgs represents the content of the 'arguments' block within a step.
// The body is kept opaque so it can be decoded against the runner's own
// input struct at execution time, once dependency outputs are available.
type StepArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Step represents a `step` block from a workflow file. It is a runnable
// instance of a registered runner type.
type Step struct {
	RunnerType string    `hcl:"runner_type,label"`
	Name       string    `hcl:"instance_name,label"`
	Arguments  *StepArgs `hcl:"arguments,block"`
	DependsOn  []string  `hcl:"depends_on,optional"`
}

// PushTrigger matches pushes to any of the listed branches.
type PushTrigger struct {
	Branches []string `hcl:"branches,optional"`
}

// PullRequestTrigger matches pull request events. Titles beginning with any
// of the ignore prefixes are excluded (the dependency-bump exclusion).
type PullRequestTrigger struct {
	IgnoreTitlePrefixes []string `hcl:"ignore_title_prefixes,optional"`
}

// Trigger represents the `on` block of a workflow.
type Trigger struct {
	Push        *PushTrigger        `hcl:"push,block"`
	PullRequest *PullRequestTrigger `hcl:"pull_request,block"`
}

// Container represents the `container` block: the pinned image steps run in
// and the security options passed to the container runtime.
type Container struct {
	Image   string   `hcl:"image"`
	Options []string `hcl:"options,optional"`
}

// Workflow represents a top-level `workflow` block.
type Workflow struct {
	Name      string     `hcl:"name,label"`
	On        *Trigger   `hcl:"on,block"`
	Container *Container `hcl:"container,block"`
	Steps     []*Step    `hcl:"step,block"`
	Body      hcl.Body   `hcl:",remain"`
}

// FileRoot is the decode target for a whole workflow file.
type FileRoot struct {
	Workflows []*Workflow `hcl:"workflow,block"`
	Remain    hcl.Body    `hcl:",remain"`
}
