// Package workflow holds the translated workflow model and its loader.
package workflow

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// Workflow is a single loaded workflow definition.
type Workflow struct {
	Name      string
	On        *Trigger
	Container *Container
	Steps     []*Step
}

// Trigger declares the events a workflow runs on. A nil Trigger means the
// workflow never matches an event and can only be run directly.
type Trigger struct {
	Push        *PushTrigger
	PullRequest *PullRequestTrigger
}

// PushTrigger matches pushes to any of the listed branches.
type PushTrigger struct {
	Branches []string
}

// PullRequestTrigger matches pull request events unless the title carries
// one of the ignore prefixes.
type PullRequestTrigger struct {
	IgnoreTitlePrefixes []string
}

// Container is the pinned execution image for a workflow's steps, plus the
// security options handed to the container runtime (e.g. "seccomp=unconfined").
type Container struct {
	Image   string
	Options []string
}

// Step is a runnable unit bound to a registered runner type.
type Step struct {
	RunnerType string
	Name       string
	// Arguments is the raw body of the step's arguments block, decoded
	// against the runner's input struct at execution time. Nil when the
	// step declares no arguments.
	Arguments hcl.Body
	DependsOn []string
}

// ID returns the step's node address, e.g. "step.shell.test".
func (s *Step) ID() string {
	return fmt.Sprintf("step.%s.%s", s.RunnerType, s.Name)
}

// Set is the collection of all loaded workflows, keyed by name.
type Set struct {
	Workflows map[string]*Workflow
}

// NewSet returns an empty workflow set.
func NewSet() *Set {
	return &Set{Workflows: make(map[string]*Workflow)}
}

// Get returns the named workflow.
func (s *Set) Get(name string) (*Workflow, bool) {
	wf, ok := s.Workflows[name]
	return wf, ok
}

// Names returns the workflow names in no particular order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Workflows))
	for name := range s.Workflows {
		names = append(names, name)
	}
	return names
}
