package dag

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/event"
	"github.com/covflow/covflow/internal/registry"
)

// buildEvalContext assembles the HCL evaluation context a node's arguments
// are decoded with. It exposes the outputs of the node's (finished)
// dependencies under `step.<runner>.<name>.output`, plus `workspace` and
// `event` for the run itself.
func buildEvalContext(node *Node, sc *registry.StepContext) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"workspace": cty.StringVal(sc.Workspace),
		"event":     eventValue(sc.Event),
	}

	byRunner := make(map[string]map[string]cty.Value)
	for _, dep := range node.Deps {
		out := dep.Output
		if out == cty.NilVal {
			out = cty.NullVal(cty.DynamicPseudoType)
		}
		runner := dep.Step.RunnerType
		if byRunner[runner] == nil {
			byRunner[runner] = make(map[string]cty.Value)
		}
		byRunner[runner][dep.Step.Name] = cty.ObjectVal(map[string]cty.Value{
			"output": out,
		})
	}

	if len(byRunner) > 0 {
		runnerVals := make(map[string]cty.Value, len(byRunner))
		for runner, names := range byRunner {
			runnerVals[runner] = cty.ObjectVal(names)
		}
		vars["step"] = cty.ObjectVal(runnerVals)
	}

	return &hcl.EvalContext{Variables: vars}
}

// eventValue converts the triggering event into a cty object so workflow
// authors can reference e.g. `event.sha` or `event.repository.clone_url`.
func eventValue(ev event.Event) cty.Value {
	if ev == nil {
		return cty.ObjectVal(map[string]cty.Value{
			"kind":       cty.StringVal(""),
			"branch":     cty.StringVal(""),
			"sha":        cty.StringVal(""),
			"title":      cty.StringVal(""),
			"repository": repositoryValue(event.Repository{}),
		})
	}
	return cty.ObjectVal(map[string]cty.Value{
		"kind":       cty.StringVal(string(ev.Kind())),
		"branch":     cty.StringVal(ev.Branch()),
		"sha":        cty.StringVal(ev.SHA()),
		"title":      cty.StringVal(ev.Title()),
		"repository": repositoryValue(ev.Repo()),
	})
}

func repositoryValue(repo event.Repository) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"full_name":      cty.StringVal(repo.FullName),
		"clone_url":      cty.StringVal(repo.CloneURL),
		"default_branch": cty.StringVal(repo.DefaultBranch),
	})
}
