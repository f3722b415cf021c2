package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"

	"github.com/covflow/covflow/internal/ctxlog"
)

// linkNodes performs the second pass, establishing dependency links from
// both `depends_on` lists and step-output references in argument expressions.
func linkNodes(ctx context.Context, graph *Graph) error {
	for _, node := range graph.Nodes {
		if err := linkExplicitDeps(ctx, node, graph); err != nil {
			return err
		}
		if err := linkImplicitDeps(ctx, node, graph); err != nil {
			return err
		}
	}
	return nil
}

// linkExplicitDeps resolves dependencies declared via `depends_on`.
// Addresses use the "<runner_type>.<instance_name>" form.
func linkExplicitDeps(ctx context.Context, node *Node, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)

	for _, depAddr := range node.Step.DependsOn {
		depID := "step." + depAddr
		depNode, found := graph.Nodes[depID]
		if !found {
			return fmt.Errorf("step '%s' depends on non-existent step '%s'", node.ID, depAddr)
		}
		if depNode == node {
			return fmt.Errorf("step '%s' depends on itself", node.ID)
		}

		if _, exists := node.Deps[depID]; !exists {
			logger.Debug("Linking explicit dependency.", "from", node.ID, "to", depID)
			node.Deps[depID] = depNode
			depNode.Dependents[node.ID] = node
		}
	}
	return nil
}

// linkImplicitDeps parses the step's argument expressions for traversals of
// the form `step.<runner_type>.<instance_name>...` and links them.
func linkImplicitDeps(ctx context.Context, node *Node, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)

	attrs, err := argumentAttributes(node)
	if err != nil {
		return err
	}

	for _, attr := range attrs {
		for _, traversal := range attr.Expr.Variables() {
			if traversal.RootName() != "step" || len(traversal) < 3 {
				continue
			}
			runnerAttr, runnerOk := traversal[1].(hcl.TraverseAttr)
			nameAttr, nameOk := traversal[2].(hcl.TraverseAttr)
			if !runnerOk || !nameOk {
				continue
			}

			depID := fmt.Sprintf("step.%s.%s", runnerAttr.Name, nameAttr.Name)
			depNode, found := graph.Nodes[depID]
			if !found {
				return fmt.Errorf("step '%s' references non-existent step '%s'", node.ID, depID)
			}
			if depNode == node {
				return fmt.Errorf("step '%s' references itself", node.ID)
			}

			if _, exists := node.Deps[depID]; !exists {
				logger.Debug("Linking implicit dependency.", "from", node.ID, "to", depID)
				node.Deps[depID] = depNode
				depNode.Dependents[node.ID] = node
			}
		}
	}
	return nil
}

// argumentAttributes returns the attributes of the node's arguments block.
// Arguments blocks are attribute-only; nested blocks are a load-time error.
func argumentAttributes(node *Node) (hcl.Attributes, error) {
	if node.Step.Arguments == nil {
		return nil, nil
	}
	attrs, diags := node.Step.Arguments.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("reading arguments of '%s': %w", node.ID, diags)
	}
	return attrs, nil
}
