package dag

import (
	"context"
	"fmt"

	"github.com/covflow/covflow/internal/ctxlog"
	"github.com/covflow/covflow/internal/registry"
	"github.com/covflow/covflow/internal/workflow"
)

// Build constructs a complete, validated dependency graph for a workflow.
func Build(ctx context.Context, wf *workflow.Workflow, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "workflow", wf.Name)

	graph := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all nodes.
	for _, s := range wf.Steps {
		if _, ok := r.Runner(s.RunnerType); !ok {
			return nil, fmt.Errorf("step %q uses unknown runner type %q", s.ID(), s.RunnerType)
		}
		id := s.ID()
		if _, exists := graph.Nodes[id]; exists {
			return nil, fmt.Errorf("duplicate step %q", id)
		}
		graph.Nodes[id] = &Node{
			ID:         id,
			Step:       s,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}
	logger.Debug("Build: node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies.
	if err := linkNodes(ctx, graph); err != nil {
		return nil, err
	}
	logger.Debug("Build: node linking complete.")

	// Third pass: initialize counters.
	for _, node := range graph.Nodes {
		node.setInitialCounters()
	}

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("validating dependency graph: %w", err)
	}
	logger.Debug("Build: graph construction successful.")

	return graph, nil
}

// detectCycles checks for circular dependencies in the graph using DFS.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node *Node) error
	visit = func(node *Node) error {
		visiting[node.ID] = true
		for _, dep := range node.Deps {
			if visiting[dep.ID] {
				return fmt.Errorf("cycle detected involving '%s'", dep.ID)
			}
			if !visited[dep.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, node.ID)
		visited[node.ID] = true
		return nil
	}

	for _, node := range g.Nodes {
		if !visited[node.ID] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}
