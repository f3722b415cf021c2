// Package dag builds and executes the dependency graph of a workflow's steps.
package dag

import (
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/covflow/covflow/internal/workflow"
)

// NodeState tracks a node through its execution lifecycle.
type NodeState int32

const (
	Pending NodeState = iota
	Running
	Done
	Failed
)

func (s NodeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Graph is the dependency graph of a single workflow's steps.
type Graph struct {
	// Nodes stores all nodes in the graph, keyed by their step address.
	Nodes map[string]*Node
}

// Node is a single step in the graph.
type Node struct {
	// ID is the step address, e.g. "step.shell.test".
	ID string
	// Step is the workflow step this node executes.
	Step *workflow.Step
	// Deps holds the nodes this node depends on (predecessors).
	Deps map[string]*Node
	// Dependents holds the nodes that depend on this node (successors).
	Dependents map[string]*Node

	// Output is the step's result, valid once the node is Done. Dependents
	// observe it through the executor's ready-channel ordering.
	Output cty.Value
	// Error is the failure cause, valid once the node is Failed.
	Error error

	state    atomic.Int32
	depCount atomic.Int32
	skipOnce sync.Once
}

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

func (n *Node) setState(s NodeState) {
	n.state.Store(int32(s))
}

// setInitialCounters seeds the pending-dependency counter before execution.
func (n *Node) setInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}
