package dag

import (
	"github.com/specialistvlad/datagridgo/internal/operator"
)

// Plan is a compiled, validated, acyclic pipeline. It is safe to share
// between concurrent runs; nothing mutates it after Compile returns.
type Plan struct {
	nodes  []Node
	byName map[string]int
	sinks  []int
}

// Node is a single vertex in the plan, representing one operator step.
type Node struct {
	// Index is the step's declaration index and the node's arena address.
	Index int
	// Name is the human-readable step name from the configuration.
	Name string
	// Operator is the registered operator name, e.g. "quality.filter".
	Operator string
	// Op is the materialized operator instance.
	Op operator.Operator
	// Config is the validated configuration the operator was built from.
	Config operator.Config
	// CodeHash identifies operator name, version and canonical config.
	CodeHash string
	// Hints are the operator's declared field reads and writes, if any.
	Hints *operator.Hints
	// Deps are the indices this node consumes, in declaration order.
	Deps []int
	// Dependents are the indices consuming this node, in declaration order.
	Dependents []int
}
