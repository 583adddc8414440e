package dag

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return len(p.nodes) }

// Deps returns the indices node i consumes. Together with Len it satisfies
// scheduler.Graph.
func (p *Plan) Deps(i int) []int { return p.nodes[i].Deps }

// Dependents returns the indices that consume node i.
func (p *Plan) Dependents(i int) []int { return p.nodes[i].Dependents }

// Node returns the node at index i.
func (p *Plan) Node(i int) *Node { return &p.nodes[i] }

// Nodes returns the nodes in declaration order. The slice must not be modified.
func (p *Plan) Nodes() []Node { return p.nodes }

// ByName looks a node up by its step name.
func (p *Plan) ByName(name string) (*Node, bool) {
	i, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return &p.nodes[i], true
}

// Roots returns the nodes without dependencies; they receive the run input.
func (p *Plan) Roots() []int {
	var out []int
	for i := range p.nodes {
		if len(p.nodes[i].Deps) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Sinks returns the nodes nothing depends on. Their outputs, concatenated in
// this order, form the run output.
func (p *Plan) Sinks() []int { return p.sinks }
