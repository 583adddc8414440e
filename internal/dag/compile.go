package dag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/pipeline"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/specialistvlad/datagridgo/internal/scheduler"
)

// Compile resolves, validates and links a pipeline into an immutable Plan.
// Every problem found is returned together in a *CompileError.
func Compile(ctx context.Context, p pipeline.Pipeline, r *registry.Registry) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Compile: Starting plan construction.", "steps", len(p.Steps))

	plan := &Plan{
		nodes:  make([]Node, len(p.Steps)),
		byName: make(map[string]int, len(p.Steps)),
	}
	var problems []error

	// First pass: materialize every operator.
	problems = append(problems, createNodes(ctx, p, r, plan)...)
	logger.Debug("Compile: Node creation complete.", "node_count", plan.Len())

	// Second pass: wire the edges.
	problems = append(problems, linkNodes(ctx, p, plan)...)
	logger.Debug("Compile: Node linking complete.", "mode", string(p.EffectiveMode()))

	// Third pass: prove the graph acyclic.
	if err := plan.detectCycles(); err != nil {
		problems = append(problems, err)
	} else {
		logger.Debug("Compile: Cycle detection passed.")
	}

	if len(problems) > 0 {
		logger.Debug("Compile: Plan construction failed.", "problems", len(problems))
		return nil, &CompileError{Problems: problems}
	}

	for i := range plan.nodes {
		if len(plan.nodes[i].Dependents) == 0 {
			plan.sinks = append(plan.sinks, i)
		}
	}
	logger.Debug("Compile: Plan construction successful.", "sinks", len(plan.sinks))
	return plan, nil
}

// createNodes resolves each step's operator and runs its factory.
func createNodes(ctx context.Context, p pipeline.Pipeline, r *registry.Registry, plan *Plan) []error {
	logger := ctxlog.FromContext(ctx)
	var problems []error

	for i, s := range p.Steps {
		name := s.Name
		if name == "" {
			name = pipeline.DefaultStepName(s.Operator, i)
		}
		n := &plan.nodes[i]
		*n = Node{Index: i, Name: name, Operator: s.Operator, Config: s.Config}

		if first, exists := plan.byName[name]; exists {
			problems = append(problems, &DependencyError{
				Index:  i,
				Step:   name,
				Reason: fmt.Sprintf("duplicate step name (first declared as step #%d)", first),
			})
		} else {
			plan.byName[name] = i
		}

		factory, ok := r.Lookup(s.Operator)
		if !ok {
			problems = append(problems, &UnknownOperatorError{Index: i, Step: name, Operator: s.Operator})
			continue
		}

		op, err := factory(s.Config)
		if err != nil {
			problems = append(problems, configProblems(i, name, s.Operator, err)...)
			continue
		}
		if op == nil {
			problems = append(problems, &ConfigError{Index: i, Step: name, Operator: s.Operator, Err: errors.New("factory returned no operator")})
			continue
		}
		n.Op = op

		hash, err := codeHash(s.Operator, operator.VersionOf(op), s.Config)
		if err != nil {
			problems = append(problems, &ConfigError{Index: i, Step: name, Operator: s.Operator, Err: err})
			continue
		}
		n.CodeHash = hash

		if h, ok := operator.HintsOf(op); ok {
			n.Hints = &h
		}
		logger.Debug("Created node.", "index", i, "step", name, "operator", s.Operator)
	}
	return problems
}

// configProblems splits a factory error into one ConfigError per field.
func configProblems(index int, step, op string, err error) []error {
	fieldErrs := operator.ConfigErrors(err)
	if len(fieldErrs) == 0 {
		return []error{&ConfigError{Index: index, Step: step, Operator: op, Err: err}}
	}
	out := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, &ConfigError{Index: index, Step: step, Operator: op, Field: fe.Field, Err: fe.Err})
	}
	return out
}

// linkNodes builds the adjacency lists. Sequential mode chains each step to
// its predecessor; DAG mode follows depends_on.
func linkNodes(ctx context.Context, p pipeline.Pipeline, plan *Plan) []error {
	logger := ctxlog.FromContext(ctx)

	if p.EffectiveMode() == pipeline.ModeSequential {
		for i := 1; i < plan.Len(); i++ {
			plan.link(i-1, i)
		}
		for _, s := range p.Steps {
			if len(s.DependsOn) > 0 {
				logger.Warn("Ignoring depends_on in sequential pipeline.", "step", plan.nodes[s.Index].Name)
			}
		}
		return nil
	}

	var problems []error
	for i, s := range p.Steps {
		name := plan.nodes[i].Name
		seen := make(map[int]bool, len(s.DependsOn))
		for _, depName := range s.DependsOn {
			dep, ok := plan.byName[depName]
			switch {
			case !ok:
				problems = append(problems, &DependencyError{Index: i, Step: name, Reason: fmt.Sprintf("depends on undeclared step '%s'", depName)})
			case dep == i:
				problems = append(problems, &DependencyError{Index: i, Step: name, Reason: "depends on itself"})
			case seen[dep]:
				problems = append(problems, &DependencyError{Index: i, Step: name, Reason: fmt.Sprintf("lists dependency '%s' more than once", depName)})
			default:
				seen[dep] = true
				plan.link(dep, i)
			}
		}
	}
	return problems
}

// link records that node `to` consumes the output of node `from`.
func (p *Plan) link(from, to int) {
	p.nodes[to].Deps = append(p.nodes[to].Deps, from)
	p.nodes[from].Dependents = append(p.nodes[from].Dependents, to)
}

// detectCycles runs Kahn's algorithm and, if some nodes were never scheduled,
// reports the ones that lie on a cycle: members of a strongly connected
// component with more than one node, or nodes depending on themselves.
func (p *Plan) detectCycles() error {
	_, residual := scheduler.Layers(p)
	if len(residual) == 0 {
		return nil
	}

	onCycle := p.cycleMembers(residual)
	steps := make([]string, 0, len(onCycle))
	for _, i := range residual {
		if onCycle[i] {
			steps = append(steps, p.nodes[i].Name)
		}
	}
	return &CycleError{Steps: steps}
}

// cycleMembers runs Tarjan's algorithm over the subgraph induced by nodes.
func (p *Plan) cycleMembers(nodes []int) map[int]bool {
	inSet := make(map[int]bool, len(nodes))
	for _, i := range nodes {
		inSet[i] = true
	}

	var (
		next    int
		index   = make(map[int]int, len(nodes))
		low     = make(map[int]int, len(nodes))
		onStack = make(map[int]bool, len(nodes))
		stack   []int
		members = make(map[int]bool)
	)

	var connect func(v int)
	connect = func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range p.nodes[v].Dependents {
			if !inSet[w] {
				continue
			}
			if _, seen := index[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var component []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || slices.Contains(p.nodes[v].Deps, v) {
			for _, w := range component {
				members[w] = true
			}
		}
	}

	for _, v := range nodes {
		if _, seen := index[v]; !seen {
			connect(v)
		}
	}
	return members
}

// codeHash identifies an operator's behaviour: name, version and canonical config.
func codeHash(name, version string, cfg operator.Config) (string, error) {
	canon, err := cfg.Canonical()
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize config: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}
