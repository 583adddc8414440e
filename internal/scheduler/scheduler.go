package scheduler

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// ErrCycle is returned by Waves when the graph is not acyclic.
var ErrCycle = errors.New("dependency graph contains a cycle")

// Graph is the read-only view of a plan that the scheduler needs. Nodes are
// identified by their declaration index in [0, Len()).
type Graph interface {
	Len() int
	// Deps returns the indices of the nodes that node i depends on.
	Deps(i int) []int
}

// Wave is a set of node indices that may run concurrently, in declaration order.
type Wave []int

// Layers groups the graph into waves. Nodes that can never be scheduled
// because they sit on or behind a cycle are returned as residual, sorted.
func Layers(g Graph) (waves []Wave, residual []int) {
	n := g.Len()
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i := 0; i < n; i++ {
		for _, d := range g.Deps(i) {
			inDegree[i]++
			dependents[d] = append(dependents[d], i)
		}
	}

	var current Wave
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}

	scheduled := 0
	for len(current) > 0 {
		waves = append(waves, current)
		scheduled += len(current)

		var next Wave
		for _, id := range current {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if scheduled < n {
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				residual = append(residual, i)
			}
		}
	}
	return waves, residual
}

// Waves returns the execution waves, or ErrCycle if some node can never run.
func Waves(g Graph) ([]Wave, error) {
	waves, residual := Layers(g)
	if len(residual) > 0 {
		return nil, fmt.Errorf("%w: %d node(s) unschedulable", ErrCycle, len(residual))
	}
	return waves, nil
}

// All yields (wave index, wave) pairs in execution order. A cyclic graph
// yields nothing; callers are expected to have compiled the plan first.
func All(g Graph) iter.Seq2[int, Wave] {
	return func(yield func(int, Wave) bool) {
		waves, err := Waves(g)
		if err != nil {
			return
		}
		for i, w := range waves {
			if !yield(i, w) {
				return
			}
		}
	}
}
