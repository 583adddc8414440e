// Package scheduler orders the nodes of a compiled plan for execution.
//
// # Why Scheduler Exists
//
// The scheduler separates "what may run" from "how it runs". It turns the
// dependency graph into waves: every node in a wave has all of its
// dependencies in earlier waves, so nodes of one wave may run concurrently
// while waves run strictly one after another. The executor (package engine)
// consumes the waves; the scheduler itself never runs an operator.
//
// # How It Works
//
// Waves come from Kahn's algorithm applied level by level:
//  1. Compute the in-degree of every node.
//  2. Every node with in-degree zero forms the first wave.
//  3. Removing a wave decrements the in-degree of its dependents; the nodes
//     reaching zero form the next wave.
//  4. Nodes never reaching zero are the residual: the graph has a cycle.
//
// # Determinism
//
// Inside a wave nodes are sorted by declaration index, so the same plan
// always yields the same waves regardless of map iteration or goroutine
// timing. Log order and capped in-wave concurrency depend on this.
package scheduler
