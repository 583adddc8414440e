// Package engine is the "Execution Layer" of the application. It runs a
// compiled plan over a batch of records.
//
// Waves come from the scheduler and run strictly one after another; nodes
// inside a wave run concurrently up to the configured parallelism. Each
// node's input is assembled from its dependencies' outputs (or the run input
// for roots), looked up in the cache, computed on a miss, and judged by the
// run's failure policy. The run output is the concatenation of every sink's
// output in declaration order.
//
// Under FailFast the first failure stops new nodes from starting while nodes
// already in flight finish normally. Under SkipErrors failed records are
// dropped and counted, and downstream nodes receive a smaller batch.
package engine
