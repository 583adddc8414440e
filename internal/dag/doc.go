// Package dag is the "Compilation Layer" of the application. It takes a
// declarative pipeline, resolves every step through the operator registry,
// wires the dependency edges and proves the result acyclic. The output is an
// immutable Plan: an arena of nodes addressed by declaration index, with
// adjacency lists instead of pointers between nodes.
//
// Compilation never runs an operator. Every problem it finds (unknown
// operators, bad configs, dangling or self dependencies, cycles) is collected
// and returned together in a single CompileError.
package dag
