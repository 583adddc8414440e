// Package pipeline holds the declarative form of a pipeline (an ordered list
// of operator steps) and the loaders that read it from HCL, YAML or JSON.
// It does no validation beyond shape; resolving operators and checking the
// graph is the compiler's job.
package pipeline
