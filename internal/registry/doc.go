// Package registry provides the central "glue" for the operator system.
//
// The Registry stores the mapping between the namespaced operator names used
// in pipeline files (e.g. "quality.filter") and the Go factories that
// validate a step's config and build the operator. It is the single extension
// point: built-in modules and externally supplied operators both go through
// Register, and however foreign code gets loaded stays outside this package.
//
// Registration happens at startup; afterwards the registry is read
// concurrently by the compiler.
package registry
