package dag

import (
	"fmt"
	"strings"
)

// CompileError aggregates every problem found while compiling a pipeline.
type CompileError struct {
	Problems []error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline compilation failed with %d problem(s):", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.Error())
	}
	return b.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *CompileError) Unwrap() []error {
	return e.Problems
}

// UnknownOperatorError is reported when a step names an operator that is not
// registered.
type UnknownOperatorError struct {
	Index    int
	Step     string
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("step #%d '%s': unknown operator '%s'", e.Index, e.Step, e.Operator)
}

// ConfigError is reported when an operator factory rejects a step's config.
type ConfigError struct {
	Index    int
	Step     string
	Operator string
	// Field is empty when the factory did not attribute the problem.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step #%d '%s' (%s): invalid config: %v", e.Index, e.Step, e.Operator, e.Err)
	}
	return fmt.Sprintf("step #%d '%s' (%s): invalid config field '%s': %v", e.Index, e.Step, e.Operator, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DependencyError is reported for dangling, self and duplicate references.
type DependencyError struct {
	Index  int
	Step   string
	Reason string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step #%d '%s': %s", e.Index, e.Step, e.Reason)
}

// CycleError names the steps that lie on one or more dependency cycles, in
// declaration order.
type CycleError struct {
	Steps []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among steps: %s", strings.Join(e.Steps, ", "))
}
