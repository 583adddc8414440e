package engine

import (
	"fmt"
)

// OperatorError is a runtime failure scoped to one node, and to one record
// when RecordIndex is not negative.
type OperatorError struct {
	Node        string
	Operator    string
	RecordIndex int
	RecordID    string
	Err         error
}

func (e *OperatorError) Error() string {
	if e.RecordIndex < 0 {
		return fmt.Sprintf("operator %s in step '%s' failed: %v", e.Operator, e.Node, e.Err)
	}
	return fmt.Sprintf("operator %s in step '%s' failed on record #%d (%s): %v", e.Operator, e.Node, e.RecordIndex, e.RecordID, e.Err)
}

func (e *OperatorError) Unwrap() error {
	return e.Err
}

// RunError aborts a run. It carries the failing node, or Index -1 when the
// run was cancelled from outside, plus the partial stats.
type RunError struct {
	Node  string
	Index int
	Err   error
	Stats *Stats
}

func (e *RunError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("run aborted: %v", e.Err)
	}
	return fmt.Sprintf("run aborted at step #%d '%s': %v", e.Index, e.Node, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
