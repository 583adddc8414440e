package operator

import (
	"context"

	"github.com/specialistvlad/datagridgo/internal/record"
)

// Operator transforms a batch of records into a batch of records. Given the
// same config and the same input content it must produce the same Result;
// the cache relies on this. Side effects go through the ExecContext only.
//
// A returned error is a batch-level failure. Failures that concern single
// records belong in Result.Failures.
type Operator interface {
	Apply(ctx context.Context, ec *ExecContext, in record.Batch) (Result, error)
}

// Func adapts an ordinary function to the Operator interface.
type Func func(ctx context.Context, ec *ExecContext, in record.Batch) (Result, error)

// Apply calls f.
func (f Func) Apply(ctx context.Context, ec *ExecContext, in record.Batch) (Result, error) {
	return f(ctx, ec, in)
}

// Result is the batch-level outcome of one Apply call: the records that
// survived and the records that failed.
type Result struct {
	Records  record.Batch
	Failures []RecordFailure
}

// RecordFailure describes one input record the operator could not process.
type RecordFailure struct {
	// Index is the record's position in the operator's input batch.
	Index int
	ID    string
	Err   error
}

// Hints lists the payload and metadata paths an operator reads and writes.
type Hints struct {
	Reads  []string
	Writes []string
}

// Hinter is implemented by operators that can describe their field usage.
type Hinter interface {
	Hints() Hints
}

// Versioner is implemented by operators whose behaviour changes between
// releases. The version is part of the cache code hash.
type Versioner interface {
	Version() string
}

// DefaultVersion is used for operators that do not implement Versioner.
const DefaultVersion = "1"

// VersionOf returns op's version or DefaultVersion.
func VersionOf(op Operator) string {
	if v, ok := op.(Versioner); ok {
		if s := v.Version(); s != "" {
			return s
		}
	}
	return DefaultVersion
}

// HintsOf returns op's hints and whether it provides any.
func HintsOf(op Operator) (Hints, bool) {
	if h, ok := op.(Hinter); ok {
		return h.Hints(), true
	}
	return Hints{}, false
}

// Map runs fn over every record and aggregates the per-record outcomes. fn
// returns the (possibly new) record, whether to keep it, and an error. A
// record whose fn returns an error is recorded as a failure and dropped.
func Map(in record.Batch, fn func(i int, r record.Record) (record.Record, bool, error)) Result {
	out := Result{Records: make(record.Batch, 0, len(in))}
	for i, r := range in {
		next, keep, err := fn(i, r)
		if err != nil {
			out.Failures = append(out.Failures, RecordFailure{Index: i, ID: r.ID, Err: err})
			continue
		}
		if keep {
			out.Records = append(out.Records, next)
		}
	}
	return out
}

// Filter keeps the records for which keep returns true.
func Filter(in record.Batch, keep func(r record.Record) bool) Result {
	return Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		return r, keep(r), nil
	})
}
