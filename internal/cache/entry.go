package cache

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
)

// Entry is a memoized node result. Per-record failures are kept alongside
// the surviving records so a cached result replays the same failure policy
// as a fresh computation.
type Entry struct {
	Records   record.Batch    `msgpack:"records"`
	Failures  []StoredFailure `msgpack:"failures"`
	Cost      time.Duration   `msgpack:"cost"`
	CreatedAt time.Time       `msgpack:"created_at"`
}

// StoredFailure is the serializable form of an operator.RecordFailure.
type StoredFailure struct {
	Index   int    `msgpack:"index"`
	ID      string `msgpack:"id"`
	Message string `msgpack:"message"`
}

// NewEntry captures an operator result.
func NewEntry(res operator.Result, cost time.Duration) *Entry {
	e := &Entry{Records: res.Records, Cost: cost, CreatedAt: time.Now().UTC()}
	for _, f := range res.Failures {
		e.Failures = append(e.Failures, StoredFailure{Index: f.Index, ID: f.ID, Message: f.Err.Error()})
	}
	return e
}

// Result turns the entry back into an operator result.
func (e *Entry) Result() operator.Result {
	res := operator.Result{Records: e.Records}
	for _, f := range e.Failures {
		res.Failures = append(res.Failures, operator.RecordFailure{Index: f.Index, ID: f.ID, Err: errors.New(f.Message)})
	}
	return res
}

// Clone returns a deep copy; callers may mutate the records freely.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Records = e.Records.Clone()
	if e.Failures != nil {
		out.Failures = append([]StoredFailure(nil), e.Failures...)
	}
	return &out
}

// Store is the pluggable persistence behind a Cache. Implementations must be
// safe for concurrent use. Get reports a miss as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, bool, error)
	Put(ctx context.Context, key Key, entry *Entry) error
	Invalidate(ctx context.Context, key Key) error
}
