package operator

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// ExecContext is handed to every Apply call. It is the only sanctioned way
// for an operator to produce side effects, and it is safe for concurrent use.
type ExecContext struct {
	RunID  string
	Node   string
	Logger *slog.Logger

	counters sync.Map // name -> *atomic.Int64
}

// NewExecContext creates a context for one node execution.
func NewExecContext(runID, node string, logger *slog.Logger) *ExecContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecContext{RunID: runID, Node: node, Logger: logger}
}

// Counter returns the named statistics counter, creating it on first use.
func (c *ExecContext) Counter(name string) *atomic.Int64 {
	if v, ok := c.counters.Load(name); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counters.LoadOrStore(name, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Counters returns a snapshot of all counters.
func (c *ExecContext) Counters() map[string]int64 {
	out := make(map[string]int64)
	c.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}
