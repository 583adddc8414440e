package engine

import (
	"fmt"
	"slices"
	"time"
)

// State is the terminal state of a node in a run.
type State int32

const (
	// Pending indicates the node never got a chance to run.
	Pending State = iota
	// Done indicates the node produced its output.
	Done
	// Failed indicates the node failed. Under SkipErrors this only happens for
	// batch-level errors, and the node's output is empty.
	Failed
	// Skipped indicates the node was not started because the run was aborting.
	Skipped
	// Interrupted indicates the run was cancelled while the node was in flight.
	Interrupted
)

var stateNames = [...]string{"pending", "done", "failed", "skipped", "interrupted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText renders the state by name in JSON and YAML reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	i := slices.Index(stateNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown node state '%s'", b)
	}
	*s = State(i)
	return nil
}

// CacheStatus is how a node's result was obtained.
type CacheStatus string

const (
	CacheDisabled CacheStatus = "disabled"
	CacheHit      CacheStatus = "hit"
	CacheMiss     CacheStatus = "miss"
	// CacheShared means another run computed the same key concurrently.
	CacheShared CacheStatus = "shared"
	// CacheBypass means the key could not be computed and the cache was skipped.
	CacheBypass CacheStatus = "bypass"
)

// NodeStats describes one node's part in a run.
type NodeStats struct {
	Index      int              `json:"index"`
	Name       string           `json:"name"`
	Operator   string           `json:"operator"`
	Wave       int              `json:"wave"`
	State      State            `json:"state"`
	RecordsIn  int              `json:"records_in"`
	RecordsOut int              `json:"records_out"`
	Errors     int              `json:"errors"`
	Cache      CacheStatus      `json:"cache"`
	Elapsed    time.Duration    `json:"elapsed"`
	Err        string           `json:"error,omitempty"`
	Failures   []string         `json:"failures,omitempty"`
	Counters   map[string]int64 `json:"counters,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Stats summarizes a run. Apart from RunID and the Elapsed fields it is a
// deterministic function of the plan, the input and the cache contents.
type Stats struct {
	RunID       string        `json:"run_id"`
	Policy      Policy        `json:"policy"`
	Waves       int           `json:"waves"`
	Nodes       []NodeStats   `json:"nodes"`
	RecordsIn   int           `json:"records_in"`
	RecordsOut  int           `json:"records_out"`
	Errors      int           `json:"errors"`
	CacheHits   int           `json:"cache_hits"`
	CacheMisses int           `json:"cache_misses"`
	Warnings    []string      `json:"warnings,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// finalize derives the run totals from the per-node stats.
func (s *Stats) finalize() {
	s.Errors, s.CacheHits, s.CacheMisses = 0, 0, 0
	s.Warnings = nil
	for _, n := range s.Nodes {
		s.Errors += n.Errors
		switch n.Cache {
		case CacheHit, CacheShared:
			s.CacheHits++
		case CacheMiss:
			s.CacheMisses++
		}
		for _, w := range n.Warnings {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s: %s", n.Name, w))
		}
	}
}
