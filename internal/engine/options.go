package engine

import (
	"fmt"
	"runtime"

	"github.com/specialistvlad/datagridgo/internal/cache"
)

// Policy decides what a record or batch failure does to the run.
type Policy string

const (
	// FailFast aborts the run at the first failure.
	FailFast Policy = "fail_fast"
	// SkipErrors drops failed records, counts them and carries on.
	SkipErrors Policy = "skip_errors"
)

// ParsePolicy validates a policy name. The empty string means FailFast.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", FailFast:
		return FailFast, nil
	case SkipErrors:
		return SkipErrors, nil
	default:
		return "", fmt.Errorf("unknown failure policy '%s' (want %s or %s)", s, FailFast, SkipErrors)
	}
}

// Options configures a single run.
type Options struct {
	// Parallelism caps how many nodes of a wave run at once.
	// Zero or less means runtime.NumCPU().
	Parallelism int
	// Policy is the failure policy; empty means FailFast.
	Policy Policy
	// Cache memoizes node results. Nil disables caching.
	Cache *cache.Cache
	// Env is the host fingerprint mixed into every cache key.
	Env cache.Environment
	// RunID identifies the run in logs, stats and operator contexts.
	// Empty means a fresh UUID.
	RunID string
}

func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.Policy == "" {
		o.Policy = FailFast
	}
	return o
}
