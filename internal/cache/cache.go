package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the entry for a key on a miss.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Outcome describes how GetOrCompute obtained its entry.
type Outcome struct {
	// Hit is true when the entry came from the store.
	Hit bool
	// Shared is true when another caller computed the entry concurrently.
	Shared bool
	// Warnings carries *CacheError values for store failures that were
	// absorbed.
	Warnings []error
}

// Stats is a snapshot of a Cache's counters.
type Stats struct {
	Hits   int64
	Misses int64
	Shared int64
	Errors int64
}

// Cache is a single-flight memoizer over a Store. It is an explicit handle:
// create one per pipeline, or share one between runs that should reuse each
// other's results.
type Cache struct {
	store  Store
	flight singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
	errors atomic.Int64
}

// New wraps store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Store returns the underlying store.
func (c *Cache) Store() Store {
	return c.store
}

type flightResult struct {
	entry   *Entry
	hit     bool
	warning error
	// interrupted marks a result computed after the starter's context ended.
	// It is neither stored nor handed to callers that merely joined.
	interrupted bool
}

// interruptedError wraps a compute error returned after the starter's
// context ended.
type interruptedError struct {
	err error
}

func (e *interruptedError) Error() string { return e.err.Error() }
func (e *interruptedError) Unwrap() error { return e.err }

// GetOrCompute returns the entry stored under key, or runs compute and stores
// its result. Concurrent calls for the same key share one computation, which
// runs under the context of the caller that started it.
//
// A compute error is returned as is and nothing is stored. A result computed
// while ctx was cancelled is returned to its starter but not stored, so an
// interrupted node never leaves a partial entry behind. A caller that joined
// a computation which was interrupted by its starter looks the key up again
// as long as its own context is live. Store failures never fail the call.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*Entry, Outcome, error) {
	ctx, span := startLookupSpan(ctx, key)
	defer span.End()
	logger := ctxlog.FromContext(ctx)

	for {
		var out Outcome
		if e, ok, err := c.store.Get(ctx, key); err != nil {
			out.Warnings = append(out.Warnings, c.fail(ctx, "get", key, err))
		} else if ok {
			c.hits.Add(1)
			recordCacheHit(ctx)
			setLookupSpanResult(span, true)
			out.Hit = true
			return e, out, nil
		}

		res, executed, shared, err := c.flightOnce(ctx, key, compute)

		var ie *interruptedError
		joinedInterrupted := !executed && (errors.As(err, &ie) || (err == nil && res.interrupted))
		if joinedInterrupted && ctx.Err() == nil {
			logger.Debug("Joined computation was interrupted by its starter, retrying.", "key", key.String())
			continue
		}
		if ie != nil {
			err = ie.err
		}
		if err != nil {
			return nil, out, err
		}

		entry := res.entry
		if shared {
			// Every caller of a shared flight gets its own copy.
			entry = entry.Clone()
		}
		switch {
		case res.hit:
			c.hits.Add(1)
			recordCacheHit(ctx)
			out.Hit = true
		case shared && !executed:
			c.shared.Add(1)
			recordCacheShared(ctx)
			out.Shared = true
		}
		if res.warning != nil && executed {
			out.Warnings = append(out.Warnings, res.warning)
		}
		setLookupSpanResult(span, out.Hit || out.Shared)
		return entry, out, nil
	}
}

// flightOnce joins or starts the computation for key. executed reports
// whether this caller ran the flight function itself.
func (c *Cache) flightOnce(ctx context.Context, key Key, compute ComputeFunc) (res *flightResult, executed, shared bool, err error) {
	logger := ctxlog.FromContext(ctx)
	v, err, shared := c.flight.Do(key.String(), func() (any, error) {
		executed = true

		// Another flight may have stored the key between our Get and Do.
		if e, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return &flightResult{entry: e, hit: true}, nil
		}

		c.misses.Add(1)
		recordCacheMiss(ctx)
		e, err := compute(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &interruptedError{err: err}
			}
			return nil, err
		}
		res := &flightResult{entry: e}
		if ctx.Err() != nil {
			logger.Debug("Computation interrupted, not caching.", "key", key.String())
			res.interrupted = true
			return res, nil
		}
		if err := c.store.Put(ctx, key, e); err != nil {
			res.warning = c.fail(ctx, "put", key, err)
		}
		return res, nil
	})
	if err != nil {
		return nil, executed, shared, err
	}
	return v.(*flightResult), executed, shared, nil
}

// Invalidate removes key from the store.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	if err := c.store.Invalidate(ctx, key); err != nil {
		return c.fail(ctx, "invalidate", key, err)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
		Errors: c.errors.Load(),
	}
}

func (c *Cache) fail(ctx context.Context, op string, key Key, err error) error {
	c.errors.Add(1)
	recordCacheError(ctx, op)
	ctxlog.FromContext(ctx).Warn("Cache store failure, computing directly.", "op", op, "key", key.String(), "error", err)
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce
	}
	return &CacheError{Op: op, Key: key, Err: err}
}
