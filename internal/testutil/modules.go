package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// SpyModule registers "test.spy", which tags each record with the step that
// saw it and counts how often it ran.
type SpyModule struct {
	Calls atomic.Int64
}

type spyInput struct {
	Tag string `cty:"tag,required"`
}

// Register implements registry.Module.
func (m *SpyModule) Register(r *registry.Registry) error {
	return r.Register("test.spy", func(cfg operator.Config) (operator.Operator, error) {
		var in spyInput
		if err := cfg.Decode(&in); err != nil {
			return nil, err
		}
		return operator.Func(func(_ context.Context, _ *operator.ExecContext, b record.Batch) (operator.Result, error) {
			m.Calls.Add(1)
			return operator.Map(b, func(_ int, rec record.Record) (record.Record, bool, error) {
				seen, _ := rec.Meta("seen")
				trail, _ := seen.([]any)
				return rec.WithMetadata("seen", append(slices.Clone(trail), in.Tag)), true, nil
			}), nil
		}), nil
	})
}

// FailerModule registers "test.fail", which fails every record whose id is
// listed in its config.
type FailerModule struct{}

type failInput struct {
	IDs []string `cty:"ids,required"`
}

// Register implements registry.Module.
func (FailerModule) Register(r *registry.Registry) error {
	return r.Register("test.fail", func(cfg operator.Config) (operator.Operator, error) {
		var in failInput
		if err := cfg.Decode(&in); err != nil {
			return nil, err
		}
		return operator.Func(func(_ context.Context, _ *operator.ExecContext, b record.Batch) (operator.Result, error) {
			return operator.Map(b, func(_ int, rec record.Record) (record.Record, bool, error) {
				if slices.Contains(in.IDs, rec.ID) {
					return rec, false, fmt.Errorf("record %s rejected", rec.ID)
				}
				return rec, true, nil
			}), nil
		}), nil
	})
}

// SleeperModule registers "test.sleep", which waits before passing its
// input through and records the highest number of concurrent applies.
type SleeperModule struct {
	active, Peak atomic.Int64
}

type sleepInput struct {
	Millis int `cty:"ms,required"`
}

// Register implements registry.Module.
func (m *SleeperModule) Register(r *registry.Registry) error {
	return r.Register("test.sleep", func(cfg operator.Config) (operator.Operator, error) {
		var in sleepInput
		if err := cfg.Decode(&in); err != nil {
			return nil, err
		}
		return operator.Func(func(ctx context.Context, _ *operator.ExecContext, b record.Batch) (operator.Result, error) {
			n := m.active.Add(1)
			defer m.active.Add(-1)
			for {
				peak := m.Peak.Load()
				if n <= peak || m.Peak.CompareAndSwap(peak, n) {
					break
				}
			}
			select {
			case <-time.After(time.Duration(in.Millis) * time.Millisecond):
			case <-ctx.Done():
				return operator.Result{}, ctx.Err()
			}
			return operator.Result{Records: b}, nil
		}), nil
	})
}
