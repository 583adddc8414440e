// Package sample provides operators that reduce a batch to a subset of its
// records: a plain prefix, a deterministic pseudo-random sample, or the
// highest-scoring records.
package sample

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// DefaultSeed is the sample.random seed used when none is configured.
const DefaultSeed uint64 = 0xCAFEBABE

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers limit, sample.random and sample.top.
func (m *Module) Register(r *registry.Registry) error {
	if err := r.Register("limit", NewLimit); err != nil {
		return err
	}
	if err := r.Register("sample.random", NewRandom); err != nil {
		return err
	}
	return r.Register("sample.top", NewTop)
}

// LimitInput is the config of limit.
type LimitInput struct {
	Count int `cty:"count,required"`
}

// Limit keeps the first Count records.
type Limit struct {
	count int
}

// NewLimit is the factory for limit.
func NewLimit(cfg operator.Config) (operator.Operator, error) {
	var in LimitInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	if in.Count < 0 {
		return nil, operator.Invalid("count", "must be a non-negative integer")
	}
	return &Limit{count: in.Count}, nil
}

func (l *Limit) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Result{Records: in[:min(l.count, len(in))]}, nil
}

// RandomInput is the config of sample.random. Exactly one of Ratio and Count
// is expected; Count wins when both are set.
type RandomInput struct {
	Ratio *float64 `cty:"ratio"`
	Count *int     `cty:"count"`
	Seed  *uint64  `cty:"seed"`
}

// Random keeps each record whose seeded content hash falls under ratio, so
// the same record is always kept or dropped for a given seed.
type Random struct {
	ratio float64
	count int
	seed  uint64
}

// NewRandom is the factory for sample.random.
func NewRandom(cfg operator.Config) (operator.Operator, error) {
	var in RandomInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	op := &Random{count: -1, seed: DefaultSeed}
	if in.Seed != nil {
		op.seed = *in.Seed
	}
	switch {
	case in.Count != nil:
		if *in.Count < 0 {
			return nil, operator.Invalid("count", "must be a non-negative integer")
		}
		op.count = *in.Count
	case in.Ratio != nil:
		if *in.Ratio < 0 || *in.Ratio > 1 || math.IsNaN(*in.Ratio) {
			return nil, operator.Invalid("ratio", "must be in [0, 1], got %v", *in.Ratio)
		}
		op.ratio = *in.Ratio
	default:
		return nil, operator.Invalid("ratio", "one of 'ratio' or 'count' is required")
	}
	return op, nil
}

func (s *Random) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	if s.count >= 0 {
		return operator.Result{Records: in[:min(s.count, len(in))]}, nil
	}
	out := make(record.Batch, 0, len(in))
	for _, r := range in {
		h, err := stableHash(r, s.seed)
		if err != nil {
			return operator.Result{}, err
		}
		if float64(h)/float64(math.MaxUint64) < s.ratio {
			out = append(out, r)
		}
	}
	return operator.Result{Records: out}, nil
}

// stableHash hashes the seed with the record's id and content. encoding/json
// sorts map keys, which keeps the digest independent of map iteration order.
func stableHash(r record.Record, seed uint64) (uint64, error) {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	d.Write(buf[:])
	d.WriteString(r.ID)
	for _, v := range []any{r.Payload, r.Metadata} {
		b, err := json.Marshal(v)
		if err != nil {
			return 0, err
		}
		d.Write([]byte{0})
		d.Write(b)
	}
	return d.Sum64(), nil
}

// TopInput is the config of sample.top.
type TopInput struct {
	Key   *string `cty:"key"`
	Count int     `cty:"count,required"`
}

// Top keeps the Count records with the highest numeric metadata value under
// key. Records without a numeric value rank last; ties keep input order.
type Top struct {
	key   string
	count int
}

// NewTop is the factory for sample.top.
func NewTop(cfg operator.Config) (operator.Operator, error) {
	var in TopInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	if in.Count < 0 {
		return nil, operator.Invalid("count", "must be a non-negative integer")
	}
	key := "quality"
	if in.Key != nil && *in.Key != "" {
		key = *in.Key
	}
	return &Top{key: key, count: in.Count}, nil
}

func (t *Top) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	type ranked struct {
		score float64
		rec   record.Record
	}
	rs := make([]ranked, len(in))
	for i, r := range in {
		rs[i] = ranked{score: math.Inf(-1), rec: r}
		if v, ok := r.Meta(t.key); ok {
			if n, ok := record.Number(v); ok {
				rs[i].score = n
			}
		}
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make(record.Batch, 0, min(t.count, len(rs)))
	for _, r := range rs[:min(t.count, len(rs))] {
		out = append(out, r.rec)
	}
	return operator.Result{Records: out}, nil
}

func (t *Top) Hints() operator.Hints {
	return operator.Hints{Reads: []string{"metadata." + t.key}}
}
