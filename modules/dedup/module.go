// Package dedup drops near-duplicate records. Every operator keeps the first
// record of a group of similar ones and preserves input order. Records whose
// field is missing or not a string are always kept.
package dedup

import (
	"context"
	"math"
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Default thresholds and MinHash parameters.
const (
	DefaultSimHashThreshold  = 0.85
	DefaultMinHashThreshold  = 0.8
	DefaultSemanticThreshold = 0.7
	DefaultPermutations      = 64
	DefaultBands             = 8
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers dedup.simhash, dedup.minhash and dedup.semantic.
func (m *Module) Register(r *registry.Registry) error {
	if err := r.Register("dedup.simhash", NewSimHash); err != nil {
		return err
	}
	if err := r.Register("dedup.minhash", NewMinHash); err != nil {
		return err
	}
	return r.Register("dedup.semantic", NewSemantic)
}

// Input is the config of dedup.simhash and dedup.semantic.
type Input struct {
	Path      string   `cty:"path,required"`
	Threshold *float64 `cty:"threshold"`
}

// MinHashInput is the config of dedup.minhash.
type MinHashInput struct {
	Path      string   `cty:"path,required"`
	Threshold *float64 `cty:"threshold"`
	K         *int     `cty:"k"`
	Bands     *int     `cty:"bands"`
}

func decodeCommon(path string, threshold *float64, def float64) (record.Path, float64, error) {
	p, err := operator.PathField("path", path)
	if err != nil {
		return record.Path{}, 0, err
	}
	t := def
	if threshold != nil {
		t = *threshold
	}
	if t < 0 || t > 1 || math.IsNaN(t) {
		return record.Path{}, 0, operator.Invalid("threshold", "must be in [0, 1], got %v", t)
	}
	return p, t, nil
}

// keepFirst walks in order and keeps every record that dup does not reject.
// dup sees the tokens of the record's text and reports whether an earlier
// kept record is similar enough; when it returns false it must remember the
// record for later comparisons.
func keepFirst(ctx context.Context, ec *operator.ExecContext, counter string, path record.Path, in record.Batch, dup func([]string) bool) (operator.Result, error) {
	out := make(record.Batch, 0, len(in))
	for i, r := range in {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return operator.Result{}, err
			}
		}
		text, ok := path.ResolveString(r)
		if !ok || !dup(tokenize(text)) {
			out = append(out, r)
		}
	}
	ec.Counter(counter).Add(int64(len(in) - len(out)))
	return operator.Result{Records: out}, nil
}

// tokenize lowercases text and splits it on anything that is not a letter or
// a digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// jaccard is |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// SimHash drops records whose 64-bit SimHash fingerprint lies within the
// similarity threshold of an earlier kept record. Similarity is one minus the
// Hamming distance over 64.
type SimHash struct {
	path      record.Path
	threshold float64
}

// NewSimHash is the factory for dedup.simhash.
func NewSimHash(cfg operator.Config) (operator.Operator, error) {
	var in Input
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, t, err := decodeCommon(in.Path, in.Threshold, DefaultSimHashThreshold)
	if err != nil {
		return nil, err
	}
	return &SimHash{path: p, threshold: t}, nil
}

func (s *SimHash) Apply(ctx context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	var seen []uint64
	return keepFirst(ctx, ec, "dedup.simhash.dropped", s.path, in, func(tokens []string) bool {
		fp := simhash(tokens)
		for _, prev := range seen {
			if 1-float64(bits.OnesCount64(prev^fp))/64 >= s.threshold {
				return true
			}
		}
		seen = append(seen, fp)
		return false
	})
}

func (s *SimHash) Hints() operator.Hints {
	return operator.Hints{Reads: []string{s.path.String()}}
}

func simhash(tokens []string) uint64 {
	var weights [64]int
	for _, t := range tokens {
		h := xxhash.Sum64String(t)
		for i := range weights {
			if h&(1<<i) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}
	var fp uint64
	for i, w := range weights {
		if w >= 0 {
			fp |= 1 << i
		}
	}
	return fp
}

// MinHash drops records whose token-set Jaccard similarity to an earlier kept
// record reaches the threshold. Candidates are found by locality-sensitive
// hashing over K MinHash values split into Bands bands; only records sharing
// a band are compared exactly.
type MinHash struct {
	path      record.Path
	threshold float64
	k         int
	bands     int
}

// NewMinHash is the factory for dedup.minhash.
func NewMinHash(cfg operator.Config) (operator.Operator, error) {
	var in MinHashInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, t, err := decodeCommon(in.Path, in.Threshold, DefaultMinHashThreshold)
	if err != nil {
		return nil, err
	}
	op := &MinHash{path: p, threshold: t, k: DefaultPermutations, bands: DefaultBands}
	if in.K != nil {
		if *in.K <= 0 {
			return nil, operator.Invalid("k", "must be a positive integer")
		}
		op.k = *in.K
	}
	if in.Bands != nil {
		if *in.Bands <= 0 {
			return nil, operator.Invalid("bands", "must be a positive integer")
		}
		op.bands = *in.Bands
	}
	if op.bands > op.k {
		return nil, operator.Invalid("bands", "may not exceed 'k'")
	}
	return op, nil
}

type bandKey struct {
	band int
	hash uint64
}

func (m *MinHash) Apply(ctx context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	var kept []map[string]struct{}
	buckets := make(map[bandKey][]int)
	rows := (m.k + m.bands - 1) / m.bands

	return keepFirst(ctx, ec, "dedup.minhash.dropped", m.path, in, func(tokens []string) bool {
		set := tokenSet(tokens)
		sig := m.signature(set)

		keys := make([]bandKey, 0, m.bands)
		compared := make(map[int]bool)
		for b := range m.bands {
			start, end := b*rows, min((b+1)*rows, m.k)
			if start >= end {
				break
			}
			d := xxhash.New()
			var buf [8]byte
			for _, v := range sig[start:end] {
				for i := range buf {
					buf[i] = byte(v >> (8 * i))
				}
				d.Write(buf[:])
			}
			key := bandKey{band: b, hash: d.Sum64()}
			for _, c := range buckets[key] {
				if compared[c] {
					continue
				}
				compared[c] = true
				if jaccard(set, kept[c]) >= m.threshold {
					return true
				}
			}
			keys = append(keys, key)
		}

		id := len(kept)
		kept = append(kept, set)
		for _, key := range keys {
			buckets[key] = append(buckets[key], id)
		}
		return false
	})
}

func (m *MinHash) Hints() operator.Hints {
	return operator.Hints{Reads: []string{m.path.String()}}
}

// signature is the minimum of each of k seeded token hashes. An empty set
// has an all-max signature, so empty texts collide with each other only.
func (m *MinHash) signature(set map[string]struct{}) []uint64 {
	sig := make([]uint64, m.k)
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for t := range set {
		h := xxhash.Sum64String(t)
		for i := range sig {
			// seeded variant of one base hash
			v := (h ^ (uint64(i) * 0x9E3779B97F4A7C15)) * 0xBF58476D1CE4E5B9
			v ^= v >> 31
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Semantic drops records whose token-set Jaccard similarity to any earlier
// kept record reaches the threshold. It compares every pair exactly.
type Semantic struct {
	path      record.Path
	threshold float64
}

// NewSemantic is the factory for dedup.semantic.
func NewSemantic(cfg operator.Config) (operator.Operator, error) {
	var in Input
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, t, err := decodeCommon(in.Path, in.Threshold, DefaultSemanticThreshold)
	if err != nil {
		return nil, err
	}
	return &Semantic{path: p, threshold: t}, nil
}

func (s *Semantic) Apply(ctx context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	var kept []map[string]struct{}
	return keepFirst(ctx, ec, "dedup.semantic.dropped", s.path, in, func(tokens []string) bool {
		set := tokenSet(tokens)
		for _, prev := range kept {
			if jaccard(set, prev) >= s.threshold {
				return true
			}
		}
		kept = append(kept, set)
		return false
	})
}

func (s *Semantic) Hints() operator.Hints {
	return operator.Hints{Reads: []string{s.path.String()}}
}
