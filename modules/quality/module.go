// Package quality scores text records and filters them by score.
package quality

import (
	"context"
	"unicode/utf8"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the quality.* operators.
func (m *Module) Register(r *registry.Registry) error {
	if err := r.Register("quality.score", NewScore); err != nil {
		return err
	}
	if err := r.Register("quality.filter", NewFilter); err != nil {
		return err
	}
	if err := r.Register("quality.toxicity", NewToxicity); err != nil {
		return err
	}
	return nil
}

// ScoreInput defines the arguments for quality.score.
type ScoreInput struct {
	Path string  `cty:"path,required"`
	Key  *string `cty:"key"`
}

// Score writes a heuristic text quality score in [0, 1] into metadata.
type Score struct {
	path record.Path
	key  string
}

// NewScore is the quality.score factory.
func NewScore(cfg operator.Config) (operator.Operator, error) {
	var in ScoreInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return nil, err
	}
	return &Score{path: p, key: keyOr(in.Key, "quality")}, nil
}

func (s *Score) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		text, ok := s.path.ResolveString(r)
		if !ok {
			return r, true, nil
		}
		return r.WithMetadata(s.key, ScoreText(text)), true, nil
	}), nil
}

func (s *Score) Hints() operator.Hints {
	return operator.Hints{Reads: []string{s.path.String()}, Writes: []string{"metadata." + s.key}}
}

// ScoreText rewards ASCII content and penalizes control characters and long
// runs of a repeated character:
//
//	0.6*ascii_ratio + 0.4*(1-nonprint_ratio) - (max_run-1)/min(len,100)
//
// clamped to [0, 1]. Lengths count runes. Empty text scores 0.
func ScoreText(text string) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	var ascii, nonprint int
	maxRun, run := 1, 1
	prev := rune(0)
	for _, ch := range text {
		if ch <= 0x7F {
			ascii++
		}
		if ch < 0x20 && ch != '\n' && ch != '\t' {
			nonprint++
		}
		if ch == prev {
			run++
		} else {
			run, prev = 1, ch
		}
		maxRun = max(maxRun, run)
	}
	length := float64(n)
	base := 0.6*float64(ascii)/length + 0.4*(1-float64(nonprint)/length)
	penalty := float64(maxRun-1) / min(length, 100)
	return min(max(base-penalty, 0), 1)
}

// FilterInput defines the arguments for quality.filter.
type FilterInput struct {
	Key *string `cty:"key"`
	Min float64 `cty:"min,required"`
}

// Filter keeps records whose metadata score is at least Min. Records without
// a numeric score are dropped.
type Filter struct {
	key string
	min float64
}

// NewFilter is the quality.filter factory.
func NewFilter(cfg operator.Config) (operator.Operator, error) {
	var in FilterInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	return &Filter{key: keyOr(in.Key, "quality"), min: in.Min}, nil
}

func (f *Filter) Apply(_ context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	res := operator.Filter(in, func(r record.Record) bool {
		v, ok := r.Meta(f.key)
		if !ok {
			return false
		}
		score, ok := record.Number(v)
		return ok && score >= f.min
	})
	ec.Counter("quality.filtered").Add(int64(len(in) - len(res.Records)))
	return res, nil
}

func (f *Filter) Hints() operator.Hints {
	return operator.Hints{Reads: []string{"metadata." + f.key}}
}

func keyOr(key *string, def string) string {
	if key == nil || *key == "" {
		return def
	}
	return *key
}
