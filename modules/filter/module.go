// Package filter provides record predicates over a single field path. Every
// filter keeps record order and never modifies the records it keeps.
package filter

import (
	"context"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

var factories = []struct {
	name    string
	factory registry.Factory
}{
	{"filter.equals", NewEquals},
	{"filter.not_equals", NewNotEquals},
	{"filter.any", NewAny},
	{"filter.exists", NewExists},
	{"filter.not_exists", NewNotExists},
	{"filter.is_null", NewIsNull},
	{"filter.contains", NewContains},
	{"filter.starts_with", NewStartsWith},
	{"filter.ends_with", NewEndsWith},
	{"filter.in", NewIn},
	{"filter.not_in", NewNotIn},
	{"filter.length_range", NewLengthRange},
	{"filter.greater_than", NewGreaterThan},
	{"filter.less_than", NewLessThan},
	{"filter.between", NewBetween},
	{"filter.regex", NewRegex},
}

// Register registers the filter.* operators.
func (m *Module) Register(r *registry.Registry) error {
	for _, f := range factories {
		if err := r.Register(f.name, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// matcher decides from the resolved value (and whether it exists) whether a
// record is kept.
type matcher func(v any, found bool) bool

// Predicate is the operator behind every filter.
type Predicate struct {
	paths []record.Path
	match matcher
}

func newPredicate(match matcher, paths ...record.Path) *Predicate {
	return &Predicate{paths: paths, match: match}
}

// Apply keeps the records for which any configured path matches.
func (p *Predicate) Apply(_ context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	res := operator.Filter(in, func(r record.Record) bool {
		for _, path := range p.paths {
			v, ok := path.Resolve(r)
			if p.match(v, ok) {
				return true
			}
		}
		return false
	})
	ec.Counter("filter.dropped").Add(int64(len(in) - len(res.Records)))
	return res, nil
}

func (p *Predicate) Hints() operator.Hints {
	reads := make([]string, len(p.paths))
	for i, path := range p.paths {
		reads[i] = path.String()
	}
	return operator.Hints{Reads: reads}
}
