// Package metadata provides operators that add, remove, move and validate
// record metadata keys. Payloads are never modified.
package metadata

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the metadata.* operators.
func (m *Module) Register(r *registry.Registry) error {
	for _, f := range factories {
		if err := r.Register(f.name, f.factory); err != nil {
			return err
		}
	}
	return nil
}

var factories = []struct {
	name    string
	factory registry.Factory
}{
	{"metadata.enrich", NewEnrich},
	{"metadata.remove", NewRemove},
	{"metadata.keep", NewKeep},
	{"metadata.rename", NewRename},
	{"metadata.copy", NewCopy},
	{"metadata.require", NewRequire},
	{"metadata.extract", NewExtract},
}

// edit returns r with its metadata rewritten by fn on a private copy. A map
// left empty is dropped.
func edit(r record.Record, fn func(md map[string]any)) record.Record {
	md := maps.Clone(r.Metadata)
	if md == nil {
		md = make(map[string]any)
	}
	fn(md)
	if len(md) == 0 {
		md = nil
	}
	r.Metadata = md
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// EnrichInput is the config of metadata.enrich.
type EnrichInput struct {
	Entries map[string]any `cty:"entries,required"`
}

// Enrich sets fixed metadata entries on every record.
type Enrich struct {
	entries map[string]any
}

func NewEnrich(cfg operator.Config) (operator.Operator, error) {
	var in EnrichInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	return &Enrich{entries: in.Entries}, nil
}

func (e *Enrich) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		return edit(r, func(md map[string]any) {
			for k, v := range e.entries {
				md[k] = record.CloneValue(v)
			}
		}), true, nil
	}), nil
}

func (e *Enrich) Hints() operator.Hints {
	return operator.Hints{Writes: metaPaths(sortedKeys(e.entries))}
}

// KeysInput is the config of operators that take a list of keys.
type KeysInput struct {
	Keys []string `cty:"keys,required"`
}

func decodeKeys(cfg operator.Config, allowEmpty bool) ([]string, error) {
	var in KeysInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	if len(in.Keys) == 0 && !allowEmpty {
		return nil, operator.Invalid("keys", "may not be empty")
	}
	return in.Keys, nil
}

func metaPaths(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = "metadata." + k
	}
	return out
}

// Remove deletes the listed keys.
type Remove struct {
	keys []string
}

func NewRemove(cfg operator.Config) (operator.Operator, error) {
	keys, err := decodeKeys(cfg, true)
	if err != nil {
		return nil, err
	}
	return &Remove{keys: keys}, nil
}

func (o *Remove) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		if r.Metadata == nil {
			return r, true, nil
		}
		return edit(r, func(md map[string]any) {
			for _, k := range o.keys {
				delete(md, k)
			}
		}), true, nil
	}), nil
}

func (o *Remove) Hints() operator.Hints { return operator.Hints{Writes: metaPaths(o.keys)} }

// Keep deletes every key that is not listed.
type Keep struct {
	keys []string
}

func NewKeep(cfg operator.Config) (operator.Operator, error) {
	keys, err := decodeKeys(cfg, false)
	if err != nil {
		return nil, err
	}
	return &Keep{keys: keys}, nil
}

func (o *Keep) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		if r.Metadata == nil {
			return r, true, nil
		}
		return edit(r, func(md map[string]any) {
			maps.DeleteFunc(md, func(k string, _ any) bool { return !slices.Contains(o.keys, k) })
		}), true, nil
	}), nil
}

func (o *Keep) Hints() operator.Hints { return operator.Hints{Reads: metaPaths(o.keys)} }

// MappingInput is the config of rename and copy.
type MappingInput struct {
	Keys map[string]string `cty:"keys,required"`
}

func decodeMapping(cfg operator.Config) (map[string]string, error) {
	var in MappingInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	for _, from := range sortedKeys(in.Keys) {
		if in.Keys[from] == "" {
			return nil, operator.Invalid("keys."+from, "target name may not be empty")
		}
	}
	return in.Keys, nil
}

// Move renames (or, with keepSource, copies) metadata keys. Sources are read
// before any target is written, so swaps behave as expected.
type Move struct {
	mapping    map[string]string
	order      []string
	keepSource bool
}

func newMove(cfg operator.Config, keepSource bool) (operator.Operator, error) {
	mapping, err := decodeMapping(cfg)
	if err != nil {
		return nil, err
	}
	return &Move{mapping: mapping, order: sortedKeys(mapping), keepSource: keepSource}, nil
}

// NewRename is the factory for metadata.rename.
func NewRename(cfg operator.Config) (operator.Operator, error) { return newMove(cfg, false) }

// NewCopy is the factory for metadata.copy.
func NewCopy(cfg operator.Config) (operator.Operator, error) { return newMove(cfg, true) }

func (o *Move) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		if r.Metadata == nil {
			return r, true, nil
		}
		return edit(r, func(md map[string]any) {
			type move struct {
				to    string
				value any
			}
			var moves []move
			for _, from := range o.order {
				if v, ok := md[from]; ok {
					moves = append(moves, move{to: o.mapping[from], value: v})
					if !o.keepSource {
						delete(md, from)
					}
				}
			}
			for _, m := range moves {
				md[m.to] = m.value
			}
		}), true, nil
	}), nil
}

func (o *Move) Hints() operator.Hints {
	h := operator.Hints{Reads: metaPaths(o.order)}
	for _, from := range o.order {
		h.Writes = append(h.Writes, "metadata."+o.mapping[from])
	}
	return h
}

// Require fails every record that lacks one of the keys.
type Require struct {
	keys []string
}

func NewRequire(cfg operator.Config) (operator.Operator, error) {
	keys, err := decodeKeys(cfg, false)
	if err != nil {
		return nil, err
	}
	return &Require{keys: keys}, nil
}

func (o *Require) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		for _, k := range o.keys {
			if _, ok := r.Meta(k); !ok {
				return r, false, fmt.Errorf("missing metadata key '%s'", k)
			}
		}
		return r, true, nil
	}), nil
}

func (o *Require) Hints() operator.Hints { return operator.Hints{Reads: metaPaths(o.keys)} }
