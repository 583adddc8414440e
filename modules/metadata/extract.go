package metadata

import (
	"context"
	"fmt"
	"regexp"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
)

// Target describes where and how an extracted value is stored.
type Target struct {
	Name     string `cty:"name,required"`
	Optional bool   `cty:"optional"`
	Default  any    `cty:"default"`
	Pattern  string `cty:"pattern"`
	Capture  *int   `cty:"capture"`
}

// ExtractInput is the config of metadata.extract. Keys are source paths.
type ExtractInput struct {
	Keys map[string]Target `cty:"keys,required"`
}

type rule struct {
	source  record.Path
	target  Target
	pattern *regexp.Regexp
	capture int
}

// Extract copies values found at record paths into metadata keys, optionally
// through a regular expression capture group.
type Extract struct {
	rules []rule
}

// NewExtract is the factory for metadata.extract.
func NewExtract(cfg operator.Config) (operator.Operator, error) {
	var in ExtractInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	var rules []rule
	for _, src := range sortedKeys(in.Keys) {
		t := in.Keys[src]
		field := "keys." + src
		p, err := operator.PathField(field, src)
		if err != nil {
			return nil, err
		}
		if t.Name == "" {
			return nil, operator.Invalid(field+".name", "may not be empty")
		}
		ru := rule{source: p, target: t}
		if t.Pattern != "" {
			if ru.pattern, err = regexp.Compile(t.Pattern); err != nil {
				return nil, operator.Invalid(field+".pattern", "invalid regular expression: %v", err)
			}
		}
		if t.Capture != nil {
			if ru.pattern == nil {
				return nil, operator.Invalid(field+".capture", "requires 'pattern'")
			}
			if *t.Capture < 0 || *t.Capture > ru.pattern.NumSubexp() {
				return nil, operator.Invalid(field+".capture", "pattern has no group %d", *t.Capture)
			}
			ru.capture = *t.Capture
		}
		rules = append(rules, ru)
	}
	return &Extract{rules: rules}, nil
}

func (e *Extract) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		for _, ru := range e.rules {
			v, ok, err := ru.value(r)
			if err != nil {
				return r, false, err
			}
			if ok {
				r = r.WithMetadata(ru.target.Name, v)
			}
		}
		return r, true, nil
	}), nil
}

// value resolves one rule. ok is false when an optional rule found nothing.
func (ru rule) value(r record.Record) (any, bool, error) {
	fallback := func(reason string) (any, bool, error) {
		switch {
		case ru.target.Default != nil:
			return ru.target.Default, true, nil
		case ru.target.Optional:
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s for '%s'", reason, ru.source)
	}

	v, found := ru.source.Resolve(r)
	if !found {
		return fallback("missing path")
	}
	s, isString := v.(string)
	if ru.pattern == nil || !isString {
		return v, true, nil
	}
	m := ru.pattern.FindStringSubmatchIndex(s)
	if m == nil || m[2*ru.capture] < 0 {
		return fallback("pattern did not match")
	}
	return s[m[2*ru.capture]:m[2*ru.capture+1]], true, nil
}

func (e *Extract) Hints() operator.Hints {
	var h operator.Hints
	for _, ru := range e.rules {
		h.Reads = append(h.Reads, ru.source.String())
		h.Writes = append(h.Writes, "metadata."+ru.target.Name)
	}
	return h
}
