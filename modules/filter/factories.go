package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
)

// PathInput is the config of filters that only need a path.
type PathInput struct {
	Path string `cty:"path,required"`
}

// ValueInput is the config of equals and not_equals.
type ValueInput struct {
	Path   string `cty:"path,required"`
	Equals any    `cty:"equals,required"`
}

// decode decodes cfg into in and parses the path attribute.
func decode[T any](cfg operator.Config, in *T, path func(*T) string) (record.Path, error) {
	if err := cfg.Decode(in); err != nil {
		return record.Path{}, err
	}
	return operator.PathField("path", path(in))
}

// NewEquals keeps records whose field equals the configured value.
func NewEquals(cfg operator.Config) (operator.Operator, error) {
	var in ValueInput
	p, err := decode(cfg, &in, func(i *ValueInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool {
		return found && record.ValuesEqual(v, in.Equals)
	}, p), nil
}

// NewNotEquals keeps records whose field is missing or differs from the value.
func NewNotEquals(cfg operator.Config) (operator.Operator, error) {
	var in ValueInput
	p, err := decode(cfg, &in, func(i *ValueInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool {
		return !found || !record.ValuesEqual(v, in.Equals)
	}, p), nil
}

// AnyInput is the config of filter.any.
type AnyInput struct {
	Paths  []string `cty:"paths,required"`
	Equals any      `cty:"equals,required"`
}

// NewAny keeps records where at least one of several fields equals the value.
func NewAny(cfg operator.Config) (operator.Operator, error) {
	var in AnyInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	if len(in.Paths) == 0 {
		return nil, operator.Invalid("paths", "may not be empty")
	}
	paths := make([]record.Path, len(in.Paths))
	for i, raw := range in.Paths {
		p, err := operator.PathField("paths", raw)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return newPredicate(func(v any, found bool) bool {
		return found && record.ValuesEqual(v, in.Equals)
	}, paths...), nil
}

// NewExists keeps records whose field is present and not null.
func NewExists(cfg operator.Config) (operator.Operator, error) {
	var in PathInput
	p, err := decode(cfg, &in, func(i *PathInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool { return found && v != nil }, p), nil
}

// NewNotExists keeps records whose field is missing or null.
func NewNotExists(cfg operator.Config) (operator.Operator, error) {
	var in PathInput
	p, err := decode(cfg, &in, func(i *PathInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool { return !found || v == nil }, p), nil
}

// IsNullInput is the config of filter.is_null.
type IsNullInput struct {
	Path           string `cty:"path,required"`
	IncludeMissing *bool  `cty:"include_missing"`
}

// NewIsNull keeps records whose field is null, and by default those where it
// is missing altogether.
func NewIsNull(cfg operator.Config) (operator.Operator, error) {
	var in IsNullInput
	p, err := decode(cfg, &in, func(i *IsNullInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	includeMissing := in.IncludeMissing == nil || *in.IncludeMissing
	return newPredicate(func(v any, found bool) bool {
		if !found {
			return includeMissing
		}
		return v == nil
	}, p), nil
}

// ContainsInput is the config of filter.contains.
type ContainsInput struct {
	Path            string `cty:"path,required"`
	Contains        string `cty:"contains,required"`
	CaseInsensitive bool   `cty:"case_insensitive"`
}

// NewContains keeps records whose string field, or any string in an array
// field, contains the needle.
func NewContains(cfg operator.Config) (operator.Operator, error) {
	var in ContainsInput
	p, err := decode(cfg, &in, func(i *ContainsInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	needle := in.Contains
	if in.CaseInsensitive {
		needle = strings.ToLower(needle)
	}
	return newPredicate(anyString(func(s string) bool {
		if in.CaseInsensitive {
			s = strings.ToLower(s)
		}
		return strings.Contains(s, needle)
	}), p), nil
}

// AffixInput is the config of starts_with and ends_with.
type AffixInput struct {
	Path   string `cty:"path,required"`
	Prefix string `cty:"prefix"`
	Suffix string `cty:"suffix"`
}

// NewStartsWith keeps records whose string field starts with prefix.
func NewStartsWith(cfg operator.Config) (operator.Operator, error) {
	var in AffixInput
	p, err := decode(cfg, &in, func(i *AffixInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	if in.Prefix == "" {
		return nil, operator.Invalid("prefix", "required attribute is missing")
	}
	return newPredicate(anyString(func(s string) bool { return strings.HasPrefix(s, in.Prefix) }), p), nil
}

// NewEndsWith keeps records whose string field ends with suffix.
func NewEndsWith(cfg operator.Config) (operator.Operator, error) {
	var in AffixInput
	p, err := decode(cfg, &in, func(i *AffixInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	if in.Suffix == "" {
		return nil, operator.Invalid("suffix", "required attribute is missing")
	}
	return newPredicate(anyString(func(s string) bool { return strings.HasSuffix(s, in.Suffix) }), p), nil
}

// SetInput is the config of filter.in and filter.not_in.
type SetInput struct {
	Path   string `cty:"path,required"`
	Values []any  `cty:"values,required"`
}

func decodeSet(cfg operator.Config) (record.Path, []any, error) {
	var in SetInput
	p, err := decode(cfg, &in, func(i *SetInput) string { return i.Path })
	if err != nil {
		return record.Path{}, nil, err
	}
	if len(in.Values) == 0 {
		return record.Path{}, nil, operator.Invalid("values", "may not be empty")
	}
	return p, in.Values, nil
}

func member(v any, set []any) bool {
	for _, s := range set {
		if record.ValuesEqual(v, s) {
			return true
		}
	}
	return false
}

// NewIn keeps records whose field equals one of the values.
func NewIn(cfg operator.Config) (operator.Operator, error) {
	p, values, err := decodeSet(cfg)
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool { return found && member(v, values) }, p), nil
}

// NewNotIn keeps records whose field is missing or equals none of the values.
func NewNotIn(cfg operator.Config) (operator.Operator, error) {
	p, values, err := decodeSet(cfg)
	if err != nil {
		return nil, err
	}
	return newPredicate(func(v any, found bool) bool { return !found || !member(v, values) }, p), nil
}

// LengthInput is the config of filter.length_range.
type LengthInput struct {
	Path string `cty:"path,required"`
	Min  *int   `cty:"min"`
	Max  *int   `cty:"max"`
}

// NewLengthRange keeps string fields whose rune count lies within the
// optional bounds.
func NewLengthRange(cfg operator.Config) (operator.Operator, error) {
	var in LengthInput
	p, err := decode(cfg, &in, func(i *LengthInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	if in.Min == nil && in.Max == nil {
		return nil, operator.Invalid("min", "at least one of 'min' or 'max' is required")
	}
	if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
		return nil, operator.Invalid("min", "may not exceed 'max'")
	}
	return newPredicate(func(v any, found bool) bool {
		s, ok := v.(string)
		if !found || !ok {
			return false
		}
		n := utf8.RuneCountInString(s)
		return (in.Min == nil || n >= *in.Min) && (in.Max == nil || n <= *in.Max)
	}, p), nil
}

// ThresholdInput is the config of greater_than and less_than.
type ThresholdInput struct {
	Path      string  `cty:"path,required"`
	Threshold float64 `cty:"threshold,required"`
}

func numeric(cmp func(float64) bool) matcher {
	return func(v any, found bool) bool {
		n, ok := record.Number(v)
		return found && ok && cmp(n)
	}
}

// NewGreaterThan keeps numeric fields strictly above threshold.
func NewGreaterThan(cfg operator.Config) (operator.Operator, error) {
	var in ThresholdInput
	p, err := decode(cfg, &in, func(i *ThresholdInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(numeric(func(n float64) bool { return n > in.Threshold }), p), nil
}

// NewLessThan keeps numeric fields strictly below threshold.
func NewLessThan(cfg operator.Config) (operator.Operator, error) {
	var in ThresholdInput
	p, err := decode(cfg, &in, func(i *ThresholdInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	return newPredicate(numeric(func(n float64) bool { return n < in.Threshold }), p), nil
}

// BetweenInput is the config of filter.between.
type BetweenInput struct {
	Path string  `cty:"path,required"`
	Min  float64 `cty:"min,required"`
	Max  float64 `cty:"max,required"`
}

// NewBetween keeps numeric fields within [min, max].
func NewBetween(cfg operator.Config) (operator.Operator, error) {
	var in BetweenInput
	p, err := decode(cfg, &in, func(i *BetweenInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	if in.Min > in.Max {
		return nil, operator.Invalid("min", "may not exceed 'max'")
	}
	return newPredicate(numeric(func(n float64) bool { return n >= in.Min && n <= in.Max }), p), nil
}

// RegexInput is the config of filter.regex.
type RegexInput struct {
	Path    string `cty:"path,required"`
	Pattern string `cty:"pattern,required"`
}

// NewRegex keeps records whose string field, or any string in an array
// field, matches the pattern.
func NewRegex(cfg operator.Config) (operator.Operator, error) {
	var in RegexInput
	p, err := decode(cfg, &in, func(i *RegexInput) string { return i.Path })
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return nil, operator.Invalid("pattern", "invalid regular expression: %v", err)
	}
	return newPredicate(anyString(re.MatchString), p), nil
}

// anyString matches a string value, or an array holding a matching string.
func anyString(match func(string) bool) matcher {
	return func(v any, found bool) bool {
		if !found {
			return false
		}
		switch t := v.(type) {
		case string:
			return match(t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok && match(s) {
					return true
				}
			}
		}
		return false
	}
}
