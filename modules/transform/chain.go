package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StepInput configures one string function of transform.chain. Which of the
// optional attributes are used depends on Func.
type StepInput struct {
	Func        string `cty:"func,required"`
	From        string `cty:"from"`
	To          string `cty:"to"`
	Pattern     string `cty:"pattern"`
	Replacement string `cty:"replacement"`
	Value       string `cty:"value"`
	Length      *int   `cty:"length"`
}

// ChainInput is the config of transform.chain.
type ChainInput struct {
	Path  string      `cty:"path,required"`
	Steps []StepInput `cty:"steps,required"`
}

type stringFunc func(string) string

// Chain applies a sequence of string functions to one field. Non-string
// values are left alone.
type Chain struct {
	path  record.Path
	funcs []stringFunc
}

// NewChain is the factory for transform.chain.
func NewChain(cfg operator.Config) (operator.Operator, error) {
	var in ChainInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return nil, err
	}
	if len(in.Steps) == 0 {
		return nil, operator.Invalid("steps", "may not be empty")
	}
	c := &Chain{path: p}
	for i, s := range in.Steps {
		fn, err := compileStep(s)
		if err != nil {
			return nil, operator.Invalid(fmt.Sprintf("steps[%d]", i), "%v", err)
		}
		c.funcs = append(c.funcs, fn)
	}
	return c, nil
}

func compileStep(s StepInput) (stringFunc, error) {
	switch s.Func {
	case "lowercase":
		return func(v string) string { return cases.Lower(language.Und).String(v) }, nil
	case "uppercase":
		return func(v string) string { return cases.Upper(language.Und).String(v) }, nil
	case "trim":
		return strings.TrimSpace, nil
	case "replace":
		if s.From == "" {
			return nil, fmt.Errorf("'replace' requires 'from'")
		}
		return func(v string) string { return strings.ReplaceAll(v, s.From, s.To) }, nil
	case "regex_replace":
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regular expression: %w", err)
		}
		return func(v string) string { return re.ReplaceAllString(v, s.Replacement) }, nil
	case "prefix":
		return func(v string) string { return s.Value + v }, nil
	case "suffix":
		return func(v string) string { return v + s.Value }, nil
	case "truncate":
		if s.Length == nil || *s.Length < 0 {
			return nil, fmt.Errorf("'truncate' requires a non-negative 'length'")
		}
		n := *s.Length
		return func(v string) string {
			r := []rune(v)
			return string(r[:min(n, len(r))])
		}, nil
	default:
		return nil, fmt.Errorf("unknown function '%s'", s.Func)
	}
}

func (c *Chain) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return rewrite(in, c.path, func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		for _, fn := range c.funcs {
			s = fn(s)
		}
		return s
	}), nil
}

func (c *Chain) Hints() operator.Hints {
	return operator.Hints{Reads: []string{c.path.String()}, Writes: []string{c.path.String()}}
}
