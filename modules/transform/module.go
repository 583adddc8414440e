// Package transform provides operators that rewrite string fields in place.
package transform

import (
	"context"
	"strings"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers transform.normalize and transform.chain.
func (m *Module) Register(r *registry.Registry) error {
	if err := r.Register("transform.normalize", NewNormalize); err != nil {
		return err
	}
	return r.Register("transform.chain", NewChain)
}

var forms = map[string]norm.Form{
	"NFC":  norm.NFC,
	"NFD":  norm.NFD,
	"NFKC": norm.NFKC,
	"NFKD": norm.NFKD,
}

// NormalizeInput is the config of transform.normalize.
type NormalizeInput struct {
	Path      string  `cty:"path,required"`
	Lowercase bool    `cty:"lowercase"`
	Form      *string `cty:"form"`
}

// Normalize applies a Unicode normalization form, collapses runs of
// whitespace to single spaces and optionally lowercases.
type Normalize struct {
	path      record.Path
	form      norm.Form
	lowercase bool
}

// NewNormalize is the factory for transform.normalize.
func NewNormalize(cfg operator.Config) (operator.Operator, error) {
	var in NormalizeInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return nil, err
	}
	formName := "NFC"
	if in.Form != nil {
		formName = strings.ToUpper(*in.Form)
	}
	form, ok := forms[formName]
	if !ok {
		return nil, operator.Invalid("form", "unknown normalization form '%s'", formName)
	}
	return &Normalize{path: p, form: form, lowercase: in.Lowercase}, nil
}

// Text normalizes a single string.
func (n *Normalize) Text(s string) string {
	s = strings.Join(strings.Fields(n.form.String(s)), " ")
	if n.lowercase {
		// cases.Caser is stateful, so each call gets its own.
		s = cases.Lower(language.Und).String(s)
	}
	return s
}

func (n *Normalize) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return rewrite(in, n.path, func(v any) any {
		if s, ok := v.(string); ok {
			return n.Text(s)
		}
		return v
	}), nil
}

func (n *Normalize) Hints() operator.Hints {
	return operator.Hints{Reads: []string{n.path.String()}, Writes: []string{n.path.String()}}
}

// rewrite replaces the value at path with fn(value) in every record that has
// one. Records without the path pass through unchanged.
func rewrite(in record.Batch, path record.Path, fn func(any) any) operator.Result {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		v, ok := path.Resolve(r)
		if !ok {
			return r, true, nil
		}
		out, err := path.Set(r, fn(v))
		if err != nil {
			return r, false, err
		}
		return out, true, nil
	})
}
