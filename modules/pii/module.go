// Package pii provides pii.redact, which replaces personal data in a string
// field with tags such as <EMAIL>.
package pii

import (
	"context"
	"regexp"
	"strings"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers pii.redact.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register("pii.redact", NewRedact)
}

// Rule replaces every match of Pattern with Tag.
type Rule struct {
	Pattern *regexp.Regexp
	Tag     string
}

// DefaultRules are applied in order before any custom rule.
var DefaultRules = []Rule{
	{Pattern: regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`), Tag: "<EMAIL>"},
	{Pattern: regexp.MustCompile(`\b(?:\+?\d{1,3}[ -]?)?(?:\(?\d{2,4}\)?[ -]?)?\d{7,12}\b`), Tag: "<PHONE>"},
	{Pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), Tag: "<CARD>"},
	{Pattern: regexp.MustCompile(`(?i)https?://[\w./?#%=&-]+`), Tag: "<URL>"},
}

// CustomInput is one user-supplied rule.
type CustomInput struct {
	Pattern string `cty:"pattern,required"`
	Tag     string `cty:"tag,required"`
}

// RedactInput is the config of pii.redact.
type RedactInput struct {
	Path     string        `cty:"path,required"`
	StoreKey *string       `cty:"store_key"`
	Custom   []CustomInput `cty:"custom"`
}

// Redact rewrites the string at path. When storeKey is set, the list of
// {from, to} replacements is written to that metadata key.
type Redact struct {
	path     record.Path
	rules    []Rule
	storeKey string
}

// NewRedact is the factory for pii.redact.
func NewRedact(cfg operator.Config) (operator.Operator, error) {
	var in RedactInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return nil, err
	}
	op := &Redact{path: p, rules: append([]Rule(nil), DefaultRules...)}
	if in.StoreKey != nil {
		op.storeKey = *in.StoreKey
	}
	for _, c := range in.Custom {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, operator.Invalid("custom", "invalid pii pattern: %v", err)
		}
		op.rules = append(op.rules, Rule{Pattern: re, Tag: "<" + strings.ToUpper(c.Tag) + ">"})
	}
	return op, nil
}

// Replacement records one redacted value.
type Replacement struct {
	From string
	To   string
}

// Text redacts s and returns the distinct values it replaced, in the order
// they were found.
func (o *Redact) Text(s string) (string, []Replacement) {
	var found []Replacement
	seen := make(map[Replacement]struct{})
	for _, rule := range o.rules {
		s = rule.Pattern.ReplaceAllStringFunc(s, func(m string) string {
			r := Replacement{From: m, To: rule.Tag}
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				found = append(found, r)
			}
			return rule.Tag
		})
	}
	return s, found
}

func (o *Redact) Apply(_ context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	redacted := ec.Counter("pii.redacted")
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		text, ok := o.path.ResolveString(r)
		if !ok {
			return r, true, nil
		}
		clean, found := o.Text(text)
		redacted.Add(int64(len(found)))

		out, err := o.path.Set(r, clean)
		if err != nil {
			return r, false, err
		}
		if o.storeKey != "" {
			entries := make([]any, len(found))
			for i, f := range found {
				entries[i] = map[string]any{"from": f.From, "to": f.To}
			}
			out = out.WithMetadata(o.storeKey, entries)
		}
		return out, true, nil
	}), nil
}

func (o *Redact) Hints() operator.Hints {
	h := operator.Hints{Reads: []string{o.path.String()}, Writes: []string{o.path.String()}}
	if o.storeKey != "" {
		h.Writes = append(h.Writes, "metadata."+o.storeKey)
	}
	return h
}
