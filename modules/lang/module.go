// Package lang provides script-based language detection operators.
package lang

import (
	"context"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the lang.* operators.
func (m *Module) Register(r *registry.Registry) error {
	if err := r.Register("lang.detect", NewDetect); err != nil {
		return err
	}
	return r.Register("lang.confidence", NewConfidence)
}

// Input defines the config shared by both operators.
type Input struct {
	Path string  `cty:"path,required"`
	Key  *string `cty:"key"`
}

func (in Input) parse(defaultKey string) (record.Path, string, error) {
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return record.Path{}, "", err
	}
	key := defaultKey
	if in.Key != nil {
		key = *in.Key
	}
	if key == "" {
		return record.Path{}, "", operator.Invalid("key", "may not be empty")
	}
	return p, key, nil
}

// scripts counts characters per script family.
type scripts struct {
	latin, cjk, arabic, cyrillic, total int
}

func countScripts(text string) scripts {
	var s scripts
	for _, ch := range text {
		s.total++
		switch {
		case ch <= 0x7F:
			s.latin++
		case (ch >= 0x4E00 && ch <= 0x9FFF) || (ch >= 0x3400 && ch <= 0x4DBF) || (ch >= 0xF900 && ch <= 0xFAFF):
			s.cjk++
		case (ch >= 0x0600 && ch <= 0x06FF) || (ch >= 0x0750 && ch <= 0x077F) || (ch >= 0x08A0 && ch <= 0x08FF):
			s.arabic++
		case ch >= 0x0400 && ch <= 0x052F:
			s.cyrillic++
		}
	}
	return s
}

func (s scripts) dominant() int {
	return max(s.latin, s.cjk, s.arabic, s.cyrillic)
}

// iso picks the language of the dominant script. Ties resolve in the order
// zh, ar, ru, en.
func (s scripts) iso() string {
	if s.total == 0 {
		return "und"
	}
	switch s.dominant() {
	case s.cjk:
		return "zh"
	case s.arabic:
		return "ar"
	case s.cyrillic:
		return "ru"
	default:
		return "en"
	}
}

// Detect writes an ISO 639-1 code into metadata for every record whose path
// holds a string. Other records pass through untouched.
type Detect struct {
	path record.Path
	key  string
}

// NewDetect is the lang.detect factory.
func NewDetect(cfg operator.Config) (operator.Operator, error) {
	var in Input
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, key, err := in.parse("lang")
	if err != nil {
		return nil, err
	}
	return &Detect{path: p, key: key}, nil
}

func (d *Detect) Apply(_ context.Context, ec *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		text, ok := d.path.ResolveString(r)
		if !ok {
			return r, true, nil
		}
		iso := countScripts(text).iso()
		ec.Counter("lang." + iso).Add(1)
		return r.WithMetadata(d.key, iso), true, nil
	}), nil
}

func (d *Detect) Hints() operator.Hints {
	return operator.Hints{Reads: []string{d.path.String()}, Writes: []string{"metadata." + d.key}}
}

// Confidence writes the share of characters in the dominant script.
type Confidence struct {
	path record.Path
	key  string
}

// NewConfidence is the lang.confidence factory.
func NewConfidence(cfg operator.Config) (operator.Operator, error) {
	var in Input
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, key, err := in.parse("lang_confidence")
	if err != nil {
		return nil, err
	}
	return &Confidence{path: p, key: key}, nil
}

func (c *Confidence) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		text, ok := c.path.ResolveString(r)
		if !ok {
			return r, true, nil
		}
		s := countScripts(text)
		if s.total == 0 {
			return r, true, nil
		}
		conf := min(max(float64(s.dominant())/float64(s.total), 0), 1)
		return r.WithMetadata(c.key, conf), true, nil
	}), nil
}

func (c *Confidence) Hints() operator.Hints {
	return operator.Hints{Reads: []string{c.path.String()}, Writes: []string{"metadata." + c.key}}
}
