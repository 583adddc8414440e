package quality

import (
	"context"
	"strings"
	"unicode"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
)

// Term is one weighted lexicon entry.
type Term struct {
	Word   string   `cty:"word,required"`
	Weight *float64 `cty:"weight"`
}

// ToxicityInput defines the arguments for quality.toxicity.
type ToxicityInput struct {
	Path    string  `cty:"path,required"`
	Key     *string `cty:"key"`
	Lexicon []Term  `cty:"lexicon"`
}

var defaultLexicon = map[string]float64{
	"kill":     1.0,
	"hate":     0.8,
	"abuse":    0.8,
	"stupid":   0.6,
	"idiot":    0.6,
	"violence": 0.7,
}

// Toxicity scores text against a weighted lexicon. The score is the summed
// weight of every matching token divided by the lexicon size, capped at 1.
type Toxicity struct {
	path    record.Path
	key     string
	lexicon map[string]float64
}

// NewToxicity is the quality.toxicity factory.
func NewToxicity(cfg operator.Config) (operator.Operator, error) {
	var in ToxicityInput
	if err := cfg.Decode(&in); err != nil {
		return nil, err
	}
	p, err := operator.PathField("path", in.Path)
	if err != nil {
		return nil, err
	}

	lexicon := defaultLexicon
	if in.Lexicon != nil {
		if len(in.Lexicon) == 0 {
			return nil, operator.Invalid("lexicon", "may not be empty")
		}
		lexicon = make(map[string]float64, len(in.Lexicon))
		for _, t := range in.Lexicon {
			w := 1.0
			if t.Weight != nil {
				w = min(max(*t.Weight, 0), 1)
			}
			lexicon[strings.ToLower(t.Word)] = w
		}
	}
	return &Toxicity{path: p, key: keyOr(in.Key, "toxicity"), lexicon: lexicon}, nil
}

func (t *Toxicity) Apply(_ context.Context, _ *operator.ExecContext, in record.Batch) (operator.Result, error) {
	return operator.Map(in, func(_ int, r record.Record) (record.Record, bool, error) {
		text, ok := t.path.ResolveString(r)
		if !ok {
			return r, true, nil
		}
		return r.WithMetadata(t.key, t.score(text)), true, nil
	}), nil
}

func (t *Toxicity) score(text string) float64 {
	tokens := strings.FieldsFunc(text, func(c rune) bool { return !unicode.IsLetter(c) })
	if len(tokens) == 0 {
		return 0
	}
	total := 0.0
	for _, tok := range tokens {
		total += t.lexicon[strings.ToLower(tok)]
	}
	return min(total/float64(len(t.lexicon)), 1)
}

func (t *Toxicity) Hints() operator.Hints {
	return operator.Hints{Reads: []string{t.path.String()}, Writes: []string{"metadata." + t.key}}
}
