package pipeline

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/datagridgo/internal/operator"
)

// Mode selects how steps are wired together.
type Mode string

const (
	// ModeAuto picks ModeDAG when any step declares depends_on, else ModeSequential.
	ModeAuto Mode = ""
	// ModeSequential chains step i after step i-1.
	ModeSequential Mode = "sequential"
	// ModeDAG wires steps by their explicit depends_on lists.
	ModeDAG Mode = "dag"
)

// Step is one declarative unit: an operator name plus its config.
type Step struct {
	// Index is the step's position in the declaration order.
	Index int
	// Name identifies the step in depends_on lists and diagnostics.
	Name      string
	Operator  string
	Config    operator.Config
	DependsOn []string
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	Mode  Mode
	Steps []Step
}

// EffectiveMode resolves ModeAuto.
func (p Pipeline) EffectiveMode() Mode {
	if p.Mode != ModeAuto {
		return p.Mode
	}
	for _, s := range p.Steps {
		if len(s.DependsOn) > 0 {
			return ModeDAG
		}
	}
	return ModeSequential
}

// DefaultStepName is used for steps declared without a name.
func DefaultStepName(op string, index int) string {
	return fmt.Sprintf("%s#%d", op, index)
}

// New builds a sequential pipeline from operator/config pairs, mostly for
// tests and programmatic callers.
func New(steps ...Step) Pipeline {
	out := Pipeline{Steps: make([]Step, len(steps))}
	for i, s := range steps {
		s.Index = i
		if s.Name == "" {
			s.Name = DefaultStepName(s.Operator, i)
		}
		out.Steps[i] = s
	}
	return out
}

// FromDocuments builds a pipeline from the canonical list of
// {"operator", "config", "depends_on", "name"} objects.
func FromDocuments(mode Mode, docs []any) (Pipeline, error) {
	if err := validateMode(mode); err != nil {
		return Pipeline{}, err
	}
	p := Pipeline{Mode: mode, Steps: make([]Step, 0, len(docs))}
	var errs []error
	for i, raw := range docs {
		step, err := stepFromDocument(i, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Steps = append(p.Steps, step)
	}
	if len(errs) > 0 {
		return Pipeline{}, errors.Join(errs...)
	}
	return p, nil
}

func stepFromDocument(i int, raw any) (Step, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return Step{}, fmt.Errorf("pipeline step #%d must be an object", i)
	}
	op, ok := doc["operator"].(string)
	if !ok || op == "" {
		return Step{}, fmt.Errorf("pipeline step #%d missing string 'operator'", i)
	}

	step := Step{Index: i, Operator: op, Name: DefaultStepName(op, i)}
	if name, ok := doc["name"]; ok {
		s, ok := name.(string)
		if !ok || s == "" {
			return Step{}, fmt.Errorf("pipeline step #%d 'name' must be a non-empty string", i)
		}
		step.Name = s
	}

	cfgDoc := map[string]any{}
	if raw, ok := doc["config"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return Step{}, fmt.Errorf("pipeline step #%d 'config' must be an object", i)
		}
		cfgDoc = m
	}
	cfg, err := operator.ConfigFromMap(cfgDoc)
	if err != nil {
		return Step{}, fmt.Errorf("pipeline step #%d: %w", i, err)
	}
	step.Config = cfg

	if raw, ok := doc["depends_on"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return Step{}, fmt.Errorf("pipeline step #%d 'depends_on' must be a list of step names", i)
		}
		for _, d := range list {
			name, ok := d.(string)
			if !ok {
				return Step{}, fmt.Errorf("pipeline step #%d 'depends_on' must be a list of step names", i)
			}
			step.DependsOn = append(step.DependsOn, name)
		}
	}

	for key := range doc {
		switch key {
		case "operator", "config", "depends_on", "name":
		default:
			return Step{}, fmt.Errorf("pipeline step #%d has unsupported key '%s'", i, key)
		}
	}
	return step, nil
}

func validateMode(m Mode) error {
	switch m {
	case ModeAuto, ModeSequential, ModeDAG:
		return nil
	default:
		return fmt.Errorf("unknown pipeline mode '%s': must be 'sequential' or 'dag'", m)
	}
}
