package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/datagridgo/internal/ctxlog"
	"github.com/specialistvlad/datagridgo/internal/operator"
	"gopkg.in/yaml.v3"
)

// Load reads a pipeline file. The format is chosen by extension: .hcl, or
// .yaml/.yml/.json (JSON is read through the YAML decoder).
func Load(ctx context.Context, path string) (Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading pipeline file.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline %s: %w", path, err)
	}

	var p Pipeline
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		p, err = ParseHCL(src, path)
	case ".yaml", ".yml", ".json":
		p, err = ParseYAML(src)
	default:
		return Pipeline{}, fmt.Errorf("unsupported pipeline file extension '%s'", ext)
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("failed to load pipeline %s: %w", path, err)
	}

	logger.Debug("Pipeline loaded.", "steps", len(p.Steps), "mode", string(p.EffectiveMode()))
	return p, nil
}

// hclRoot is the top-level structure of an HCL pipeline file.
type hclRoot struct {
	Pipeline *hclPipeline `hcl:"pipeline,block"`
	Steps    []*hclStep   `hcl:"step,block"`
}

type hclPipeline struct {
	Mode string `hcl:"mode,optional"`
}

type hclStep struct {
	Name      string         `hcl:"name,label"`
	Operator  string         `hcl:"operator"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Config    hcl.Expression `hcl:"config,optional"`
}

// ParseHCL decodes an HCL pipeline. Steps are labelled blocks:
//
//	step "detect" {
//	  operator = "lang.detect"
//	  config   = { path = "payload.text" }
//	}
func ParseHCL(src []byte, filename string) (Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Pipeline{}, fmt.Errorf("failed to parse: %w", diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Pipeline{}, fmt.Errorf("failed to decode: %w", diags)
	}

	p := Pipeline{}
	if root.Pipeline != nil {
		p.Mode = Mode(root.Pipeline.Mode)
		if err := validateMode(p.Mode); err != nil {
			return Pipeline{}, err
		}
	}

	for i, s := range root.Steps {
		var cfg operator.Config
		if s.Config != nil {
			val, diags := s.Config.Value(nil)
			if diags.HasErrors() {
				return Pipeline{}, fmt.Errorf("step '%s' config: %w", s.Name, diags)
			}
			if !val.IsNull() && !val.Type().IsObjectType() && !val.Type().IsMapType() {
				return Pipeline{}, fmt.Errorf("step '%s' config must be an object, got %s", s.Name, val.Type().FriendlyName())
			}
			cfg = operator.NewConfig(val)
		}
		p.Steps = append(p.Steps, Step{
			Index:     i,
			Name:      s.Name,
			Operator:  s.Operator,
			Config:    cfg,
			DependsOn: s.DependsOn,
		})
	}
	return p, nil
}

// yamlRoot is the object form of a YAML/JSON pipeline.
type yamlRoot struct {
	Mode  string `yaml:"mode"`
	Steps []any  `yaml:"steps"`
}

// ParseYAML decodes either a bare list of steps or {mode, steps}.
func ParseYAML(src []byte) (Pipeline, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(src, &node); err != nil {
		return Pipeline{}, fmt.Errorf("failed to parse: %w", err)
	}
	if len(node.Content) == 0 {
		return Pipeline{}, fmt.Errorf("pipeline document is empty")
	}

	doc := node.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var steps []any
		if err := doc.Decode(&steps); err != nil {
			return Pipeline{}, fmt.Errorf("failed to decode steps: %w", err)
		}
		return FromDocuments(ModeAuto, steps)
	case yaml.MappingNode:
		var root yamlRoot
		if err := doc.Decode(&root); err != nil {
			return Pipeline{}, fmt.Errorf("failed to decode pipeline: %w", err)
		}
		return FromDocuments(Mode(root.Mode), root.Steps)
	default:
		return Pipeline{}, fmt.Errorf("pipeline must be a list of steps or an object with 'steps'")
	}
}
