package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/fsutil"
	"github.com/specialistvlad/pipegrid/internal/matrix"
)

// --- Raw HCL decoding structs ---

type hclFile struct {
	Pipelines []*hclPipeline `hcl:"pipeline,block"`
}

type hclPipeline struct {
	Name      string         `hcl:"name,label"`
	Env       hcl.Expression `hcl:"env,optional"`
	Secrets   []string       `hcl:"secrets,optional"`
	RunsOn    string         `hcl:"runs_on,optional"`
	Matrix    *hclMatrix     `hcl:"matrix,block"`
	Resources []*hclResource `hcl:"resource,block"`
	Steps     []*hclStep     `hcl:"step,block"`
	Artifacts []*hclArtifact `hcl:"artifact,block"`
}

type hclMatrix struct {
	Axes      []*hclAxis     `hcl:"axis,block"`
	Overrides []*hclOverride `hcl:"override,block"`
}

type hclAxis struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

type hclOverride struct {
	Match  map[string]string `hcl:"match"`
	Env    hcl.Expression    `hcl:"env,optional"`
	RunsOn string            `hcl:"runs_on,optional"`
}

type hclResource struct {
	Type    string            `hcl:"type,label"`
	Name    string            `hcl:"name,label"`
	Options map[string]string `hcl:"options,optional"`
}

type hclStep struct {
	Name      string         `hcl:"name,label"`
	Command   hcl.Expression `hcl:"command"`
	RunIf     string         `hcl:"run_if,optional"`
	OnEvent   string         `hcl:"on_event,optional"`
	Env       hcl.Expression `hcl:"env,optional"`
	Timeout   string         `hcl:"timeout,optional"`
	ExportVar string         `hcl:"export,optional"`
}

type hclArtifact struct {
	Label string         `hcl:"label,label"`
	Path  hcl.Expression `hcl:"path"`
}

// Loader parses pipeline configuration files into the unified Model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader returns a Loader with a fresh HCL parser.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load discovers every .hcl file under the given paths (files or directories)
// and aggregates their pipeline blocks into one Model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	model := &Model{}
	for _, path := range paths {
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to find pipeline files in %s: %w", path, err)
		}
		if len(files) == 0 {
			logger.Warn("No .hcl pipeline files found in path", "path", path)
		}
		for _, file := range files {
			logger.Debug("Parsing pipeline file.", "file", file)
			pipelines, err := l.loadFile(file)
			if err != nil {
				return nil, err
			}
			model.Pipelines = append(model.Pipelines, pipelines...)
		}
	}

	if err := validateModel(model); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "pipelines", len(model.Pipelines))
	return model, nil
}

func (l *Loader) loadFile(path string) ([]*Pipeline, error) {
	hclFileBody, diags := l.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(hclFileBody.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}

	pipelines := make([]*Pipeline, 0, len(parsed.Pipelines))
	for _, raw := range parsed.Pipelines {
		p, err := newPipeline(raw)
		if err != nil {
			return nil, fmt.Errorf("in %s: %w", path, err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, nil
}

func newPipeline(raw *hclPipeline) (*Pipeline, error) {
	p := &Pipeline{
		Name:       raw.Name,
		Env:        raw.Env,
		SecretRefs: raw.Secrets,
		RunsOn:     raw.RunsOn,
	}

	if raw.Matrix != nil {
		for _, axis := range raw.Matrix.Axes {
			p.Axes = append(p.Axes, matrix.Axis{Name: axis.Name, Values: axis.Values})
		}
		for _, ov := range raw.Matrix.Overrides {
			p.Overrides = append(p.Overrides, &Override{
				Match:  ov.Match,
				Env:    ov.Env,
				RunsOn: ov.RunsOn,
			})
		}
	}

	for _, res := range raw.Resources {
		p.Resources = append(p.Resources, &Resource{
			Type:    res.Type,
			Name:    res.Name,
			Options: res.Options,
		})
	}

	for _, step := range raw.Steps {
		s, err := newStep(step)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", raw.Name, err)
		}
		p.Steps = append(p.Steps, s)
	}

	for _, art := range raw.Artifacts {
		p.Artifacts = append(p.Artifacts, &Artifact{Label: art.Label, Path: art.Path})
	}

	return p, nil
}

func newStep(raw *hclStep) (*Step, error) {
	s := &Step{
		Name:      raw.Name,
		Command:   raw.Command,
		RunIf:     raw.RunIf,
		OnEvent:   raw.OnEvent,
		Env:       raw.Env,
		ExportVar: raw.ExportVar,
	}

	switch raw.RunIf {
	case "", "on_success", "always":
	default:
		return nil, fmt.Errorf("step %q: invalid run_if %q (want 'on_success' or 'always')", raw.Name, raw.RunIf)
	}
	if raw.OnEvent != "" && raw.RunIf != "" {
		return nil, fmt.Errorf("step %q: run_if and on_event are mutually exclusive", raw.Name)
	}

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid timeout: %w", raw.Name, err)
		}
		s.Timeout = d
	}

	return s, nil
}

func validateModel(model *Model) error {
	seen := map[string]bool{}
	for _, p := range model.Pipelines {
		if seen[p.Name] {
			return fmt.Errorf("pipeline %q declared more than once", p.Name)
		}
		seen[p.Name] = true

		if len(p.Steps) == 0 {
			return fmt.Errorf("pipeline %q declares no steps", p.Name)
		}
		stepNames := map[string]bool{}
		for _, s := range p.Steps {
			if stepNames[s.Name] {
				return fmt.Errorf("pipeline %q: step %q declared more than once", p.Name, s.Name)
			}
			stepNames[s.Name] = true
		}
		labels := map[string]bool{}
		for _, a := range p.Artifacts {
			if labels[a.Label] {
				return fmt.Errorf("pipeline %q: artifact %q declared more than once", p.Name, a.Label)
			}
			labels[a.Label] = true
		}
	}
	return nil
}
