package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/pipegrid/internal/event"
	"github.com/specialistvlad/pipegrid/internal/matrix"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// BuildJobs expands every pipeline in the model against the trigger event and
// returns the concrete, immutable job specifications in deterministic order.
func BuildJobs(model *Model, ev *event.Event) ([]pipeline.JobSpec, error) {
	var jobs []pipeline.JobSpec
	for _, p := range model.Pipelines {
		expanded, err := buildPipelineJobs(p, ev)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, expanded...)
	}
	return jobs, nil
}

func buildPipelineJobs(p *Pipeline, ev *event.Event) ([]pipeline.JobSpec, error) {
	overrides, err := buildOverrides(p, ev)
	if err != nil {
		return nil, err
	}

	var combos []matrix.Combination
	if len(p.Axes) == 0 {
		// A pipeline without a matrix is a single job.
		combos = []matrix.Combination{{Axes: map[string]string{}, Env: map[string]string{}}}
	} else {
		combos, err = matrix.Expand(p.Axes, overrides)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}

	jobs := make([]pipeline.JobSpec, 0, len(combos))
	for _, combo := range combos {
		job, err := buildJob(p, ev, combo)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// buildOverrides evaluates each override's env expression. Overrides pin their
// axis values in Match, so their env has no per-cell variables to reference;
// only the event is in scope.
func buildOverrides(p *Pipeline, ev *event.Event) ([]matrix.Override, error) {
	evalCtx := newEvalContext(ev, nil)
	overrides := make([]matrix.Override, 0, len(p.Overrides))
	for i, ov := range p.Overrides {
		env, err := evalStringMap(ov.Env, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q override %d: %w", p.Name, i, err)
		}
		overrides = append(overrides, matrix.Override{
			Match:  ov.Match,
			Env:    env,
			RunsOn: ov.RunsOn,
		})
	}
	return overrides, nil
}

func buildJob(p *Pipeline, ev *event.Event, combo matrix.Combination) (pipeline.JobSpec, error) {
	evalCtx := newEvalContext(ev, combo.Axes)

	env, err := evalStringMap(p.Env, evalCtx)
	if err != nil {
		return pipeline.JobSpec{}, fmt.Errorf("env: %w", err)
	}
	// Override entries win over pipeline defaults.
	for k, v := range combo.Env {
		env[k] = v
	}

	runsOn := p.RunsOn
	if combo.RunsOn != "" {
		runsOn = combo.RunsOn
	}

	job := pipeline.JobSpec{
		PipelineName: p.Name,
		Axes:         combo.Axes,
		AxisOrder:    combo.AxisOrder,
		Env:          env,
		RunsOn:       runsOn,
		SecretRefs:   append([]string(nil), p.SecretRefs...),
	}

	for _, res := range p.Resources {
		job.Resources = append(job.Resources, pipeline.ResourceSpec{
			Type:    res.Type,
			Name:    res.Name,
			Options: copyStringMap(res.Options),
		})
	}

	for _, s := range p.Steps {
		step, err := buildStep(s, evalCtx)
		if err != nil {
			return pipeline.JobSpec{}, err
		}
		job.Steps = append(job.Steps, step)
	}

	for _, a := range p.Artifacts {
		path, err := evalString(a.Path, evalCtx)
		if err != nil {
			return pipeline.JobSpec{}, fmt.Errorf("artifact %q: %w", a.Label, err)
		}
		job.Artifacts = append(job.Artifacts, pipeline.ArtifactSpec{Label: a.Label, Path: path})
	}

	return job, nil
}

func buildStep(s *Step, evalCtx *hcl.EvalContext) (pipeline.Step, error) {
	command, err := evalStringList(s.Command, evalCtx)
	if err != nil {
		return pipeline.Step{}, fmt.Errorf("step %q: command: %w", s.Name, err)
	}
	if len(command) == 0 {
		return pipeline.Step{}, fmt.Errorf("step %q: command is empty", s.Name)
	}

	env, err := evalStringMap(s.Env, evalCtx)
	if err != nil {
		return pipeline.Step{}, fmt.Errorf("step %q: env: %w", s.Name, err)
	}

	cond := pipeline.Condition{Kind: pipeline.OnSuccess}
	switch {
	case s.OnEvent != "":
		cond = pipeline.Condition{Kind: pipeline.OnEvent, EventKind: s.OnEvent}
	case s.RunIf == "always":
		cond = pipeline.Condition{Kind: pipeline.Always}
	}

	return pipeline.Step{
		Name:      s.Name,
		Condition: cond,
		Command:   command,
		Env:       env,
		Timeout:   s.Timeout,
		ExportVar: s.ExportVar,
	}, nil
}

// newEvalContext builds the variable scope configuration expressions see:
// `event.*` always, `matrix.*` once a combination is chosen.
func newEvalContext(ev *event.Event, axes map[string]string) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"event": cty.ObjectVal(map[string]cty.Value{
			"kind":       cty.StringVal(ev.Kind),
			"ref":        cty.StringVal(ev.Ref),
			"repository": cty.StringVal(ev.Repository),
		}),
	}
	if len(axes) > 0 {
		axisVals := make(map[string]cty.Value, len(axes))
		for k, v := range axes {
			axisVals[k] = cty.StringVal(v)
		}
		vars["matrix"] = cty.ObjectVal(axisVals)
	}
	return &hcl.EvalContext{Variables: vars}
}

func evalStringMap(expr hcl.Expression, evalCtx *hcl.EvalContext) (map[string]string, error) {
	result := map[string]string{}
	if expr == nil {
		return result, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return result, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("expected a map of strings, got %s", val.Type().FriendlyName())
	}
	for key, v := range val.AsValueMap() {
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("value for %q is not a string: %w", key, err)
		}
		result[key] = str.AsString()
	}
	return result, nil
}

func evalStringList(expr hcl.Expression, evalCtx *hcl.EvalContext) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("expected a list of strings, got %s", val.Type().FriendlyName())
	}
	var result []string
	for _, v := range val.AsValueSlice() {
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("list element is not a string: %w", err)
		}
		result = append(result, str.AsString())
	}
	return result, nil
}

func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	return str.AsString(), nil
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
