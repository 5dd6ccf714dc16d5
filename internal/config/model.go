package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"

	"github.com/specialistvlad/pipegrid/internal/matrix"
)

// Model is the unified representation of everything loaded from the user's
// .hcl files. One run may aggregate pipeline blocks from several files.
type Model struct {
	Pipelines []*Pipeline
}

// Pipeline is the format-agnostic representation of a `pipeline` block.
//
// Environment and command values stay as raw hcl.Expression fields on purpose:
// they may reference per-combination matrix values (`matrix.os`) or the
// trigger event (`event.ref`), which are only known when jobs are built. The
// model captures intent; the builder resolves it.
type Pipeline struct {
	Name string

	// Env is the default job environment (map expression, may be nil).
	Env hcl.Expression
	// SecretRefs names secrets resolved at job start, never at load time.
	SecretRefs []string
	// RunsOn is the default placement hint, overridable per matrix cell.
	RunsOn string

	Axes      []matrix.Axis
	Overrides []*Override

	Resources []*Resource
	Steps     []*Step
	Artifacts []*Artifact
}

// Override mirrors a matrix `override` block before env evaluation.
type Override struct {
	Match  map[string]string
	Env    hcl.Expression
	RunsOn string
}

// Resource is one `resource "type" "name"` block.
type Resource struct {
	Type    string
	Name    string
	Options map[string]string
}

// Step is one `step "name"` block.
type Step struct {
	Name      string
	Command   hcl.Expression
	RunIf     string
	OnEvent   string
	Env       hcl.Expression
	Timeout   time.Duration
	ExportVar string
}

// Artifact is one `artifact "label"` block.
type Artifact struct {
	Label string
	Path  hcl.Expression
}
