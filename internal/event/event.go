// Package event models the trigger that started a pipeline run.
//
// Event descriptors arrive as small YAML or JSON documents (YAML is a strict
// superset, so one decoder covers both). Run-condition evaluation and config
// expressions consume the parsed event; nothing else in the orchestrator
// inspects it.
package event

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kinds the orchestrator understands. Conditions compare against these.
const (
	KindPush        = "push"
	KindPullRequest = "pull_request"
)

// Event is the external occurrence that started the run.
type Event struct {
	Kind       string `yaml:"kind" json:"kind"`
	Ref        string `yaml:"ref" json:"ref"`
	Repository string `yaml:"repository" json:"repository"`
}

// Validate checks the descriptor carries a supported kind.
func (e *Event) Validate() error {
	switch e.Kind {
	case KindPush, KindPullRequest:
		return nil
	case "":
		return fmt.Errorf("event descriptor is missing 'kind'")
	default:
		return fmt.Errorf("unsupported event kind %q (want %q or %q)", e.Kind, KindPush, KindPullRequest)
	}
}

// Load reads and validates an event descriptor file.
func Load(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event descriptor: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an event descriptor document.
func Parse(data []byte) (*Event, error) {
	var ev Event
	if err := yaml.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event descriptor: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Default returns the event assumed when no descriptor file is given: a push
// to an unspecified ref. Keeps local runs working without ceremony.
func Default() *Event {
	return &Event{Kind: KindPush}
}
