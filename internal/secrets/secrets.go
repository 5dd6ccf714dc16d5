// Package secrets resolves opaque secret references at job start.
//
// The orchestrator core never stores secret values: a JobSpec carries only the
// reference names, and resolved values go straight into the environment of the
// spawned commands. Resolution is behind the Resolver interface so tests can
// substitute a static table for the process environment.
package secrets

import (
	"fmt"
	"os"
)

// Resolver turns a secret reference name into its value.
type Resolver interface {
	Resolve(name string) (string, error)
}

// EnvResolver resolves references from the process environment, optionally
// under a prefix (e.g. prefix "CI_SECRET_" maps reference "GITHUB_TOKEN" to
// the variable "CI_SECRET_GITHUB_TOKEN").
type EnvResolver struct {
	Prefix string
	// lookup is swappable for tests; defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a resolver backed by the process environment.
func NewEnvResolver(prefix string) *EnvResolver {
	return &EnvResolver{Prefix: prefix}
}

// Resolve implements Resolver.
func (r *EnvResolver) Resolve(name string) (string, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(r.Prefix + name)
	if !ok {
		return "", fmt.Errorf("secret %q is not set in the environment", name)
	}
	return value, nil
}

// Static is a fixed reference table, used by tests and local dry runs.
type Static map[string]string

// Resolve implements Resolver.
func (s Static) Resolve(name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("secret %q is not defined", name)
	}
	return value, nil
}
