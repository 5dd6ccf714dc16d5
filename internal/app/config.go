package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // .hcl pipeline files (file or directory)
	EventPath    string // optional event descriptor (yaml/json)
	ArtifactsDir string // artifact store root

	LogFormat    string
	LogLevel     string
	StatusPort   int // 0 disables the status server
	MaxParallel  int // 0 means unbounded
	SecretPrefix string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = "artifacts"
	}
	return &cfg, nil
}
