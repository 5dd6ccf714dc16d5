// Package app wires the orchestrator's components together and owns the run
// lifecycle: load configuration and event, expand the matrix, schedule jobs,
// collect the summary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/provision"
	"github.com/specialistvlad/pipegrid/internal/secrets"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *config.Model

	runner       executor.CommandRunner
	provisioners map[string]provision.Provisioner
	secrets      secrets.Resolver
}

// Option overrides a collaborator, primarily for tests.
type Option func(*App)

// WithCommandRunner substitutes the command boundary.
func WithCommandRunner(r executor.CommandRunner) Option {
	return func(a *App) { a.runner = r }
}

// WithProvisioners substitutes the resource provisioner table.
func WithProvisioners(p map[string]provision.Provisioner) Option {
	return func(a *App) { a.provisioners = p }
}

// WithSecrets substitutes the secret resolver.
func WithSecrets(r secrets.Resolver) Option {
	return func(a *App) { a.secrets = r }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Configuration load
// failures panic; the CLI entrypoint recovers them into a clean exit.
func NewApp(outW io.Writer, appConfig *Config, loader *config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded into unified model.")

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  appConfig,
		model:   model,
		secrets: secrets.NewEnvResolver(appConfig.SecretPrefix),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Defaults fill in after options so the kind provisioner sees the final
	// command runner.
	if a.runner == nil {
		a.runner = executor.NewLocalRunner()
	}
	if a.provisioners == nil {
		a.provisioners = map[string]provision.Provisioner{
			"cluster": provision.NewKindProvisioner(a.runner, nil),
			"tool":    provision.NewToolProvisioner(),
		}
	}
	return a
}

// Model returns the loaded configuration model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
