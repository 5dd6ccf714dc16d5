// Package cli parses command-line arguments into an app.Config and defines
// the process exit-code contract.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/pipegrid/internal/app"
)

// Exit codes. The orchestrator exits 0 iff the aggregate pipeline status is
// PASSED; the non-zero codes distinguish failure modes.
const (
	ExitPassed   = 0
	ExitFailed   = 1
	ExitUsage    = 2
	ExitCanceled = 3
	ExitInternal = 4
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("pipegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
PipeGrid - A declarative, matrix-expanding CI job orchestrator.

Usage:
  pipegrid [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a single .hcl pipeline file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline file or directory (shorthand).")
	eventFlag := flagSet.String("event", "", "Path to the trigger event descriptor (yaml or json).")
	artifactsFlag := flagSet.String("artifacts-dir", "artifacts", "Directory the artifact store writes into.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	maxParallelFlag := flagSet.Int("max-parallel", 0, "Maximum number of jobs running at once. 0 is unbounded.")
	secretPrefixFlag := flagSet.String("secret-prefix", "", "Prefix applied to secret references when resolving from the environment.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", path)

	if path == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PipelinePath: path,
		EventPath:    *eventFlag,
		ArtifactsDir: *artifactsFlag,
		StatusPort:   *statusPortFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		MaxParallel:  *maxParallelFlag,
		SecretPrefix: *secretPrefixFlag,
	})

	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
