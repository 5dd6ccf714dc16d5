package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/pipegrid/internal/app"
	"github.com/specialistvlad/pipegrid/internal/cli"
	"github.com/specialistvlad/pipegrid/internal/config"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// main is the entrypoint for the pipegrid orchestrator.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternal)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical config errors, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(outW, "A critical startup error occurred: %v\n", r)
			os.Exit(cli.ExitUsage)
		}
	}()

	// An external stop signal cancels the run; jobs still execute their
	// cleanup steps before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader()
	orchestrator := app.NewApp(outW, appConfig, loader)

	status, _, err := orchestrator.Run(ctx)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitInternal, Message: err.Error()}
	}

	switch status {
	case pipeline.Passed:
		return nil
	case pipeline.Cancelled:
		return &cli.ExitError{Code: cli.ExitCanceled, Message: "pipeline cancelled"}
	default:
		return &cli.ExitError{Code: cli.ExitFailed, Message: "pipeline failed"}
	}
}
