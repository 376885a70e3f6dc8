package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/quarry/internal/app"
	"github.com/vk/quarry/internal/cli"
)

// main is the entrypoint for the quarry application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	code, err := run(os.Stdout, os.Args[1:])
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

// run encapsulates the main application logic for easier testing and error
// handling. The returned code is the process exit status when err is nil.
func run(outW io.Writer, args []string) (int, error) {
	appConfig, targets, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return 0, err
	}
	if shouldExit {
		return 0, nil
	}

	quarryApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		return 0, err
	}

	result, err := quarryApp.Run(context.Background(), targets...)
	if err != nil {
		return 0, err
	}
	return result.ExitCode(), nil
}
