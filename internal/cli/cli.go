package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/quarry/internal/app"
	"github.com/vk/quarry/internal/target"
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

// Parse processes command-line arguments. It returns a populated app config
// plus the requested targets, a boolean indicating if the program should
// exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, []string, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("quarry", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Quarry - An incremental, content-addressed build tool.

Usage:
  quarry [options] [//path:target ...]

Arguments:
  //path:target
    Build targets to bring up to date. With no targets, every rule
    declared in the project is built.

Options:
`)
		flagSet.PrintDefaults()
	}

	rootFlag := flagSet.String("C", ".", "Project root directory containing BUILD.hcl files.")
	outFlag := flagSet.String("out", "", "Output directory. Defaults to 'quarry-out' under the project root.")
	cacheFlag := flagSet.String("cache-dir", "", "Artifact cache directory. Defaults to '.quarry-cache' under the project root.")
	metricsPortFlag := flagSet.Int("metrics-port", 0, "Port for the HTTP metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 10, "Number of concurrent workers for the build engine.")
	failFastFlag := flagSet.Bool("fail-fast", false, "Cancel in-flight work after the first rule failure.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, nil, true, nil
		}
		return nil, nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	targets := flagSet.Args()
	for _, t := range targets {
		if _, err := target.Parse(t); err != nil {
			return nil, nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}
	slog.Debug("Requested targets validated.", "count", len(targets))

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *workersFlag < 1 {
		return nil, nil, false, &ExitError{Code: 2, Message: "invalid workers: must be at least 1"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		RootDir:     *rootFlag,
		OutDir:      *outFlag,
		CacheDir:    *cacheFlag,
		MetricsPort: *metricsPortFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		WorkerCount: *workersFlag,
		FailFast:    *failFastFlag,
	})
	if err != nil {
		return nil, nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, targets, false, nil
}
