// Package cli implements the cobra-based command line for envsetup.
//
// envsetup has a single command: running it with no arguments creates the
// conda environment from environment.yml, activates it, installs the
// package in editable mode and prints a completion message. This file
// defines that root command, its flags and the process exit handling.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atlas-ql/envsetup/internal/model"
)

// Global flag variables shared by the command and the error printer.
var (
	// jsonOutput switches stdout to a JSON report. Tool output and logs
	// go to stderr in that mode so stdout stays machine-readable.
	jsonOutput bool

	// verbose enables debug logging.
	verbose bool

	// logger is configured per run in runSetup.
	logger = zerolog.Nop()
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// setupFlags holds the command-specific flags. Each one overrides the
// matching config file field only when it was set explicitly.
type setupFlags struct {
	envFile    string
	envName    string
	projectDir string
	extras     []string
	pipArgs    []string
	keepGoing  bool
	dryRun     bool
	conda      string
	configPath string
}

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	flags := &setupFlags{}

	rootCmd := &cobra.Command{
		Use:   "envsetup",
		Short: "Create the conda environment and install the package for development",
		Long: `envsetup prepares a local development environment in one step:

  1. conda env create -f environment.yml
  2. activate the new environment
  3. pip install -e .
  4. print a completion message

By default the run stops at the first failed step. With --keep-going every
step is attempted and the exit code is that of the install step.

Examples:
  envsetup
  envsetup --extras dev
  envsetup -C ~/src/atlas-quicklook --dry-run
  envsetup --json`,

		// envsetup takes no positional arguments.
		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd.Context(), cmd, flags)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output a JSON report")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	f := rootCmd.Flags()
	f.StringVarP(&flags.envFile, "file", "f", "", "Environment spec file (default: environment.yml)")
	f.StringVarP(&flags.envName, "name", "n", "", "Environment name (default: name declared in the spec file)")
	f.StringVarP(&flags.projectDir, "project-dir", "C", "", "Directory containing the spec file and package manifest (default: .)")
	f.StringSliceVar(&flags.extras, "extras", nil, "Optional dependency groups to install, e.g. dev")
	f.StringArrayVar(&flags.pipArgs, "pip-arg", nil, "Extra argument passed to pip install (repeatable)")
	f.BoolVar(&flags.keepGoing, "keep-going", false, "Attempt every step even after a failure")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Show the steps without running them")
	f.StringVar(&flags.conda, "conda", "", "conda executable (default: $CONDA_EXE or conda)")
	f.StringVar(&flags.configPath, "config", "", "Config file (default: .envsetup.json in the project directory, if present)")

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// SIGINT and SIGTERM cancel the command's context, which kills the
// running tool and ends the run with ExitInterrupted.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(os.Stderr, cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		// Generic error (e.g. an unknown flag) — exit with code 1.
		printError(os.Stderr, err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout is reserved for
		// the report.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog emits a debug line, visible only with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}
