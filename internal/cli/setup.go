package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/atlas-ql/envsetup/internal/bootstrap"
	"github.com/atlas-ql/envsetup/internal/conda"
	"github.com/atlas-ql/envsetup/internal/config"
	"github.com/atlas-ql/envsetup/internal/envfile"
	"github.com/atlas-ql/envsetup/internal/logging"
	"github.com/atlas-ql/envsetup/internal/model"
)

// runSetup is the main logic of the root command: resolve settings,
// build the four steps and run (or plan) them.
func runSetup(ctx context.Context, cmd *cobra.Command, flags *setupFlags) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	logger = logging.New(stderr, logging.Options{
		Verbose: verbose,
		NoColor: jsonOutput || !isTerminal(stderr),
	})

	// Step 1: Resolve configuration (defaults → config file → flags).
	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}
	if info, err := os.Stat(cfg.ProjectDir); err != nil || !info.IsDir() {
		return model.NewCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("project directory not found: %s", cfg.ProjectDir))
	}

	envFile, err := envfile.Resolve(cfg.ProjectDir, cfg.EnvFile)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, "invalid environment file path", err)
	}

	// Step 2: Determine the environment name. A missing or unreadable spec
	// file is not fatal here; the create step reports it with its own
	// exit code.
	envName := cfg.EnvName
	if envName == "" {
		name, err := envfile.PeekName(envFile)
		if err != nil {
			VerboseLog("Could not read environment name: %v", err)
		}
		envName = name
	}
	VerboseLog("Environment %q from %s (policy: %s)", envName, envFile, cfg.Policy())

	// Step 3: Build the steps. In JSON mode tool output is moved to
	// stderr so stdout carries only the report.
	toolOut := stdout
	var messageOut io.Writer = stdout
	if jsonOutput {
		toolOut = stderr
		messageOut = nil
	}

	warnUndeclaredExtras(cfg)

	condaBin := cfg.ResolveCondaBinary(os.Getenv)
	VerboseLog("Using conda executable %s", condaBin)

	runner := &bootstrap.Runner{
		Steps: bootstrap.NewSteps(bootstrap.Options{
			Conda:        conda.NewClient(condaBin, toolOut, stderr),
			Pip:          conda.NewPip(toolOut, stderr),
			Dir:          cfg.ProjectDir,
			File:         cfg.EnvFile,
			NameOverride: cfg.EnvName,
			Extras:       cfg.Extras,
			PipArgs:      cfg.PipArgs,
			MessageOut:   messageOut,
		}),
		Policy: cfg.Policy(),
		State:  &bootstrap.State{EnvName: envName, EnvFile: envFile},
		Logger: logger,
	}

	// Step 4: Plan or run, then report.
	if flags.dryRun {
		report := runner.Plan()
		if jsonOutput {
			return printReportJSON(stdout, report)
		}
		printPlanText(stdout, report)
		return nil
	}

	report, runErr := runner.Run(ctx)
	if jsonOutput {
		if err := printReportJSON(stdout, report); err != nil {
			return err
		}
		return runErr
	}

	// Under --keep-going the completion message can follow failed steps;
	// repeat them once at the end so they are not lost in tool output.
	if failed := report.Failed(); len(failed) > 0 && report.Policy == model.PolicyContinue {
		logger.Warn().Msg(formatFailures(failed))
	}
	return runErr
}

// warnUndeclaredExtras logs requested extras a pyproject.toml manifest does
// not declare. pip only prints a warning for those and installs the rest, so
// this is not an error either.
func warnUndeclaredExtras(cfg config.Config) {
	if len(cfg.Extras) == 0 {
		return
	}
	manifest, err := envfile.FindManifest(cfg.ProjectDir)
	if err != nil {
		return
	}
	missing, err := envfile.UndeclaredExtras(manifest, cfg.Extras)
	if err != nil {
		VerboseLog("Could not read extras: %v", err)
		return
	}
	if len(missing) > 0 {
		logger.Warn().Strs("extras", missing).Str("manifest", manifest).
			Msg("extras not declared in [project.optional-dependencies]")
	}
}

// formatFailures renders failed steps as "create (exit 2), activate (exit 3)".
func formatFailures(failed []model.StepResult) string {
	parts := make([]string, 0, len(failed))
	for _, s := range failed {
		parts = append(parts, fmt.Sprintf("%s (exit %d)", s.Name, s.ExitCode))
	}
	return fmt.Sprintf("%d step(s) failed: %s", len(failed), strings.Join(parts, ", "))
}

// resolveConfig layers the config file and explicitly-set flags over the
// defaults and validates the result.
func resolveConfig(cmd *cobra.Command, flags *setupFlags) (config.Config, error) {
	cfg := config.Default()
	changed := cmd.Flags().Changed

	if changed("project-dir") {
		cfg.ProjectDir = flags.projectDir
	}

	configPath := flags.configPath
	required := configPath != ""
	if !required {
		configPath = filepath.Join(cfg.ProjectDir, config.DefaultFileName)
	}

	loaded, err := config.Load(configPath, cfg, required)
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(configPath); err == nil {
		VerboseLog("Loaded config from %s", configPath)
	}
	cfg = loaded

	// Flags win over the file.
	if changed("project-dir") {
		cfg.ProjectDir = flags.projectDir
	}
	if changed("file") {
		cfg.EnvFile = flags.envFile
	}
	if changed("name") {
		cfg.EnvName = flags.envName
	}
	if changed("extras") {
		cfg.Extras = flags.extras
	}
	if changed("pip-arg") {
		cfg.PipArgs = flags.pipArgs
	}
	if changed("keep-going") {
		cfg.KeepGoing = flags.keepGoing
	}
	if changed("conda") {
		cfg.CondaBinary = flags.conda
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// printReportJSON writes the report as indented JSON.
func printReportJSON(w io.Writer, report *model.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printPlanText writes the dry-run plan as a numbered list.
func printPlanText(w io.Writer, report *model.Report) {
	name := report.EnvName
	if name == "" {
		name = "(unknown)"
	}
	fmt.Fprintf(w, "Plan for environment %s (policy: %s):\n", name, report.Policy)
	for i, step := range report.Steps {
		if step.Command == "" {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step.Name)
			continue
		}
		fmt.Fprintf(w, "  %d. %-9s %s\n", i+1, step.Name, step.Command)
	}
}

// isTerminal reports whether w is a terminal, which decides whether log
// lines are colored.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
