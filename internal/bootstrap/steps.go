package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atlas-ql/envsetup/internal/conda"
	"github.com/atlas-ql/envsetup/internal/envfile"
	"github.com/atlas-ql/envsetup/internal/model"
)

// CompletionMessage is the first line printed by the message step.
const CompletionMessage = "Environment setup complete."

// CreateStep runs `conda env create -f <file>`.
type CreateStep struct {
	Conda *conda.Client

	// Dir is the project directory conda runs in.
	Dir string

	// File is the spec file argument as the user gave it (relative to Dir
	// or absolute). It is what appears on the conda command line.
	File string

	// NameOverride is passed as -n when set.
	NameOverride string
}

// Name implements Step.
func (s *CreateStep) Name() model.StepName { return model.StepCreate }

// Command implements Step.
func (s *CreateStep) Command(*State) string {
	return s.Conda.CreateCommand(s.File, s.NameOverride, s.Dir).String()
}

// Run implements Step. A missing spec file fails the step with
// ExitEnvFileNotFound before conda is started.
func (s *CreateStep) Run(ctx context.Context, st *State) error {
	if err := envfile.Exists(st.EnvFile); err != nil {
		return err
	}
	return s.Conda.CreateEnv(ctx, s.File, s.NameOverride, s.Dir)
}

// ActivateStep locates the new environment and prepares the process
// environment the install step runs with.
type ActivateStep struct {
	Conda *conda.Client

	// Environ returns the base environment. Defaults to os.Environ.
	Environ func() []string
}

// Name implements Step.
func (s *ActivateStep) Name() model.StepName { return model.StepActivate }

// Command implements Step. Activation is emulated in-process; the string
// is what the user would type in their own shell.
func (s *ActivateStep) Command(st *State) string {
	if st.EnvName == "" {
		return "conda activate"
	}
	return "conda activate " + st.EnvName
}

// Run implements Step.
func (s *ActivateStep) Run(ctx context.Context, st *State) error {
	if st.EnvName == "" {
		return model.NewCLIError(model.ExitEnvNotFound,
			"cannot activate: the environment file declares no name and none was given with --name")
	}

	environ := s.Environ
	if environ == nil {
		environ = os.Environ
	}

	act, err := s.Conda.Activate(ctx, st.EnvName, environ())
	if err != nil {
		return err
	}
	st.Activation = act
	return nil
}

// InstallStep runs `pip install -e .` in the project directory.
type InstallStep struct {
	Pip *conda.Pip

	// Dir is the project directory holding the package manifest.
	Dir string

	// Extras are optional-dependency groups to install.
	Extras []string

	// Args are extra pip arguments.
	Args []string
}

// Name implements Step.
func (s *InstallStep) Name() model.StepName { return model.StepInstall }

func (s *InstallStep) options(st *State) conda.InstallOptions {
	return conda.InstallOptions{
		Dir:        s.Dir,
		Extras:     s.Extras,
		Args:       s.Args,
		Activation: st.Activation,
	}
}

// Command implements Step.
func (s *InstallStep) Command(st *State) string {
	return s.Pip.InstallCommand(s.options(st)).String()
}

// PlanCommand implements planner. Before activation the environment's
// interpreter is not known yet, so the command is shown with a plain
// "python" and the environment it will run in.
func (s *InstallStep) PlanCommand(st *State) string {
	if st.Activation != nil {
		return s.Command(st)
	}
	opts := s.options(st)
	opts.Activation = &conda.Activation{Python: "python"}

	env := st.EnvName
	if env == "" {
		env = "the environment"
	}
	return fmt.Sprintf("%s (inside %s after activation)", s.Pip.InstallCommand(opts), env)
}

// Run implements Step. Without a package manifest the step fails with
// ExitEnvFileNotFound before pip is started.
func (s *InstallStep) Run(ctx context.Context, st *State) error {
	if _, err := envfile.FindManifest(s.Dir); err != nil {
		return err
	}
	return s.Pip.InstallEditable(ctx, s.options(st))
}

// MessageStep prints the completion message.
type MessageStep struct {
	// Out receives the message. Nil discards it (used with --json, where
	// the message travels inside the report instead).
	Out io.Writer
}

// Name implements Step.
func (s *MessageStep) Name() model.StepName { return model.StepMessage }

// Command implements Step.
func (s *MessageStep) Command(*State) string { return "" }

// Run implements Step.
func (s *MessageStep) Run(_ context.Context, st *State) error {
	st.Message = completionMessage(st.EnvName)
	if s.Out == nil {
		return nil
	}
	if _, err := fmt.Fprintln(s.Out, st.Message); err != nil {
		return fmt.Errorf("failed to print completion message: %w", err)
	}
	return nil
}

// completionMessage builds the text for the message step. The activation
// hint is needed because activation inside envsetup does not carry over to
// the user's shell.
func completionMessage(envName string) string {
	var b strings.Builder
	b.WriteString(CompletionMessage)
	if envName != "" {
		fmt.Fprintf(&b, "\nTo use it, run: conda activate %s", envName)
	}
	return b.String()
}

// Options selects the steps NewRunner builds.
type Options struct {
	Conda        *conda.Client
	Pip          *conda.Pip
	Dir          string
	File         string
	NameOverride string
	Extras       []string
	PipArgs      []string
	MessageOut   io.Writer
	Environ      func() []string
}

// NewSteps returns the four steps in their fixed order.
func NewSteps(opts Options) []Step {
	return []Step{
		&CreateStep{Conda: opts.Conda, Dir: opts.Dir, File: opts.File, NameOverride: opts.NameOverride},
		&ActivateStep{Conda: opts.Conda, Environ: opts.Environ},
		&InstallStep{Pip: opts.Pip, Dir: opts.Dir, Extras: opts.Extras, Args: opts.PipArgs},
		&MessageStep{Out: opts.MessageOut},
	}
}
