package conda

import (
	"context"
	"io"
	"strings"
)

// defaultPip is the pip executable used when no environment is active.
const defaultPip = "pip"

// InstallOptions configures an editable install.
type InstallOptions struct {
	// Dir is the project directory holding the package manifest.
	Dir string

	// Extras are optional-dependency groups, e.g. "dev".
	Extras []string

	// Args are appended to the pip command line verbatim.
	Args []string

	// Activation is the environment to install into. Nil installs with
	// whatever pip is first on the ambient PATH, which is what a shell
	// falls back to when `conda activate` fails.
	Activation *Activation
}

// Pip runs pip installs.
type Pip struct {
	Runner Runner
	Stdout io.Writer
	Stderr io.Writer
}

// NewPip creates a Pip using LocalRunner.
func NewPip(stdout, stderr io.Writer) *Pip {
	return &Pip{Runner: LocalRunner{}, Stdout: stdout, Stderr: stderr}
}

// EditableTarget returns the install target for the project directory:
// "." or ".[extra1,extra2]".
func EditableTarget(extras []string) string {
	if len(extras) == 0 {
		return "."
	}
	return ".[" + strings.Join(extras, ",") + "]"
}

// InstallCommand returns the command InstallEditable runs.
//
// Inside an activation pip is invoked as `<python> -m pip` so the install
// is guaranteed to land in that environment even when the user's PATH
// contains another pip ahead of it.
func (p *Pip) InstallCommand(opts InstallOptions) Command {
	installArgs := []string{"install", "-e", EditableTarget(opts.Extras)}
	installArgs = append(installArgs, opts.Args...)

	if opts.Activation == nil {
		return Command{Name: defaultPip, Args: installArgs, Dir: opts.Dir}
	}
	return Command{
		Name: opts.Activation.Python,
		Args: append([]string{"-m", "pip"}, installArgs...),
		Dir:  opts.Dir,
		Env:  opts.Activation.Env,
	}
}

// InstallEditable runs `pip install -e .` (with extras) in opts.Dir,
// streaming pip's output.
func (p *Pip) InstallEditable(ctx context.Context, opts InstallOptions) error {
	return p.Runner.RunStreaming(ctx, p.InstallCommand(opts), writerOrDiscard(p.Stdout), writerOrDiscard(p.Stderr))
}
