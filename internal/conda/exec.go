package conda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"

	"github.com/atlas-ql/envsetup/internal/model"
)

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable, either a bare name looked up on PATH or
	// an absolute path.
	Name string

	// Args are the command-line arguments, not including Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the full environment of the child process. Nil inherits
	// the parent's environment.
	Env []string
}

// String returns the command line as a user would type it.
func (c Command) String() string {
	return joinCommand(c.Name, c.Args)
}

// Runner executes external commands. LocalRunner is the production
// implementation; tests substitute a fake that records invocations.
type Runner interface {
	// Run executes cmd and returns its stdout. Stderr is folded into the
	// returned error on failure.
	Run(ctx context.Context, cmd Command) (string, error)

	// RunStreaming executes cmd with stdout and stderr connected to the
	// given writers, so long-running tools show their own progress.
	RunStreaming(ctx context.Context, cmd Command, stdout, stderr io.Writer) error
}

// LocalRunner runs commands on the local machine via os/exec.
type LocalRunner struct{}

// Run executes cmd, capturing stdout and stderr separately so stderr can
// be included in error messages while stdout is returned on success.
func (LocalRunner) Run(ctx context.Context, cmd Command) (string, error) {
	// #nosec G204 — the binary and arguments come from envsetup's own
	// configuration, not from untrusted input.
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	var stdout, stderr strings.Builder
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.String(), wrapExecError(ctx, cmd, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunStreaming executes cmd with its output connected to stdout/stderr.
func (LocalRunner) RunStreaming(ctx context.Context, cmd Command, stdout, stderr io.Writer) error {
	// #nosec G204 — see Run.
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Run(); err != nil {
		return wrapExecError(ctx, cmd, err, "")
	}
	return nil
}

// wrapExecError converts an os/exec error into a CLIError whose code is
// the exit status a shell would have reported for the same failure:
// the tool's own status (128+N when a signal killed it), 127 for a
// missing executable, 130 for an interrupted run.
func wrapExecError(ctx context.Context, cmd Command, err error, stderr string) error {
	message := fmt.Sprintf("%s failed", cmd.String())
	if stderr != "" {
		message = fmt.Sprintf("%s: %s", message, stderr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.WrapCLIError(model.ExitInterrupted,
			fmt.Sprintf("%s interrupted", cmd.String()), ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return model.WrapCLIError(exitStatus(exitErr), message, err)
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, exec.ErrDot) || errors.Is(err, fs.ErrNotExist) {
		return model.WrapCLIError(model.ExitToolNotFound,
			fmt.Sprintf("%s: command not found", cmd.Name), err)
	}

	return model.WrapCLIError(model.ExitGeneralError, message, err)
}

// exitStatus returns the status a shell reports for a finished process:
// its exit code, or 128+N when it was killed by signal N.
func exitStatus(exitErr *exec.ExitError) model.ExitCode {
	if code := exitErr.ExitCode(); code > 0 {
		return model.ExitCode(code)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return model.ExitCode(128 + int(ws.Signal()))
	}
	return model.ExitGeneralError
}

// joinCommand renders a command line, quoting arguments that a POSIX
// shell would otherwise split or expand.
func joinCommand(name string, args []string) string {
	var builder strings.Builder
	builder.WriteString(shellQuote(name))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellQuote(arg))
	}
	return builder.String()
}

// shellQuote single-quotes value when it contains characters that are
// special to the shell. Plain words are left alone to keep the display
// readable ("conda env create -f environment.yml").
func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
