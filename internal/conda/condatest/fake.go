// Package condatest provides a scripted conda.Runner for tests.
package condatest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/atlas-ql/envsetup/internal/conda"
	"github.com/atlas-ql/envsetup/internal/model"
)

// Response is what the fake returns for a matching command.
type Response struct {
	// Stdout is returned by Run and written to stdout by RunStreaming.
	Stdout string

	// ExitCode, when non-zero, makes the command fail with a CLIError
	// carrying this code.
	ExitCode int
}

// Runner records every command and answers from a table keyed by the
// command line with the binary stripped, e.g. "env create -f environment.yml"
// or "-m pip install -e .". Keys are matched by prefix so tests need not
// spell out every flag.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []conda.Command
}

// NewRunner creates an empty fake. Unmatched commands succeed with no output.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string]Response)}
}

// On registers the response for commands whose arguments start with args.
func (r *Runner) On(args string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[args] = resp
	return r
}

// Calls returns the recorded commands in invocation order.
func (r *Runner) Calls() []conda.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]conda.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the recorded commands rendered as command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Run implements conda.Runner.
func (r *Runner) Run(ctx context.Context, cmd conda.Command) (string, error) {
	resp := r.record(cmd)
	if err := ctx.Err(); err != nil {
		return "", model.WrapCLIError(model.ExitInterrupted, "interrupted", err)
	}
	if resp.ExitCode != 0 {
		return resp.Stdout, model.NewCLIError(model.ExitCode(resp.ExitCode),
			fmt.Sprintf("%s failed", cmd.String()))
	}
	return resp.Stdout, nil
}

// RunStreaming implements conda.Runner.
func (r *Runner) RunStreaming(ctx context.Context, cmd conda.Command, stdout, _ io.Writer) error {
	out, err := r.Run(ctx, cmd)
	if out != "" && stdout != nil {
		_, _ = io.WriteString(stdout, out)
	}
	return err
}

func (r *Runner) record(cmd conda.Command) Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)

	args := strings.Join(cmd.Args, " ")
	best, bestLen := Response{}, -1
	for key, resp := range r.responses {
		if strings.HasPrefix(args, key) && len(key) > bestLen {
			best, bestLen = resp, len(key)
		}
	}
	return best
}

// InfoJSON renders a minimal `conda info --json` document.
func InfoJSON(rootPrefix string, envs ...string) string {
	quoted := make([]string, 0, len(envs)+1)
	quoted = append(quoted, fmt.Sprintf("%q", rootPrefix))
	for _, e := range envs {
		quoted = append(quoted, fmt.Sprintf("%q", e))
	}
	return fmt.Sprintf(`{"conda_version": "24.7.1", "root_prefix": %q, "envs": [%s]}`,
		rootPrefix, strings.Join(quoted, ", "))
}
