package conda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/atlas-ql/envsetup/internal/model"
)

// Client runs conda subcommands.
type Client struct {
	// Binary is the conda executable (name on PATH or absolute path).
	Binary string

	// Runner executes the commands.
	Runner Runner

	// Stdout and Stderr receive the output of streaming commands such as
	// `conda env create`. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// NewClient creates a Client for the given binary using LocalRunner.
func NewClient(binary string, stdout, stderr io.Writer) *Client {
	return &Client{
		Binary: binary,
		Runner: LocalRunner{},
		Stdout: stdout,
		Stderr: stderr,
	}
}

// CreateCommand returns the command CreateEnv runs, for display in
// plans and reports.
//
// The command is `conda env create -f <file>`. When name
// is non-empty it is passed with -n, overriding the file's own name.
func (c *Client) CreateCommand(envFile, name, dir string) Command {
	args := []string{"env", "create", "-f", envFile}
	if name != "" {
		args = append(args, "-n", name)
	}
	return Command{Name: c.Binary, Args: args, Dir: dir}
}

// CreateEnv creates a conda environment from envFile, streaming conda's
// own progress output.
func (c *Client) CreateEnv(ctx context.Context, envFile, name, dir string) error {
	return c.Runner.RunStreaming(ctx, c.CreateCommand(envFile, name, dir), writerOrDiscard(c.Stdout), writerOrDiscard(c.Stderr))
}

// Info is the subset of `conda info --json` output envsetup uses.
type Info struct {
	// RootPrefix is the prefix of the base environment.
	RootPrefix string `json:"root_prefix"`

	// Envs lists the prefixes of every known environment, base included.
	Envs []string `json:"envs"`

	// CondaVersion is copied into Activation and logged with --verbose.
	CondaVersion string `json:"conda_version"`
}

// Info runs `conda info --json` and decodes the result.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	out, err := c.Runner.Run(ctx, Command{Name: c.Binary, Args: []string{"info", "--json"}})
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("failed to parse conda info output: %w", err)
	}
	return &info, nil
}

// PrefixOf returns the prefix directory of the named environment.
//
// "base" maps to the root prefix. Any other name matches the last path
// element of an entry in the environment list, which is how conda itself
// names environments created under its envs directories. Environments
// created by path (-p) have no name and cannot be found this way.
func (i *Info) PrefixOf(name string) (string, error) {
	if name == "base" && i.RootPrefix != "" {
		return i.RootPrefix, nil
	}
	for _, prefix := range i.Envs {
		if filepath.Clean(prefix) == filepath.Clean(i.RootPrefix) {
			continue
		}
		if baseName(prefix) == name {
			return prefix, nil
		}
	}
	return "", model.NewCLIError(model.ExitEnvNotFound,
		fmt.Sprintf("conda environment %q not found", name))
}

// Activate locates the named environment and returns the process
// environment later commands should run with.
func (c *Client) Activate(ctx context.Context, name string, base []string) (*Activation, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	prefix, err := info.PrefixOf(name)
	if err != nil {
		return nil, err
	}
	act := NewActivation(name, prefix, base)
	act.CondaVersion = info.CondaVersion
	return act, nil
}

// baseName returns the last element of a prefix path regardless of
// whether conda reported it with forward or back slashes.
func baseName(prefix string) string {
	prefix = strings.TrimRight(strings.ReplaceAll(prefix, `\`, "/"), "/")
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		return prefix[i+1:]
	}
	return prefix
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
