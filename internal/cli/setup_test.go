package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ql/envsetup/internal/bootstrap"
	"github.com/atlas-ql/envsetup/internal/model"
)

const projectEnvironment = `name: atlas_ql
channels:
  - conda-forge
dependencies:
  - python=3.11
  - numpy
  - pandas
  - matplotlib
  - astropy
  - pip
`

// fakeTools is a stand-in conda installation made of shell scripts.
// Every invocation appends a line to log.
type fakeTools struct {
	conda  string
	prefix string
	log    string
}

// installFakeTools writes a fake conda executable and an environment
// prefix containing a fake python. createExit and pipExit are the exit
// statuses of `conda env create` and `python -m pip install`.
func installFakeTools(t *testing.T, createExit, pipExit int) *fakeTools {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are POSIX shell scripts")
	}

	root := t.TempDir()
	tools := &fakeTools{
		conda:  filepath.Join(root, "bin", "conda"),
		prefix: filepath.Join(root, "envs", "atlas_ql"),
		log:    filepath.Join(root, "calls.log"),
	}

	condaScript := fmt.Sprintf(`#!/bin/sh
case "$1" in
env)
  echo "conda $*" >> '%[1]s'
  echo "Solving environment: done"
  exit %[2]d
  ;;
info)
  echo '{"conda_version": "24.7.1", "root_prefix": "%[3]s", "envs": ["%[3]s", "%[4]s"]}'
  ;;
*)
  exit 1
  ;;
esac
`, tools.log, createExit, root, tools.prefix)

	pythonScript := fmt.Sprintf(`#!/bin/sh
echo "python $* env=$CONDA_DEFAULT_ENV" >> '%[1]s'
exit %[2]d
`, tools.log, pipExit)

	writeExecutable(t, tools.conda, condaScript)
	writeExecutable(t, filepath.Join(tools.prefix, "bin", "python"), pythonScript)
	return tools
}

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

// calls returns the lines the fake tools logged, or nil if none ran.
func (f *fakeTools) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// newProject creates a project dir with environment.yml and setup.py.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "environment.yml"), []byte(projectEnvironment), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte("from setuptools import setup, find_packages\nsetup(name=\"atlas-quicklook\", packages=find_packages())\n"), 0o644))
	return dir
}

// runCLI executes the root command in-process and returns its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSetup_Success(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Solving environment: done", "conda output is streamed")
	assert.Contains(t, stdout, bootstrap.CompletionMessage)
	assert.Contains(t, stdout, "conda activate atlas_ql")
	assert.Equal(t, []string{
		"conda env create -f environment.yml",
		"python -m pip install -e . env=atlas_ql",
	}, tools.calls(t))
}

func TestSetup_CompletionMessageIsLast(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, bootstrap.CompletionMessage, lines[len(lines)-2])
}

func TestSetup_MissingEnvironmentFile(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "environment.yml")))

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda)
	require.Error(t, err)

	assert.Equal(t, model.ExitEnvFileNotFound, model.ExitCodeOf(err))
	assert.NotContains(t, stdout, bootstrap.CompletionMessage)
	assert.Nil(t, tools.calls(t), "nothing runs after the create step fails")
}

func TestSetup_MissingEnvironmentFile_KeepGoing(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "environment.yml")))

	stdout, stderr, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--name", "atlas_ql", "--keep-going")

	// The exit status is the install step's, which succeeded.
	require.NoError(t, err)
	assert.Contains(t, stdout, bootstrap.CompletionMessage)
	assert.Contains(t, stderr, "continuing")
	assert.Equal(t, []string{"python -m pip install -e . env=atlas_ql"}, tools.calls(t))
}

func TestSetup_CreateFailurePassesCondaExitCode(t *testing.T) {
	tools := installFakeTools(t, 3, 0)
	dir := newProject(t)

	_, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda)
	require.Error(t, err)
	assert.Equal(t, model.ExitCode(3), model.ExitCodeOf(err))
	assert.Equal(t, []string{"conda env create -f environment.yml"}, tools.calls(t))
}

func TestSetup_KeepGoingReturnsInstallExitCode(t *testing.T) {
	tools := installFakeTools(t, 1, 5)
	dir := newProject(t)

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--keep-going")
	require.Error(t, err)
	assert.Equal(t, model.ExitCode(5), model.ExitCodeOf(err))
	assert.Contains(t, stdout, bootstrap.CompletionMessage, "every step was attempted")
	assert.Len(t, tools.calls(t), 2)
}

func TestSetup_Extras(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)

	_, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--extras", "dev")
	require.NoError(t, err)

	calls := tools.calls(t)
	require.Len(t, calls, 2)
	assert.Equal(t, "python -m pip install -e .[dev] env=atlas_ql", calls[1])
}

func TestSetup_WarnsAboutUndeclaredExtras(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
		[]byte("[project]\nname = \"atlas-quicklook\"\n\n[project.optional-dependencies]\ndev = [\"pytest\"]\n"), 0o644))

	_, stderr, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--extras", "dev", "--extras", "docs")
	require.NoError(t, err, "pip decides what to do with unknown extras")

	assert.Contains(t, stderr, "extras not declared")
	assert.Contains(t, stderr, "docs")
	assert.Equal(t, "python -m pip install -e .[dev,docs] env=atlas_ql", tools.calls(t)[1])
}

func TestSetup_ConfigFile(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	cfg := fmt.Sprintf(`{
  // local overrides
  "conda": %q,
  "extras": ["dev"],
}`, tools.conda)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".envsetup.json"), []byte(cfg), 0o644))

	_, _, err := runCLI(t, "--project-dir", dir)
	require.NoError(t, err)

	calls := tools.calls(t)
	require.Len(t, calls, 2)
	assert.Equal(t, "python -m pip install -e .[dev] env=atlas_ql", calls[1])
}

func TestSetup_FlagOverridesConfigFile(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".envsetup.json"), []byte(`{"extras": ["dev"]}`), 0o644))

	_, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--extras", "test")
	require.NoError(t, err)

	calls := tools.calls(t)
	require.Len(t, calls, 2)
	assert.Equal(t, "python -m pip install -e .[test] env=atlas_ql", calls[1])
}

func TestSetup_DryRun(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Plan for environment atlas_ql (policy: abort):")
	assert.Contains(t, stdout, "1. create")
	assert.Contains(t, stdout, "env create -f environment.yml")
	assert.Contains(t, stdout, "conda activate atlas_ql")
	assert.Contains(t, stdout, "python -m pip install -e . (inside atlas_ql after activation)")
	assert.Contains(t, stdout, "4. message")
	assert.NotContains(t, stdout, bootstrap.CompletionMessage)
	assert.Nil(t, tools.calls(t))
}

func TestSetup_JSONReport(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)

	stdout, stderr, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--json")
	require.NoError(t, err)

	var report model.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report), "stdout must be only the report")
	assert.Equal(t, "atlas_ql", report.EnvName)
	assert.Equal(t, tools.prefix, report.Prefix)
	assert.Equal(t, model.PolicyAbort, report.Policy)
	assert.True(t, report.Completed)
	assert.Contains(t, report.Message, bootstrap.CompletionMessage)
	assert.Equal(t, 0, report.ExitCode)
	require.Len(t, report.Steps, 4)
	for _, s := range report.Steps {
		assert.Equal(t, model.StatusSucceeded, s.Status, s.Name)
	}

	assert.Contains(t, stderr, "Solving environment: done", "tool output goes to stderr in JSON mode")
	assert.NotContains(t, stderr, bootstrap.CompletionMessage, "with --json the message is only in the report")
}

func TestSetup_JSONReportOnFailure(t *testing.T) {
	tools := installFakeTools(t, 0, 0)
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "setup.py")))

	stdout, _, err := runCLI(t, "--project-dir", dir, "--conda", tools.conda, "--json")
	require.Error(t, err)

	var report model.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, int(model.ExitEnvFileNotFound), report.ExitCode)
	assert.False(t, report.Completed)
	assert.Equal(t, model.StatusFailed, report.Step(model.StepInstall).Status)
	assert.Equal(t, model.StatusSkipped, report.Step(model.StepMessage).Status)
}

func TestSetup_InvalidName(t *testing.T) {
	_, _, err := runCLI(t, "--project-dir", t.TempDir(), "--name", "my env")
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigInvalid, model.ExitCodeOf(err))
}

func TestSetup_MissingProjectDir(t *testing.T) {
	_, _, err := runCLI(t, "--project-dir", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigInvalid, model.ExitCodeOf(err))
}

func TestSetup_MissingExplicitConfig(t *testing.T) {
	_, _, err := runCLI(t, "--project-dir", t.TempDir(), "--config", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigInvalid, model.ExitCodeOf(err))
}

func TestSetup_RejectsArguments(t *testing.T) {
	_, _, err := runCLI(t, "extra")
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, model.ExitCodeOf(err))
}

func TestPrintError(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })

	t.Run("text", func(t *testing.T) {
		jsonOutput = false
		var buf bytes.Buffer
		printError(&buf, "conda env create -f environment.yml failed", errors.New("exit status 1"))
		assert.Equal(t, "Error: conda env create -f environment.yml failed: exit status 1\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		var buf bytes.Buffer
		printError(&buf, "environment file not found", nil)

		var obj map[string]map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &obj))
		assert.Equal(t, "environment file not found", obj["error"]["message"])
		assert.NotContains(t, obj["error"], "detail")
	})
}
