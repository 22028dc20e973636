// Package config loads envsetup settings.
//
// Settings come from three layers, later ones winning:
//
//  1. built-in defaults (Default), equivalent to running
//     `conda env create -f environment.yml` and `pip install -e .` by hand;
//  2. an optional config file (.envsetup.json by default). Like
//     devcontainer.json it is JSONC, so comments and trailing commas are
//     allowed; github.com/tidwall/jsonc strips them before encoding/json
//     parses the result;
//  3. command-line flags, applied by the cli package.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/atlas-ql/envsetup/internal/model"
)

const (
	// DefaultFileName is the config file looked up in the project
	// directory when --config is not given.
	DefaultFileName = ".envsetup.json"

	// DefaultEnvFile is the environment spec file conda reads.
	DefaultEnvFile = "environment.yml"

	// DefaultCondaBinary is used when neither the config nor $CONDA_EXE
	// names a conda executable.
	DefaultCondaBinary = "conda"

	// condaExeEnv is set by `conda init` shell hooks to the absolute path
	// of the conda executable.
	condaExeEnv = "CONDA_EXE"
)

// Config holds all settings for one bootstrap run.
type Config struct {
	// CondaBinary is the conda executable. Empty means "resolve at run
	// time" (see ResolveCondaBinary).
	CondaBinary string `json:"conda,omitempty"`

	// EnvFile is the environment spec file, relative to ProjectDir
	// unless absolute.
	EnvFile string `json:"envFile,omitempty"`

	// EnvName overrides the name declared in EnvFile.
	EnvName string `json:"envName,omitempty"`

	// ProjectDir holds the spec file and the package manifest.
	ProjectDir string `json:"projectDir,omitempty"`

	// Extras are pip extras to install, e.g. ["dev"] installs ".[dev]".
	Extras []string `json:"extras,omitempty"`

	// PipArgs are extra arguments appended to the pip install command.
	PipArgs []string `json:"pipArgs,omitempty"`

	// KeepGoing selects model.PolicyContinue.
	KeepGoing bool `json:"keepGoing,omitempty"`
}

// Default returns the plain settings: `conda env create -f environment.yml`
// followed by `pip install -e .` in the current directory.
func Default() Config {
	return Config{
		EnvFile:    DefaultEnvFile,
		ProjectDir: ".",
	}
}

// Policy returns the failure policy selected by KeepGoing.
func (c Config) Policy() model.FailurePolicy {
	if c.KeepGoing {
		return model.PolicyContinue
	}
	return model.PolicyAbort
}

// Load reads a JSONC config file and overlays it on base.
//
// When required is false a missing file is not an error and base is
// returned unchanged; this is how the implicit .envsetup.json lookup works.
// Fields absent from the file keep their base values.
func Load(path string, base Config, required bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return base, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return base, model.WrapCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return base, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into a copy of base: encoding/json leaves fields that are
	// absent from the document untouched, which gives overlay semantics
	// without a separate "is defined" pass.
	clean := jsonc.ToJSON(data)
	cfg := base
	if err := json.Unmarshal(clean, &cfg); err != nil {
		return base, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	// A relative projectDir in the file is relative to the file itself,
	// not to wherever the command happens to be invoked from.
	var probe struct {
		ProjectDir *string `json:"projectDir"`
	}
	if err := json.Unmarshal(clean, &probe); err == nil && probe.ProjectDir != nil {
		if dir := *probe.ProjectDir; dir != "" && !filepath.IsAbs(dir) {
			cfg.ProjectDir = filepath.Join(filepath.Dir(path), dir)
		}
	}

	return cfg, nil
}

// Validate checks field values. It returns a CLIError with
// ExitConfigInvalid so bad settings are reported before anything runs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.EnvFile) == "" {
		return model.NewCLIError(model.ExitConfigInvalid, "envFile must not be empty")
	}
	if strings.TrimSpace(c.ProjectDir) == "" {
		return model.NewCLIError(model.ExitConfigInvalid, "projectDir must not be empty")
	}
	if c.EnvName != "" {
		if err := model.ValidateEnvName(c.EnvName); err != nil {
			return model.WrapCLIError(model.ExitConfigInvalid, "invalid envName", err)
		}
	}
	for _, extra := range c.Extras {
		if err := model.ValidateExtra(extra); err != nil {
			return model.WrapCLIError(model.ExitConfigInvalid, "invalid extras", err)
		}
	}
	return nil
}

// ResolveCondaBinary picks the conda executable: the configured value,
// then $CONDA_EXE, then plain "conda" looked up on PATH.
// getenv is os.Getenv in production and a stub in tests.
func (c Config) ResolveCondaBinary(getenv func(string) string) string {
	if c.CondaBinary != "" {
		return c.CondaBinary
	}
	if exe := strings.TrimSpace(getenv(condaExeEnv)); exe != "" {
		return exe
	}
	return DefaultCondaBinary
}
