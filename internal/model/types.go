// Package model defines the domain types for the envsetup CLI.
//
// These types describe a single bootstrap run: which steps were planned,
// how each one ended, and what exit code the process should report.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// StepName identifies one stage of the bootstrap sequence.
// The stages always run in this order:
//
//	create → activate → install → message
type StepName string

const (
	// StepCreate creates the conda environment from the spec file.
	StepCreate StepName = "create"

	// StepActivate resolves the environment prefix and builds the process
	// environment that later steps run in.
	StepActivate StepName = "activate"

	// StepInstall installs the package in editable mode.
	StepInstall StepName = "install"

	// StepMessage prints the completion message.
	StepMessage StepName = "message"
)

// String returns the string representation of StepName.
func (s StepName) String() string {
	return string(s)
}

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	// StatusPlanned marks a step that was listed but not executed (dry run).
	StatusPlanned StepStatus = "planned"

	// StatusSucceeded marks a step whose command exited with status 0.
	StatusSucceeded StepStatus = "succeeded"

	// StatusFailed marks a step that ran and failed.
	StatusFailed StepStatus = "failed"

	// StatusSkipped marks a step that never ran because an earlier step
	// failed under the abort policy, or the run was interrupted.
	StatusSkipped StepStatus = "skipped"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// FailurePolicy decides what happens after a step fails.
//
// A plain shell script running these commands without `set -e` keeps going
// after a failed create. PolicyContinue reproduces that; PolicyAbort is the
// default.
type FailurePolicy string

const (
	// PolicyAbort stops at the first failed step.
	PolicyAbort FailurePolicy = "abort"

	// PolicyContinue attempts every step regardless of earlier failures.
	PolicyContinue FailurePolicy = "continue"
)

// String returns the string representation of FailurePolicy.
func (p FailurePolicy) String() string {
	return string(p)
}

// IsValid checks whether the FailurePolicy value is one of the
// predefined policies.
func (p FailurePolicy) IsValid() bool {
	return p == PolicyAbort || p == PolicyContinue
}

// StepResult records how one step of the run ended.
type StepResult struct {
	// Name identifies the step.
	Name StepName `json:"name"`

	// Status is the outcome of the step.
	Status StepStatus `json:"status"`

	// Command is the display form of what the step runs,
	// e.g. "conda env create -f environment.yml".
	Command string `json:"command,omitempty"`

	// ExitCode is the exit status the step ended with. Zero for
	// succeeded, planned and skipped steps.
	ExitCode int `json:"exitCode"`

	// Duration is the wall-clock time the step took.
	Duration time.Duration `json:"duration"`

	// Error is the failure message, empty unless Status is failed.
	Error string `json:"error,omitempty"`
}

// Report summarizes a whole bootstrap run. It is printed as JSON when
// --json is set and drives the text summary otherwise.
type Report struct {
	// EnvName is the conda environment name the run targeted.
	// Empty if it could not be determined.
	EnvName string `json:"envName"`

	// EnvFile is the absolute path of the environment spec file.
	EnvFile string `json:"envFile"`

	// Prefix is the environment prefix resolved during activation.
	Prefix string `json:"prefix,omitempty"`

	// Policy is the failure policy the run used.
	Policy FailurePolicy `json:"policy"`

	// DryRun is true when nothing was executed.
	DryRun bool `json:"dryRun,omitempty"`

	// Steps holds one result per step, in execution order.
	Steps []StepResult `json:"steps"`

	// Message is the completion message text.
	Message string `json:"message,omitempty"`

	// Completed is true once the message step has run. The message goes to
	// stdout in text mode; with --json it is carried only in Message.
	Completed bool `json:"completed"`

	// ExitCode is the process exit code for this run.
	ExitCode int `json:"exitCode"`
}

// Step returns the result for the named step, or nil if the report
// does not contain it.
func (r *Report) Step(name StepName) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Failed returns the results of all failed steps.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// envNameRegex mirrors the characters conda accepts in an environment name.
// conda rejects '/', ' ', ':' and '#'; we additionally require a leading
// alphanumeric so names cannot be mistaken for flags.
var envNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

// ValidateEnvName checks if the given name is usable as a conda environment name.
func ValidateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if !envNameRegex.MatchString(name) {
		return fmt.Errorf("invalid environment name %q: must start with an alphanumeric character and contain only alphanumerics, '.', '_', '+' or '-'", name)
	}
	return nil
}

// extraRegex follows the PEP 508 rule for extra names.
var extraRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// ValidateExtra checks if the given string is a valid pip extra name.
func ValidateExtra(extra string) error {
	if !extraRegex.MatchString(extra) {
		return fmt.Errorf("invalid extra %q: must be alphanumeric and may contain '.', '_' or '-' inside", extra)
	}
	return nil
}
