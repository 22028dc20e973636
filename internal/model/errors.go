package model

import (
	"errors"
	"fmt"
)

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a run. Non-zero statuses from conda or pip that do not
// match one of these are passed through unchanged.
type ExitCode int

const (
	// ExitSuccess indicates the run completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitEnvFileNotFound indicates environment.yml or the package
	// manifest was not found in the project directory.
	ExitEnvFileNotFound ExitCode = 2

	// ExitEnvNotFound indicates activation could not locate the conda
	// environment by name.
	ExitEnvNotFound ExitCode = 3

	// ExitConfigInvalid indicates the config file or flags are invalid.
	ExitConfigInvalid ExitCode = 4

	// ExitToolNotFound indicates conda, pip or python could not be
	// executed. 127 matches what a shell reports for "command not found".
	ExitToolNotFound ExitCode = 127

	// ExitInterrupted indicates the run was cancelled by SIGINT/SIGTERM.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeOf returns the exit code an error should produce.
// nil maps to ExitSuccess; errors without a CLIError in their chain
// map to ExitGeneralError.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitGeneralError
}
