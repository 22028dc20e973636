// Package model defines the domain types and value objects for the
// envsetup CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (Report, StepResult, FailurePolicy, etc.) are transient:
// the conda environment itself is owned by conda, and envsetup keeps no
// state files of its own.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
