// Package conda wraps the conda and pip command-line tools.
//
// This package handles:
//   - Running external commands through a Runner (os/exec in production)
//   - Creating an environment with `conda env create`
//   - Locating an environment's prefix via `conda info --json`
//   - "Activating" an environment for child processes
//   - Installing a package in editable mode with pip
//
// All tool failures are returned as model.CLIError values carrying the
// exit status the tool itself reported.
package conda
