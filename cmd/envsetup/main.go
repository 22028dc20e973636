// Package main is the entry point for the envsetup CLI.
//
// This binary prepares the local development environment for the
// atlas-quicklook package: it creates the conda environment from
// environment.yml, activates it and installs the package in editable mode.
// All functionality lives in the internal/cli package.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release process. During development, they default to "dev",
// "none", and "unknown" respectively.
package main

import (
	"github.com/atlas-ql/envsetup/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Inject build-time version info into the CLI package.
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
