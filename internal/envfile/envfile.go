// Package envfile locates the conda environment spec file and the
// Python package manifest in a project directory.
//
// The spec file is opaque to envsetup: conda reads it. The only thing
// taken from it is the top-level `name:` key, which is needed to find the
// environment again after conda has created it.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/atlas-ql/envsetup/internal/model"
)

// manifestFiles are the files pip accepts as a project manifest for an
// editable install, in the order they are reported.
var manifestFiles = []string{"pyproject.toml", "setup.py", "setup.cfg"}

// Resolve returns the absolute path of the spec file. A relative path is
// resolved against projectDir.
func Resolve(projectDir, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

// Exists reports whether the spec file is present. It returns a CLIError
// with ExitEnvFileNotFound when it is not, which is the exit code the
// create step fails with.
func Exists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.WrapCLIError(model.ExitEnvFileNotFound,
				fmt.Sprintf("environment file not found: %s", path), err)
		}
		return fmt.Errorf("failed to stat environment file: %w", err)
	}
	if info.IsDir() {
		return model.NewCLIError(model.ExitEnvFileNotFound,
			fmt.Sprintf("environment file is a directory: %s", path))
	}
	return nil
}

// header is the only part of environment.yml envsetup decodes.
// yaml.v3 ignores every other key.
type header struct {
	Name string `yaml:"name"`
}

// PeekName returns the environment name declared in the spec file.
//
// An empty string with a nil error means the file exists but declares no
// name; conda then requires -n on the command line.
func PeekName(path string) (string, error) {
	if err := Exists(path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read environment file: %w", err)
	}

	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("failed to read name from %s: %w", path, err)
	}
	return strings.TrimSpace(h.Name), nil
}

// FindManifest returns the path of the first package manifest found in
// projectDir. It fails with ExitEnvFileNotFound when there is none, since
// `pip install -e` cannot do anything useful without one.
func FindManifest(projectDir string) (string, error) {
	for _, name := range manifestFiles {
		path := filepath.Join(projectDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", model.NewCLIError(model.ExitEnvFileNotFound,
		fmt.Sprintf("no package manifest (%s) found in %s", strings.Join(manifestFiles, ", "), projectDir))
}

// pyproject is the part of pyproject.toml envsetup decodes.
type pyproject struct {
	Project struct {
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// DeclaredExtras returns the optional-dependency groups a pyproject.toml
// manifest declares under [project.optional-dependencies], sorted.
//
// ok is false when the manifest is not a pyproject.toml or has no
// [project.optional-dependencies] table. Extras of setup.py projects live
// in Python code and cannot be read statically.
func DeclaredExtras(manifest string) (extras []string, ok bool, err error) {
	if filepath.Base(manifest) != "pyproject.toml" {
		return nil, false, nil
	}

	var raw pyproject
	meta, err := toml.DecodeFile(manifest, &raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", manifest, err)
	}
	if !meta.IsDefined("project", "optional-dependencies") {
		return nil, false, nil
	}

	for name := range raw.Project.OptionalDependencies {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	return extras, true, nil
}

// UndeclaredExtras returns the entries of requested that the manifest does
// not declare. Names are compared after PEP 685 normalization, so "Dev_Tools"
// matches "dev-tools". It returns nil when the declared set is unknown.
func UndeclaredExtras(manifest string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	declared, ok, err := DeclaredExtras(manifest)
	if err != nil || !ok {
		return nil, err
	}

	known := make(map[string]bool, len(declared))
	for _, name := range declared {
		known[normalizeExtra(name)] = true
	}
	var missing []string
	for _, name := range requested {
		if !known[normalizeExtra(name)] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// normalizeExtra lowercases name and collapses runs of '-', '_' and '.'
// into a single '-'.
func normalizeExtra(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
