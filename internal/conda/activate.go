package conda

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Activation is the child-process view of an activated environment.
//
// `conda activate` mutates the calling shell, which a separate process
// cannot do. Instead envsetup reproduces the parts of activation that the
// install step depends on: the environment's binary directories first on
// PATH, plus CONDA_PREFIX and CONDA_DEFAULT_ENV.
type Activation struct {
	// Name is the environment name.
	Name string

	// Prefix is the environment's root directory.
	Prefix string

	// Python is the environment's interpreter.
	Python string

	// Env is the complete environment for child processes.
	Env []string

	// CondaVersion is the version of the conda that reported Prefix.
	CondaVersion string
}

// NewActivation builds an Activation for prefix on top of base
// (typically os.Environ()).
func NewActivation(name, prefix string, base []string) *Activation {
	return newActivation(name, prefix, base, runtime.GOOS)
}

func newActivation(name, prefix string, base []string, goos string) *Activation {
	dirs := binDirs(prefix, goos)
	sep := ":"
	if goos == "windows" {
		sep = ";"
	}

	pathKey := "PATH"
	if goos == "windows" {
		// Windows environment keys are case-insensitive and the system
		// spells this one "Path".
		pathKey = findKey(base, "PATH", true)
	}

	current, _ := lookup(base, pathKey, goos == "windows")
	newPath := strings.Join(dirs, sep)
	if current != "" {
		newPath += sep + current
	}

	env := setEnv(base, pathKey, newPath, goos == "windows")
	env = setEnv(env, "CONDA_PREFIX", prefix, goos == "windows")
	env = setEnv(env, "CONDA_DEFAULT_ENV", name, goos == "windows")

	return &Activation{
		Name:   name,
		Prefix: prefix,
		Python: pythonPath(prefix, goos),
		Env:    env,
	}
}

// binDirs lists the directories conda's activate scripts put on PATH.
func binDirs(prefix, goos string) []string {
	if goos == "windows" {
		return []string{
			prefix,
			filepath.Join(prefix, "Library", "mingw-w64", "bin"),
			filepath.Join(prefix, "Library", "usr", "bin"),
			filepath.Join(prefix, "Library", "bin"),
			filepath.Join(prefix, "Scripts"),
			filepath.Join(prefix, "bin"),
		}
	}
	return []string{filepath.Join(prefix, "bin")}
}

// pythonPath returns the interpreter location inside prefix.
func pythonPath(prefix, goos string) string {
	if goos == "windows" {
		return filepath.Join(prefix, "python.exe")
	}
	return filepath.Join(prefix, "bin", "python")
}

// findKey returns the spelling of key used in env, or key itself.
func findKey(env []string, key string, foldCase bool) string {
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if ok && keyEqual(k, key, foldCase) {
			return k
		}
	}
	return key
}

// lookup returns the value of key in env. The last occurrence wins,
// matching os/exec's handling of duplicates.
func lookup(env []string, key string, foldCase bool) (string, bool) {
	value, found := "", false
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && keyEqual(k, key, foldCase) {
			value, found = v, true
		}
	}
	return value, found
}

// setEnv returns a copy of env with key set to value. Existing entries
// for key are dropped.
func setEnv(env []string, key, value string, foldCase bool) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if ok && keyEqual(k, key, foldCase) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

func keyEqual(a, b string, foldCase bool) bool {
	if foldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}
