// Package target discovers build targets from *.Target.cs rule files.
package target

import (
	"path/filepath"
	"strings"

	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/probe"
)

// FileSuffix is the naming pattern of target rule files.
const FileSuffix = ".Target.cs"

// Result is the outcome of a discovery.
type Result struct {
	// Targets are the discovered target names, sorted.
	Targets []string

	// Guessed is true when no rule file was found and Targets holds a
	// single name derived from the project or directory name.
	Guessed bool

	// SearchDir is the directory that was scanned.
	SearchDir string
}

// Default returns the preferred target: the first one ending in "Editor",
// otherwise the first target.
func (r Result) Default() string {
	for _, t := range r.Targets {
		if strings.HasSuffix(t, "Editor") {
			return t
		}
	}
	if len(r.Targets) > 0 {
		return r.Targets[0]
	}
	return ""
}

// Discover lists the target rule files directly inside searchDir and
// strips their suffix. When none exist it falls back to Fallback(scope,
// name) and flags the result as guessed.
func Discover(searchDir string, scope unreal.Scope, name string) Result {
	files := probe.Glob(searchDir, "*"+FileSuffix)

	result := Result{SearchDir: searchDir}
	for _, f := range files {
		result.Targets = append(result.Targets, strings.TrimSuffix(filepath.Base(f), FileSuffix))
	}
	if len(result.Targets) > 0 {
		return result
	}

	result.Targets = []string{Fallback(scope, name)}
	result.Guessed = true
	return result
}

// Fallback derives a target name when no rule file exists: "<name>Editor"
// for projects and "<name>" for engine-only invocations.
func Fallback(scope unreal.Scope, name string) string {
	if scope == unreal.ScopeProject {
		return name + "Editor"
	}
	return name
}
