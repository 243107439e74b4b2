package engine

import (
	"path/filepath"
	"runtime"

	"github.com/dshills/uebuild/internal/unreal/probe"
)

// validationDir is the subdirectory every engine installation carries.
var validationDir = filepath.Join("Engine", "Build", "BatchFiles")

// Validate reports whether root looks like an engine installation.
func Validate(root string) bool {
	if root == "" {
		return false
	}
	return probe.IsDir(filepath.Join(root, validationDir))
}

// Normalize expands "~", makes path absolute and maps "<root>/Engine" to
// "<root>" when the parent is a valid engine root.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	path = probe.ExpandHome(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	if filepath.Base(path) == "Engine" {
		if parent := filepath.Dir(path); Validate(parent) {
			return parent
		}
	}
	return path
}

// DefaultInstallRoots returns the directories launcher-installed engines
// live under (as UE_<version>) on the given host.
func DefaultInstallRoots(hostOS string) []string {
	if hostOS == "" {
		hostOS = runtime.GOOS
	}
	switch hostOS {
	case "windows":
		return []string{`C:\Program Files\Epic Games`}
	case "darwin":
		return []string{"/Users/Shared/Epic Games"}
	default:
		return []string{"~/UnrealEngine", "~/Epic Games", "/opt/UnrealEngine"}
	}
}
