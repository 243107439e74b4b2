// Package probe provides the filesystem walks used to locate projects and
// engine installations: upward ancestor searches and depth-limited downward
// searches. All walks are synchronous and deterministic; directory entries
// are visited in lexical order.
package probe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MatchFunc reports whether dir is the directory being searched for.
type MatchFunc func(dir string) bool

// DefaultExcludeDirs are directory names skipped by downward searches.
var DefaultExcludeDirs = []string{
	".git",
	".vs",
	".vscode",
	".idea",
	"node_modules",
	"Binaries",
	"Intermediate",
	"Saved",
	"DerivedDataCache",
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FindUp walks from start towards the filesystem root and returns the first
// directory (start included) accepted by match.
func FindUp(start string, match MatchFunc) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DownOptions configures FindDown.
type DownOptions struct {
	// MaxDepth is the deepest level visited below root (0 = root only).
	MaxDepth int

	// ExcludeDirs are directory names never descended into.
	ExcludeDirs []string

	// IncludeHidden descends into dot-directories.
	IncludeHidden bool
}

// DefaultDownOptions returns options with depth 3 and the default excludes.
func DefaultDownOptions() DownOptions {
	return DownOptions{
		MaxDepth:    3,
		ExcludeDirs: DefaultExcludeDirs,
	}
}

// FindDown searches breadth-first below root, level by level, and returns the
// shallowest directory accepted by match. Ties at the same depth resolve to
// the lexically first path.
func FindDown(root string, opts DownOptions, match MatchFunc) (string, bool) {
	root, err := filepath.Abs(root)
	if err != nil || !IsDir(root) {
		return "", false
	}

	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	level := []string{root}
	for depth := 0; depth <= opts.MaxDepth && len(level) > 0; depth++ {
		var next []string
		for _, dir := range level {
			if match(dir) {
				return dir, true
			}
			if depth == opts.MaxDepth {
				continue
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				name := entry.Name()
				if excluded[name] || (!opts.IncludeHidden && strings.HasPrefix(name, ".")) {
					continue
				}
				next = append(next, filepath.Join(dir, name))
			}
		}
		level = next
	}

	return "", false
}

// Glob returns the regular files directly inside dir whose names match
// pattern (filepath.Match syntax), sorted.
func Glob(dir, pattern string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(matches)
	return matches
}

// HasFile reports whether dir directly contains a file matching pattern.
func HasFile(dir, pattern string) bool {
	return len(Glob(dir, pattern)) > 0
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
