package diagnostics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/uebuild/internal/unreal"
)

// CompileDBFile is the clang compilation database file name.
const CompileDBFile = "compile_commands.json"

// CompileDBOptions configures ProcessCompileDB.
type CompileDBOptions struct {
	// OutputDir is where UnrealBuildTool wrote the database.
	OutputDir string

	// ProjectDir receives the processed database. Empty leaves the
	// database where it is.
	ProjectDir string

	// FilterToProject drops entries whose file lies outside ProjectDir.
	FilterToProject bool
}

// CompileDBResult summarises a processed database.
type CompileDBResult struct {
	// Path is the database clangd should read.
	Path string

	// Entries is the number of entries UnrealBuildTool produced.
	Entries int

	// Kept is the number of entries in Path.
	Kept int
}

// ProcessCompileDB validates the database in opts.OutputDir and places
// it in opts.ProjectDir.
func ProcessCompileDB(opts CompileDBOptions) (CompileDBResult, error) {
	src := filepath.Join(opts.OutputDir, CompileDBFile)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return CompileDBResult{}, fmt.Errorf("%w: %s", unreal.ErrNotFound, src)
		}
		return CompileDBResult{}, fmt.Errorf("read compile database: %w", err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return CompileDBResult{}, fmt.Errorf("%w: %s", ErrInvalidDatabase, src)
	}

	entries := int(gjson.GetBytes(data, "#").Int())
	result := CompileDBResult{Path: src, Entries: entries, Kept: entries}

	if opts.ProjectDir == "" {
		return result, nil
	}

	out := data
	if opts.FilterToProject {
		out, result.Kept, err = FilterEntries(data, opts.ProjectDir)
		if err != nil {
			return CompileDBResult{}, err
		}
	}

	dst := filepath.Join(opts.ProjectDir, CompileDBFile)
	if sameFile(src, dst) && bytes.Equal(out, data) {
		return result, nil
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return CompileDBResult{}, fmt.Errorf("write compile database: %w", err)
	}
	result.Path = dst
	return result, nil
}

// FilterEntries keeps the entries whose file lies under dir. Relative
// file names are resolved against the entry's directory.
func FilterEntries(data []byte, dir string) ([]byte, int, error) {
	prefix := filepath.Clean(dir)
	out := []byte("[]")
	kept := 0

	var setErr error
	gjson.ParseBytes(data).ForEach(func(_, entry gjson.Result) bool {
		file := entry.Get("file").String()
		if file != "" && !filepath.IsAbs(file) {
			file = filepath.Join(entry.Get("directory").String(), file)
		}
		if !within(prefix, filepath.Clean(file)) {
			return true
		}
		out, setErr = sjson.SetRawBytes(out, "-1", []byte(entry.Raw))
		if setErr != nil {
			return false
		}
		kept++
		return true
	})
	if setErr != nil {
		return nil, 0, fmt.Errorf("filter compile database: %w", setErr)
	}
	return out, kept, nil
}

func within(dir, path string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
