package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/dshills/uebuild/internal/unreal"
)

func writeDB(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, CompileDBFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func entryFiles(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, r := range gjson.GetBytes(data, "#.file").Array() {
		files = append(files, r.String())
	}
	return files
}

func TestProcessCompileDB_FilterAndCopy(t *testing.T) {
	root := t.TempDir()
	engine := filepath.Join(root, "UE")
	proj := filepath.Join(root, "Game")
	if err := os.MkdirAll(proj, 0o755); err != nil {
		t.Fatal(err)
	}

	db := `[
  {"file": "` + filepath.Join(proj, "Source", "Game", "A.cpp") + `", "directory": "` + engine + `", "command": "clang++ -c A.cpp"},
  {"file": "` + filepath.Join(engine, "Engine", "Source", "Core.cpp") + `", "directory": "` + engine + `", "command": "clang++ -c Core.cpp"},
  {"file": "../Game/Source/Game/B.cpp", "directory": "` + engine + `", "command": "clang++ -c B.cpp"}
]`
	writeDB(t, engine, db)

	res, err := ProcessCompileDB(CompileDBOptions{
		OutputDir:       engine,
		ProjectDir:      proj,
		FilterToProject: true,
	})
	if err != nil {
		t.Fatalf("ProcessCompileDB: %v", err)
	}

	if res.Entries != 3 || res.Kept != 2 {
		t.Errorf("Entries/Kept = %d/%d, want 3/2", res.Entries, res.Kept)
	}
	if res.Path != filepath.Join(proj, CompileDBFile) {
		t.Errorf("Path = %q", res.Path)
	}

	want := []string{filepath.Join(proj, "Source", "Game", "A.cpp"), "../Game/Source/Game/B.cpp"}
	if got := entryFiles(t, res.Path); !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}

	data, _ := os.ReadFile(res.Path)
	if cmd := gjson.GetBytes(data, "0.command").String(); cmd != "clang++ -c A.cpp" {
		t.Errorf("entry command not preserved: %q", cmd)
	}
}

func TestProcessCompileDB_CopyUnfiltered(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "UE")
	proj := filepath.Join(root, "Game")
	if err := os.MkdirAll(proj, 0o755); err != nil {
		t.Fatal(err)
	}
	writeDB(t, out, `[{"file":"/x/a.cpp","directory":"/x"}]`)

	res, err := ProcessCompileDB(CompileDBOptions{OutputDir: out, ProjectDir: proj})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kept != 1 || res.Path != filepath.Join(proj, CompileDBFile) {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessCompileDB_InPlace(t *testing.T) {
	proj := t.TempDir()
	writeDB(t, proj, `[{"file":"a.cpp","directory":"/p"}]`)

	res, err := ProcessCompileDB(CompileDBOptions{OutputDir: proj, ProjectDir: proj})
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(proj, CompileDBFile) || res.Entries != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestProcessCompileDB_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ProcessCompileDB(CompileDBOptions{OutputDir: dir}); !errors.Is(err, unreal.ErrNotFound) {
		t.Errorf("missing database err = %v, want ErrNotFound", err)
	}

	writeDB(t, dir, `{"not": "an array"}`)
	if _, err := ProcessCompileDB(CompileDBOptions{OutputDir: dir}); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("object database err = %v, want ErrInvalidDatabase", err)
	}

	writeDB(t, dir, `[{"file":`)
	if _, err := ProcessCompileDB(CompileDBOptions{OutputDir: dir}); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("truncated database err = %v, want ErrInvalidDatabase", err)
	}
}

func TestFilterEntries_PrefixBoundary(t *testing.T) {
	data := []byte(`[{"file":"/work/Game/a.cpp"},{"file":"/work/GameOther/b.cpp"}]`)

	out, kept, err := FilterEntries(data, "/work/Game")
	if err != nil {
		t.Fatal(err)
	}
	if kept != 1 {
		t.Errorf("kept = %d, want 1", kept)
	}
	if got := gjson.GetBytes(out, "0.file").String(); got != "/work/Game/a.cpp" {
		t.Errorf("kept file = %q", got)
	}
}
