package diagnostics

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteClangd_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultClangdOptions()
	opts.CompilationDatabase = dir

	path, err := WriteClangd(dir, opts)
	if err != nil {
		t.Fatalf("WriteClangd: %v", err)
	}
	if path != filepath.Join(dir, ClangdFile) {
		t.Errorf("path = %q", path)
	}

	got, err := ReadClangd(dir)
	if err != nil {
		t.Fatalf("ReadClangd: %v", err)
	}
	if !reflect.DeepEqual(got, opts) {
		t.Errorf("ReadClangd = %+v, want %+v", got, opts)
	}
}

func TestWriteClangd_Regenerates(t *testing.T) {
	dir := t.TempDir()

	if _, err := WriteClangd(dir, ClangdOptions{Add: []string{"-DA"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteClangd(dir, ClangdOptions{Add: []string{"-DB"}}); err != nil {
		t.Fatalf("second WriteClangd: %v", err)
	}

	got, err := ReadClangd(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Add, []string{"-DB"}) {
		t.Errorf("Add = %v, want [-DB]", got.Add)
	}
}

func TestWriteClangd_KeepsUserFile(t *testing.T) {
	dir := t.TempDir()
	user := []byte("CompileFlags:\n  Add: [-DMINE]\n")
	path := filepath.Join(dir, ClangdFile)
	if err := os.WriteFile(path, user, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := WriteClangd(dir, DefaultClangdOptions()); !errors.Is(err, ErrUserFile) {
		t.Errorf("err = %v, want ErrUserFile", err)
	}
	data, _ := os.ReadFile(path)
	if !bytes.Equal(data, user) {
		t.Error("user .clangd was modified")
	}
}

func TestRenderClangd_OmitsEmptySections(t *testing.T) {
	data, err := RenderClangd(ClangdOptions{Add: []string{"-DX"}})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("Diagnostics")) {
		t.Errorf("empty Diagnostics section rendered:\n%s", data)
	}
	if bytes.Contains(data, []byte("Remove")) {
		t.Errorf("empty Remove list rendered:\n%s", data)
	}
	if !bytes.HasPrefix(data, []byte(generatedHeader)) {
		t.Error("missing generated header")
	}
}
