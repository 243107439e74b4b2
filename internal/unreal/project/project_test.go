package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/uebuild/internal/unreal"
)

const sampleDescriptor = `{
	"FileVersion": 3,
	"EngineAssociation": "5.3",
	"Category": "",
	"Modules": [
		{"Name": "Shooter", "Type": "Runtime", "LoadingPhase": "Default"},
		{"Name": "ShooterEditor", "Type": "Editor", "LoadingPhase": "PostEngineInit"}
	],
	"Plugins": [
		{"Name": "ModelingToolsEditorMode", "Enabled": true},
		{"Name": "OnlineSubsystemSteam", "Enabled": false},
		{"Name": "EnhancedInput", "Enabled": true}
	]
}`

func writeProject(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+Extension)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFind_FromNestedDirectory(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, "Shooter", sampleDescriptor)
	nested := filepath.Join(root, "Source", "Shooter", "Private")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := Find(nested)
	if err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if d.Name != "Shooter" {
		t.Errorf("Name = %q, want Shooter", d.Name)
	}
	if d.Dir != root {
		t.Errorf("Dir = %q, want %q", d.Dir, root)
	}
	if d.SourceDir() != filepath.Join(root, "Source") {
		t.Errorf("SourceDir = %q", d.SourceDir())
	}
}

func TestFind_PicksLexicallyFirst(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, "Zeta", "{}")
	writeProject(t, root, "Alpha", "{}")

	d, err := Find(root)
	if err != nil {
		t.Fatalf("Find error = %v", err)
	}
	if d.Name != "Alpha" {
		t.Errorf("Name = %q, want Alpha", d.Name)
	}
}

func TestFind_NotFound(t *testing.T) {
	_, err := Find(t.TempDir())
	if !errors.Is(err, unreal.ErrNotFound) {
		t.Errorf("Find error = %v, want ErrNotFound", err)
	}
}

func TestFromFile_RejectsOtherExtensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Shooter.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); !errors.Is(err, unreal.ErrInvalidInput) {
		t.Errorf("FromFile error = %v, want ErrInvalidInput", err)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := writeProject(t, root, "Shooter", sampleDescriptor)

	d, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := d.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if info.FileVersion != 3 {
		t.Errorf("FileVersion = %d, want 3", info.FileVersion)
	}
	if info.EngineAssociation != "5.3" {
		t.Errorf("EngineAssociation = %q, want 5.3", info.EngineAssociation)
	}
	if len(info.Modules) != 2 || info.Modules[1].Name != "ShooterEditor" || info.Modules[1].Type != "Editor" {
		t.Errorf("Modules = %+v", info.Modules)
	}
	if len(info.EnabledPlugins) != 2 || info.EnabledPlugins[0] != "ModelingToolsEditorMode" || info.EnabledPlugins[1] != "EnhancedInput" {
		t.Errorf("EnabledPlugins = %v", info.EnabledPlugins)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("{not json")); !errors.Is(err, unreal.ErrInvalidInput) {
		t.Errorf("Parse error = %v, want ErrInvalidInput", err)
	}
}

func TestIsPathAssociation(t *testing.T) {
	tests := map[string]bool{
		"":                                       false,
		"5.3":                                    false,
		"{A1B2C3D4-0000-0000-0000-000000000000}": false,
		"/opt/UnrealEngine":                      true,
		"../UnrealEngine":                        true,
		`C:\UE\UnrealEngine`:                     true,
	}
	for in, want := range tests {
		if got := IsPathAssociation(in); got != want {
			t.Errorf("IsPathAssociation(%q) = %v, want %v", in, got, want)
		}
	}
}
