// Package project locates and reads Unreal project descriptors (.uproject).
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/probe"
)

// Extension is the project descriptor file extension.
const Extension = ".uproject"

// Descriptor identifies a project definition file and its directory.
type Descriptor struct {
	// File is the absolute path of the .uproject file.
	File string

	// Dir is the directory containing File.
	Dir string

	// Name is the file name without extension.
	Name string
}

// Info holds the fields of a .uproject that the build tooling cares about.
type Info struct {
	FileVersion       int64
	EngineAssociation string
	Modules           []Module
	EnabledPlugins    []string
}

// Module is one entry of the descriptor's Modules array.
type Module struct {
	Name         string
	Type         string
	LoadingPhase string
}

// Find searches upward from startDir for a directory containing a .uproject.
// When a directory holds several, the lexically first one wins.
func Find(startDir string) (*Descriptor, error) {
	pattern := "*" + Extension
	dir, ok := probe.FindUp(startDir, func(dir string) bool {
		return probe.HasFile(dir, pattern)
	})
	if !ok {
		return nil, fmt.Errorf("%w: no %s file above %s", unreal.ErrNotFound, Extension, startDir)
	}
	return FromFile(probe.Glob(dir, pattern)[0])
}

// FromFile builds a descriptor for an explicit .uproject path.
func FromFile(path string) (*Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if !strings.EqualFold(filepath.Ext(abs), Extension) {
		return nil, fmt.Errorf("%w: %s is not a %s file", unreal.ErrInvalidInput, path, Extension)
	}
	if !probe.IsFile(abs) {
		return nil, fmt.Errorf("%w: %s", unreal.ErrNotFound, abs)
	}

	base := filepath.Base(abs)
	return &Descriptor{
		File: abs,
		Dir:  filepath.Dir(abs),
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}, nil
}

// SourceDir returns the project's Source directory.
func (d *Descriptor) SourceDir() string {
	return filepath.Join(d.Dir, "Source")
}

// Load reads and parses the descriptor file.
func (d *Descriptor) Load() (*Info, error) {
	data, err := os.ReadFile(d.File)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.File, err)
	}
	return Parse(data)
}

// Parse extracts Info from .uproject JSON.
func Parse(data []byte) (*Info, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: descriptor is not valid JSON", unreal.ErrInvalidInput)
	}

	root := gjson.ParseBytes(data)
	info := &Info{
		FileVersion:       root.Get("FileVersion").Int(),
		EngineAssociation: strings.TrimSpace(root.Get("EngineAssociation").String()),
	}

	root.Get("Modules").ForEach(func(_, m gjson.Result) bool {
		info.Modules = append(info.Modules, Module{
			Name:         m.Get("Name").String(),
			Type:         m.Get("Type").String(),
			LoadingPhase: m.Get("LoadingPhase").String(),
		})
		return true
	})

	for _, name := range root.Get("Plugins.#(Enabled==true)#.Name").Array() {
		info.EnabledPlugins = append(info.EnabledPlugins, name.String())
	}

	return info, nil
}

// IsPathAssociation reports whether an EngineAssociation value names a
// directory rather than a version or a registry GUID.
func IsPathAssociation(assoc string) bool {
	if assoc == "" {
		return false
	}
	return filepath.IsAbs(assoc) || strings.HasPrefix(assoc, ".") ||
		strings.ContainsAny(assoc, `/\`)
}
