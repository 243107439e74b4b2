package diagnostics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ClangdFile is the clangd project configuration file name.
const ClangdFile = ".clangd"

// generatedHeader marks files this package owns.
const generatedHeader = "# Generated by uebuild. Delete this line to keep manual edits.\n"

// ClangdOptions are the values written to .clangd.
type ClangdOptions struct {
	Add      []string
	Remove   []string
	Suppress []string

	// CompilationDatabase is the directory holding compile_commands.json;
	// empty lets clangd search parent directories.
	CompilationDatabase string
}

// DefaultClangdOptions returns flags that make clangd accept
// UnrealBuildTool's clang command lines.
func DefaultClangdOptions() ClangdOptions {
	return ClangdOptions{
		Add:      []string{"-Wno-unknown-warning-option", "-Wno-unused-private-field"},
		Remove:   []string{"-Werror", "-fdiagnostics-format=*", "-fdiagnostics-absolute-paths"},
		Suppress: []string{"pp_including_mainfile_in_preamble"},
	}
}

type clangdConfig struct {
	CompileFlags clangdCompileFlags `yaml:"CompileFlags"`
	Diagnostics  clangdDiagnostics  `yaml:"Diagnostics,omitempty"`
}

type clangdCompileFlags struct {
	Add                 []string `yaml:"Add,omitempty"`
	Remove              []string `yaml:"Remove,omitempty"`
	CompilationDatabase string   `yaml:"CompilationDatabase,omitempty"`
}

type clangdDiagnostics struct {
	Suppress []string `yaml:"Suppress,omitempty"`
}

// RenderClangd returns the .clangd document for opts.
func RenderClangd(opts ClangdOptions) ([]byte, error) {
	cfg := clangdConfig{
		CompileFlags: clangdCompileFlags{
			Add:                 opts.Add,
			Remove:              opts.Remove,
			CompilationDatabase: opts.CompilationDatabase,
		},
		Diagnostics: clangdDiagnostics{Suppress: opts.Suppress},
	}

	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode .clangd: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode .clangd: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteClangd writes dir/.clangd. An existing file without the generated
// header is left alone and ErrUserFile is returned.
func WriteClangd(dir string, opts ClangdOptions) (string, error) {
	path := filepath.Join(dir, ClangdFile)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !bytes.HasPrefix(existing, []byte(generatedHeader)) {
			return path, ErrUserFile
		}
	case !os.IsNotExist(err):
		return path, fmt.Errorf("read .clangd: %w", err)
	}

	data, err := RenderClangd(opts)
	if err != nil {
		return path, err
	}
	if bytes.Equal(existing, data) {
		return path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("write .clangd: %w", err)
	}
	return path, nil
}

// ReadClangd parses dir/.clangd back into options.
func ReadClangd(dir string) (ClangdOptions, error) {
	data, err := os.ReadFile(filepath.Join(dir, ClangdFile))
	if err != nil {
		return ClangdOptions{}, err
	}
	var cfg clangdConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ClangdOptions{}, fmt.Errorf("parse .clangd: %w", err)
	}
	return ClangdOptions{
		Add:                 cfg.CompileFlags.Add,
		Remove:              cfg.CompileFlags.Remove,
		Suppress:            cfg.Diagnostics.Suppress,
		CompilationDatabase: cfg.CompileFlags.CompilationDatabase,
	}, nil
}
