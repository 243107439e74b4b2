package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ProjectFileName is the per-project configuration file.
const ProjectFileName = ".uebuild.toml"

// UserConfigPath returns ~/.config/uebuild/config.toml, or "" when the
// user configuration directory is unknown.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "uebuild", "config.toml")
}

// LoadOptions selects the layers Load applies.
type LoadOptions struct {
	// UserFile is the user layer; empty skips it.
	UserFile string

	// ProjectDir holds the project layer file; empty skips it.
	ProjectDir string

	// ExtraFiles are applied after the project layer, in order. Unlike
	// the other layers they must exist.
	ExtraFiles []string

	// Environ replaces the process environment; nil reads os.Environ.
	Environ map[string]string

	// SkipEnv disables the environment layer.
	SkipEnv bool
}

// Load builds a Config from defaults, files and the environment, then
// validates it.
func Load(opts LoadOptions) (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	var files []string
	apply := func(path string, required bool) error {
		layer, err := loadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !required {
				return nil
			}
			return err
		}
		merged = DeepMerge(merged, layer)
		files = append(files, path)
		return nil
	}

	if opts.UserFile != "" {
		if err := apply(opts.UserFile, false); err != nil {
			return nil, err
		}
	}
	if opts.ProjectDir != "" {
		if err := apply(filepath.Join(opts.ProjectDir, ProjectFileName), false); err != nil {
			return nil, err
		}
	}
	for _, path := range opts.ExtraFiles {
		if err := apply(path, true); err != nil {
			return nil, err
		}
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	cfg.Files = files

	if !opts.SkipEnv {
		if err := ParseEnv(cfg, opts.Environ); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile parses one layer. Unknown keys and type mismatches are
// reported against the file.
func loadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var layer map[string]any
	if err := toml.Unmarshal(data, &layer); err != nil {
		return nil, newParseError(path, err)
	}

	var probe Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&probe); err != nil {
		return nil, newParseError(path, err)
	}

	return layer, nil
}

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Message: err.Error(), Err: err}

	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		pe.Line, pe.Column = derr.Position()
	}
	var serr *toml.StrictMissingError
	if errors.As(err, &serr) && len(serr.Errors) > 0 {
		first := serr.Errors[0]
		pe.Line, pe.Column = first.Position()
		pe.Message = "unknown key " + strings.Join(first.Key(), ".")
	}
	return pe
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}

	return dst
}
