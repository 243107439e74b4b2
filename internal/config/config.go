package config

import (
	"errors"
	"slices"
	"strings"
)

// Config holds all uebuild settings.
type Config struct {
	Log    LogConfig    `toml:"log" envPrefix:"LOG_"`
	Engine EngineConfig `toml:"engine" envPrefix:"ENGINE_"`
	Build  BuildConfig  `toml:"build" envPrefix:"BUILD_"`
	Clangd ClangdConfig `toml:"clangd" envPrefix:"CLANGD_"`
	Watch  WatchConfig  `toml:"watch" envPrefix:"WATCH_"`

	// Files lists the configuration files that were applied, lowest
	// priority first.
	Files []string `toml:"-"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// EngineConfig configures engine root resolution.
type EngineConfig struct {
	// Path is an explicit engine root that outranks every other source.
	Path string `toml:"path" env:"PATH"`

	// EnvVar names the variable consulted after the marker file.
	EnvVar string `toml:"env_var" env:"ENV_VAR"`

	MarkerFile string `toml:"marker_file" env:"MARKER_FILE"`
	MarkerKey  string `toml:"marker_key" env:"MARKER_KEY"`

	// InstallRoots hold launcher installs named UE_<version>.
	InstallRoots []string `toml:"install_roots,omitempty" env:"INSTALL_ROOTS" envSeparator:","`

	SearchDepth int  `toml:"search_depth" env:"SEARCH_DEPTH"`
	Persist     bool `toml:"persist" env:"PERSIST"`
}

// BuildConfig holds build defaults.
type BuildConfig struct {
	// Platform defaults to the host platform when empty.
	Platform      string `toml:"platform" env:"PLATFORM"`
	Configuration string `toml:"configuration" env:"CONFIGURATION"`

	// Target skips target selection when set.
	Target string `toml:"target" env:"TARGET"`

	WaitMutex      bool     `toml:"wait_mutex" env:"WAIT_MUTEX"`
	ProblemMatcher string   `toml:"problem_matcher" env:"PROBLEM_MATCHER"`
	ExtraArgs      []string `toml:"extra_args,omitempty" env:"EXTRA_ARGS" envSeparator:","`
}

// ClangdConfig configures clangd support files.
type ClangdConfig struct {
	// WriteConfig writes a .clangd file after compiledb succeeds.
	WriteConfig bool `toml:"write_config" env:"WRITE_CONFIG"`

	// CopyToProject copies compile_commands.json into the project root.
	CopyToProject bool `toml:"copy_to_project" env:"COPY_TO_PROJECT"`

	// FilterToProject drops engine entries from the copied database.
	FilterToProject bool `toml:"filter_to_project" env:"FILTER_TO_PROJECT"`

	// RefreshCommand runs after every successful build.
	RefreshCommand string `toml:"refresh_command" env:"REFRESH_COMMAND"`

	Add      []string `toml:"add,omitempty" env:"ADD" envSeparator:","`
	Remove   []string `toml:"remove,omitempty" env:"REMOVE" envSeparator:","`
	Suppress []string `toml:"suppress,omitempty" env:"SUPPRESS" envSeparator:","`
}

// WatchConfig configures the source watcher.
type WatchConfig struct {
	DebounceMS int      `toml:"debounce_ms" env:"DEBOUNCE_MS"`
	Patterns   []string `toml:"patterns,omitempty" env:"PATTERNS" envSeparator:","`
}

// LogLevels lists the accepted log levels.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Engine: EngineConfig{
			EnvVar:      "UNREAL_ENGINE_PATH",
			MarkerFile:  ".ue-engine",
			MarkerKey:   "ENGINE_PATH",
			SearchDepth: 3,
			Persist:     true,
		},
		Build: BuildConfig{
			Configuration:  "Development",
			WaitMutex:      true,
			ProblemMatcher: "$unreal",
		},
		Clangd: ClangdConfig{
			WriteConfig:   true,
			CopyToProject: true,
			Add:           []string{"-Wno-unknown-warning-option", "-Wno-unused-private-field"},
			Remove:        []string{"-Werror", "-fdiagnostics-format=*", "-fdiagnostics-absolute-paths"},
			Suppress:      []string{"pp_including_mainfile_in_preamble"},
		},
		Watch: WatchConfig{
			DebounceMS: 500,
			Patterns:   []string{"*.Target.cs", "*.Build.cs", "*.uproject", "*.uplugin"},
		},
	}
}

// Validate checks every setting and joins all failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(setting, msg string) {
		errs = append(errs, &ValidationError{Setting: setting, Message: msg})
	}

	if !slices.Contains(LogLevels, strings.ToLower(c.Log.Level)) {
		add("log.level", "must be one of "+strings.Join(LogLevels, ", "))
	}
	if c.Engine.SearchDepth < 0 {
		add("engine.search_depth", "must not be negative")
	}
	if strings.TrimSpace(c.Engine.MarkerFile) == "" {
		add("engine.marker_file", "must not be empty")
	}
	if strings.ContainsAny(c.Engine.MarkerKey, "= \t") || c.Engine.MarkerKey == "" {
		add("engine.marker_key", "must be a non-empty name without '=' or spaces")
	}
	if strings.TrimSpace(c.Build.Configuration) == "" {
		add("build.configuration", "must not be empty")
	}
	if c.Clangd.FilterToProject && !c.Clangd.CopyToProject {
		add("clangd.filter_to_project", "requires copy_to_project")
	}
	if c.Watch.DebounceMS < 0 {
		add("watch.debounce_ms", "must not be negative")
	}

	return errors.Join(errs...)
}
