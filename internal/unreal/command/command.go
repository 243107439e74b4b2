// Package command builds UnrealBuildTool command lines.
//
// Build is a pure function of its Request: identical requests always yield
// identical commands. The host OS selects the launcher script and the
// casing of the project argument; nothing else about the command depends
// on the machine it is built on.
package command

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/dshills/uebuild/internal/unreal"
)

// Mode selects the kind of UnrealBuildTool run.
type Mode int

const (
	// ModeBuild compiles and links the target.
	ModeBuild Mode = iota
	// ModeHeaders runs header generation only.
	ModeHeaders
	// ModeCompileDB writes compile_commands.json for clangd.
	ModeCompileDB
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeBuild:
		return "build"
	case ModeHeaders:
		return "headers"
	case ModeCompileDB:
		return "compiledb"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "build":
		return ModeBuild, nil
	case "headers":
		return ModeHeaders, nil
	case "compiledb":
		return ModeCompileDB, nil
	default:
		return ModeBuild, fmt.Errorf("%w: mode %q", unreal.ErrInvalidInput, s)
	}
}

// Configurations lists the build configurations offered to the user.
var Configurations = []string{"Development", "DebugGame", "Debug", "Shipping", "Test"}

// Platforms lists the target platforms offered to the user.
var Platforms = []string{"Win64", "Linux", "LinuxArm64", "Mac", "Android", "IOS"}

// Request holds the validated inputs of one command line.
type Request struct {
	Mode          Mode
	Target        string
	Platform      string
	Configuration string

	// EngineRoot is the validated engine root.
	EngineRoot string

	// ProjectFile is the .uproject path; empty for engine-only invocations.
	ProjectFile string

	// OutputDir receives compile_commands.json in ModeCompileDB. Empty
	// means the project directory, or the engine root without a project.
	OutputDir string

	// HostOS is a GOOS value; empty means runtime.GOOS.
	HostOS string

	// WaitMutex makes UnrealBuildTool wait for other running instances.
	WaitMutex bool

	// ExtraArgs are appended verbatim (escaped) after the mode flags.
	ExtraArgs []string
}

// Command is a ready-to-run build tool invocation.
type Command struct {
	// Script is the launcher script path.
	Script string

	// Args are the unescaped arguments.
	Args []string

	// Line is the fully escaped shell command.
	Line string

	// HostOS is the GOOS the command was built for.
	HostOS string
}

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("command: %s %s", e.Field, e.Reason)
}

// Unwrap classifies validation failures as invalid input.
func (e *ValidationError) Unwrap() error {
	return unreal.ErrInvalidInput
}

// Build constructs the command for req.
func Build(req Request) (Command, error) {
	if err := validate(req); err != nil {
		return Command{}, err
	}

	host := req.HostOS
	if host == "" {
		host = runtime.GOOS
	}

	script := ScriptPath(req.EngineRoot, host)
	args := []string{req.Target, req.Platform, req.Configuration}
	if req.ProjectFile != "" {
		args = append(args, projectFlag(host)+req.ProjectFile)
	}

	switch req.Mode {
	case ModeHeaders:
		args = append(args, "-SkipBuild")
	case ModeCompileDB:
		outDir := req.OutputDir
		if outDir == "" {
			outDir = defaultOutputDir(req, host)
		}
		args = append(args,
			"-Mode=GenerateClangDatabase",
			"-OutputDir="+outDir,
			"-game",
			"-engine",
			"-NoHotReloadFromIDE",
		)
	}

	if req.WaitMutex {
		args = append(args, "-WaitMutex")
	}
	args = append(args, req.ExtraArgs...)

	return Command{
		Script: script,
		Args:   args,
		Line:   Join(host, script, args...),
		HostOS: host,
	}, nil
}

func validate(req Request) error {
	switch req.Mode {
	case ModeBuild, ModeHeaders, ModeCompileDB:
	default:
		return &ValidationError{Field: "mode", Reason: "is unknown"}
	}
	fields := []struct{ name, value string }{
		{"target", req.Target},
		{"platform", req.Platform},
		{"configuration", req.Configuration},
		{"engine root", req.EngineRoot},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
	}
	return nil
}

// ScriptPath returns the launcher script for hostOS inside engineRoot.
func ScriptPath(engineRoot, hostOS string) string {
	switch hostOS {
	case "windows":
		return joinPath(hostOS, engineRoot, "Engine", "Build", "BatchFiles", "Build.bat")
	case "darwin":
		return joinPath(hostOS, engineRoot, "Engine", "Build", "BatchFiles", "Mac", "Build.sh")
	default:
		return joinPath(hostOS, engineRoot, "Engine", "Build", "BatchFiles", "Linux", "Build.sh")
	}
}

// HostPlatform returns the UnrealBuildTool platform name of hostOS.
func HostPlatform(hostOS string) string {
	if hostOS == "" {
		hostOS = runtime.GOOS
	}
	switch hostOS {
	case "windows":
		return "Win64"
	case "darwin":
		return "Mac"
	default:
		return "Linux"
	}
}

func projectFlag(hostOS string) string {
	if hostOS == "windows" {
		return "-Project="
	}
	return "-project="
}

func defaultOutputDir(req Request, hostOS string) string {
	if req.ProjectFile == "" {
		return req.EngineRoot
	}
	if i := strings.LastIndexAny(req.ProjectFile, `/\`); i >= 0 {
		if i == 0 {
			return separator(hostOS)
		}
		return req.ProjectFile[:i]
	}
	return "."
}

func separator(hostOS string) string {
	if hostOS == "windows" {
		return `\`
	}
	return "/"
}

// joinPath joins with hostOS's separator so a command built for another
// OS does not depend on the machine running Build.
func joinPath(hostOS, root string, elems ...string) string {
	sep := separator(hostOS)
	root = strings.TrimRight(root, `/\`)
	return root + sep + strings.Join(elems, sep)
}
