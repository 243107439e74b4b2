package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/uebuild/internal/logging"
	"github.com/dshills/uebuild/internal/unreal"
	"github.com/dshills/uebuild/internal/unreal/probe"
	"github.com/dshills/uebuild/internal/unreal/project"
)

// Source identifies which link of the chain produced a candidate.
type Source string

const (
	SourceConfigured  Source = "configured"
	SourceCache       Source = "cache"
	SourceMarker      Source = "marker"
	SourceEnvironment Source = "environment"
	SourceAssociation Source = "association"
	SourceSearch      Source = "search"
	SourcePrompt      Source = "prompt"
)

// Outcome is the typed result of a resolution.
type Outcome int

const (
	// OutcomeNotFound means every link of the chain failed.
	OutcomeNotFound Outcome = iota
	// OutcomeFound means Resolution.Root holds a validated engine root.
	OutcomeFound
	// OutcomeCancelled means the user dismissed the prompt.
	OutcomeCancelled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Rejection records an explicit candidate that failed validation.
type Rejection struct {
	Source Source
	Path   string
	Reason string
}

// Resolution is the result of Locator.Resolve.
type Resolution struct {
	Outcome Outcome

	// Root is the validated engine root when Outcome is OutcomeFound.
	Root string

	// Source is the chain link that produced Root.
	Source Source

	// Rejected lists user-supplied candidates that failed validation.
	Rejected []Rejection

	// Persisted is true when Root was written to the project marker file.
	Persisted bool
}

// Err converts a non-found outcome into the matching taxonomy error.
func (r Resolution) Err() error {
	switch r.Outcome {
	case OutcomeFound:
		return nil
	case OutcomeCancelled:
		return fmt.Errorf("engine root: %w", unreal.ErrCancelled)
	default:
		return fmt.Errorf("%w: engine root", unreal.ErrNotFound)
	}
}

// Prompter asks the user for an engine path. Dismissal must be reported
// as unreal.ErrCancelled.
type Prompter interface {
	PromptEnginePath(ctx context.Context, reason string) (string, error)
}

// Options configures the resolution chain.
type Options struct {
	// ConfiguredPath is an explicit engine root; it outranks everything.
	ConfiguredPath string

	// Marker is the per-project persistence file.
	Marker Marker

	// EnvVar names the environment variable holding a fallback root.
	EnvVar string

	// InstallRoots hold launcher installs named UE_<version>.
	InstallRoots []string

	// SearchDepth bounds the downward search below the start directory.
	SearchDepth int

	// Persist writes resolved roots to the project marker file.
	Persist bool
}

// DefaultOptions returns the default chain configuration.
func DefaultOptions() Options {
	return Options{
		Marker:       DefaultMarker(),
		EnvVar:       "UNREAL_ENGINE_PATH",
		InstallRoots: DefaultInstallRoots(""),
		SearchDepth:  3,
		Persist:      true,
	}
}

// Request carries the per-invocation inputs of a resolution.
type Request struct {
	// StartDir anchors the filesystem search.
	StartDir string

	// Project is the descriptor in scope; nil for engine-only invocations.
	Project *project.Descriptor

	// Scope selects project or engine resolution.
	Scope unreal.Scope
}

// Locator runs the resolution chain. It holds no session state itself.
type Locator struct {
	opts      Options
	prompter  Prompter
	lookupEnv func(string) (string, bool)
	logger    logrus.FieldLogger
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithPrompter sets the prompt used as the last link of the chain.
func WithPrompter(p Prompter) LocatorOption {
	return func(l *Locator) {
		l.prompter = p
	}
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) LocatorOption {
	return func(l *Locator) {
		l.lookupEnv = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) LocatorOption {
	return func(l *Locator) {
		l.logger = logger
	}
}

// NewLocator creates a locator.
func NewLocator(opts Options, options ...LocatorOption) *Locator {
	if opts.Marker.FileName == "" {
		opts.Marker = DefaultMarker()
	}
	if opts.SearchDepth < 0 {
		opts.SearchDepth = 0
	}

	l := &Locator{
		opts:      opts,
		lookupEnv: os.LookupEnv,
		logger:    logging.Discard(),
	}
	for _, opt := range options {
		opt(l)
	}
	l.logger = l.logger.WithField("component", "engine")
	return l
}

// Options returns the chain configuration.
func (l *Locator) Options() Options {
	return l.opts
}

// Resolve walks the chain and returns the first validated engine root.
// The returned error is reserved for failures outside the taxonomy (a
// broken prompt, a cancelled context); not-found and cancellation are
// reported through Resolution.Outcome.
func (l *Locator) Resolve(ctx context.Context, sess *Session, req Request) (Resolution, error) {
	if sess == nil {
		sess = NewSession()
	}
	if req.Scope == unreal.ScopeEngine {
		req.Project = nil
	}

	var res Resolution
	accept := func(root string, src Source) (Resolution, error) {
		res.Outcome = OutcomeFound
		res.Root = root
		res.Source = src
		sess.remember(root, src)
		res.Persisted = l.persist(req.Project, root, src)
		l.logger.WithFields(logrus.Fields{"root": root, "source": src}).Debug("engine root resolved")
		return res, nil
	}
	try := func(candidate string, src Source) (string, bool) {
		if candidate == "" {
			return "", false
		}
		root := Normalize(candidate)
		if Validate(root) {
			return root, true
		}
		res.Rejected = append(res.Rejected, Rejection{Source: src, Path: candidate, Reason: "missing Engine/Build/BatchFiles"})
		l.logger.WithFields(logrus.Fields{"path": candidate, "source": src}).Warn("engine path rejected: missing Engine/Build/BatchFiles")
		return "", false
	}

	if root, ok := try(l.opts.ConfiguredPath, SourceConfigured); ok {
		return accept(root, SourceConfigured)
	}

	if cached, ok := sess.EngineRoot(); ok {
		return accept(cached, SourceCache)
	}

	if req.Project != nil {
		stored, err := l.opts.Marker.Read(req.Project.Dir)
		switch {
		case err == nil:
			if root, ok := try(relativeTo(req.Project.Dir, stored), SourceMarker); ok {
				return accept(root, SourceMarker)
			}
		case errors.Is(err, unreal.ErrNotFound):
		default:
			res.Rejected = append(res.Rejected, Rejection{Source: SourceMarker, Path: l.opts.Marker.Path(req.Project.Dir), Reason: err.Error()})
			l.logger.WithError(err).Warn("ignoring unreadable marker file")
		}
	}

	if l.opts.EnvVar != "" {
		if value, ok := l.lookupEnv(l.opts.EnvVar); ok {
			if root, ok := try(value, SourceEnvironment); ok {
				return accept(root, SourceEnvironment)
			}
		}
	}

	if root, ok := l.fromAssociation(req.Project); ok {
		return accept(root, SourceAssociation)
	}

	if root, ok := l.search(req.StartDir); ok {
		return accept(root, SourceSearch)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if l.prompter == nil {
		res.Outcome = OutcomeNotFound
		return res, nil
	}

	answer, err := l.prompter.PromptEnginePath(ctx, "Unreal Engine root not found. Enter the engine directory:")
	if err != nil {
		if errors.Is(err, unreal.ErrCancelled) {
			res.Outcome = OutcomeCancelled
			return res, nil
		}
		return res, fmt.Errorf("prompt engine path: %w", err)
	}
	if root, ok := try(answer, SourcePrompt); ok {
		return accept(root, SourcePrompt)
	}

	res.Outcome = OutcomeNotFound
	return res, nil
}

// fromAssociation resolves the project's EngineAssociation.
// relativeTo resolves a relative path against dir. Absolute and
// home-relative paths are returned unchanged.
func relativeTo(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(dir, path)
}

func (l *Locator) fromAssociation(proj *project.Descriptor) (string, bool) {
	if proj == nil {
		return "", false
	}
	info, err := proj.Load()
	if err != nil {
		l.logger.WithError(err).Debug("cannot read project descriptor")
		return "", false
	}

	assoc := info.EngineAssociation
	if assoc == "" {
		return "", false
	}

	if project.IsPathAssociation(assoc) {
		candidate := assoc
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(proj.Dir, candidate)
		}
		root := Normalize(candidate)
		return root, Validate(root)
	}

	for _, base := range l.opts.InstallRoots {
		root := Normalize(filepath.Join(probe.ExpandHome(base), "UE_"+assoc))
		if Validate(root) {
			return root, true
		}
	}
	return "", false
}

// search looks for an engine tree above and then below startDir.
func (l *Locator) search(startDir string) (string, bool) {
	if startDir == "" {
		return "", false
	}
	if root, ok := probe.FindUp(startDir, Validate); ok {
		return root, true
	}

	opts := probe.DefaultDownOptions()
	opts.MaxDepth = l.opts.SearchDepth
	return probe.FindDown(startDir, opts, Validate)
}

// persist writes root to the project's marker file when it differs from
// what is stored there.
func (l *Locator) persist(proj *project.Descriptor, root string, src Source) bool {
	if !l.opts.Persist || proj == nil || src == SourceMarker {
		return false
	}
	if stored, err := l.opts.Marker.Read(proj.Dir); err == nil && Normalize(stored) == root {
		return false
	}
	if err := l.opts.Marker.Write(proj.Dir, root); err != nil {
		l.logger.WithError(err).Warn("cannot persist engine root")
		return false
	}
	return true
}

