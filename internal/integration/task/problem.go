package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ProblemSeverity indicates the severity of a problem.
type ProblemSeverity string

const (
	// ProblemSeverityError is an error.
	ProblemSeverityError ProblemSeverity = "error"
	// ProblemSeverityWarning is a warning.
	ProblemSeverityWarning ProblemSeverity = "warning"
	// ProblemSeverityInfo is informational.
	ProblemSeverityInfo ProblemSeverity = "info"
)

// Problem is a compiler or build tool diagnostic found in output.
type Problem struct {
	File     string
	Line     int
	Column   int
	Severity ProblemSeverity
	Code     string
	Message  string

	// Source is the owner of the matcher that produced the problem.
	Source string
}

// String formats the problem as file:line:col: severity: message.
func (p Problem) String() string {
	var b strings.Builder
	if p.File != "" {
		b.WriteString(p.File)
		if p.Line > 0 {
			fmt.Fprintf(&b, ":%d", p.Line)
			if p.Column > 0 {
				fmt.Fprintf(&b, ":%d", p.Column)
			}
		}
		b.WriteString(": ")
	}
	b.WriteString(string(p.Severity))
	if p.Code != "" {
		b.WriteString(" " + p.Code)
	}
	b.WriteString(": " + p.Message)
	return b.String()
}

// ProblemPattern maps regex capture groups (1-based, 0 to skip) to
// problem fields.
type ProblemPattern struct {
	Pattern  string
	File     int
	Line     int
	Column   int
	Severity int
	Code     int
	Message  int

	// DefaultSeverity is used when Severity is 0.
	DefaultSeverity ProblemSeverity
}

// ProblemMatcherDefinition defines a named problem matcher.
type ProblemMatcherDefinition struct {
	Name     string
	Owner    string
	Patterns []ProblemPattern
}

// CompiledMatcher is a compiled problem matcher. Patterns are tried in
// definition order.
type CompiledMatcher struct {
	def      ProblemMatcherDefinition
	patterns []*compiledPattern
}

type compiledPattern struct {
	regex   *regexp.Regexp
	pattern ProblemPattern
}

// Match attempts to match a line and extract a problem.
func (m *CompiledMatcher) Match(line string) (Problem, bool) {
	for _, p := range m.patterns {
		matches := p.regex.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		group := func(i int) string {
			if i > 0 && i < len(matches) {
				return matches[i]
			}
			return ""
		}
		number := func(i int) int {
			n, _ := strconv.Atoi(group(i))
			return n
		}

		problem := Problem{
			File:    strings.TrimSpace(group(p.pattern.File)),
			Line:    number(p.pattern.Line),
			Column:  number(p.pattern.Column),
			Code:    group(p.pattern.Code),
			Message: strings.TrimSpace(group(p.pattern.Message)),
			Source:  m.def.Owner,
		}
		if s := group(p.pattern.Severity); s != "" {
			problem.Severity = parseSeverity(s)
		} else {
			problem.Severity = p.pattern.DefaultSeverity
			if problem.Severity == "" {
				problem.Severity = ProblemSeverityError
			}
		}
		return problem, true
	}
	return Problem{}, false
}

func parseSeverity(s string) ProblemSeverity {
	switch strings.ToLower(s) {
	case "error", "fatal", "fatal error":
		return ProblemSeverityError
	case "warning", "warn":
		return ProblemSeverityWarning
	case "info", "note", "display":
		return ProblemSeverityInfo
	default:
		return ProblemSeverityError
	}
}

// ProblemMatcher is a registry of named matchers.
type ProblemMatcher struct {
	matchers map[string]*CompiledMatcher
	order    []string
	mu       sync.RWMutex
}

// NewProblemMatcher creates a registry with the built-in matchers.
func NewProblemMatcher() *ProblemMatcher {
	pm := &ProblemMatcher{
		matchers: make(map[string]*CompiledMatcher),
	}
	pm.registerBuiltinMatchers()
	return pm
}

// Register compiles and registers a matcher definition, replacing any
// matcher with the same name.
func (pm *ProblemMatcher) Register(def ProblemMatcherDefinition) error {
	compiled := &CompiledMatcher{
		def:      def,
		patterns: make([]*compiledPattern, 0, len(def.Patterns)),
	}
	for _, p := range def.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("problem matcher %s: %w", def.Name, err)
		}
		compiled.patterns = append(compiled.patterns, &compiledPattern{regex: re, pattern: p})
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, exists := pm.matchers[def.Name]; !exists {
		pm.order = append(pm.order, def.Name)
	}
	pm.matchers[def.Name] = compiled
	return nil
}

// GetMatcher returns a compiled matcher by name, or nil.
func (pm *ProblemMatcher) GetMatcher(name string) *CompiledMatcher {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.matchers[name]
}

// ListMatchers returns the registered names in registration order.
func (pm *ProblemMatcher) ListMatchers() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return append([]string(nil), pm.order...)
}

// MatchLine tries every matcher in registration order.
func (pm *ProblemMatcher) MatchLine(line string) (Problem, string, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, name := range pm.order {
		if problem, ok := pm.matchers[name].Match(line); ok {
			return problem, name, true
		}
	}
	return Problem{}, "", false
}

var (
	clangPattern = ProblemPattern{
		// /p/Source/G/A.cpp:12:5: error: use of undeclared identifier 'x'
		Pattern:  `^(.+?):(\d+):(\d+):\s*(fatal error|error|warning|note):\s*(.+)$`,
		File:     1,
		Line:     2,
		Column:   3,
		Severity: 4,
		Message:  5,
	}
	msvcPattern = ProblemPattern{
		// D:\p\Source\G\A.cpp(12,5): error C2065: 'x': undeclared identifier
		Pattern:  `^\s*(.+?)\((\d+)(?:,(\d+))?\)\s*:\s*(fatal error|error|warning)\s+([A-Z]+\d+)\s*:\s*(.+)$`,
		File:     1,
		Line:     2,
		Column:   3,
		Severity: 4,
		Code:     5,
		Message:  6,
	}
	ubtPattern = ProblemPattern{
		// ERROR: Could not find definition for module 'Foo'
		// LogInit: Warning: Incompatible or missing module
		Pattern:  `^(?:[A-Za-z]+:\s+)?(ERROR|Error|WARNING|Warning):\s+(.+)$`,
		Severity: 1,
		Message:  2,
	}
)

func (pm *ProblemMatcher) registerBuiltinMatchers() {
	_ = pm.Register(ProblemMatcherDefinition{
		Name:     "$unreal",
		Owner:    "unreal",
		Patterns: []ProblemPattern{clangPattern, msvcPattern, ubtPattern},
	})
	_ = pm.Register(ProblemMatcherDefinition{
		Name:     "$clang",
		Owner:    "clang",
		Patterns: []ProblemPattern{clangPattern},
	})
	_ = pm.Register(ProblemMatcherDefinition{
		Name:     "$msvc",
		Owner:    "msvc",
		Patterns: []ProblemPattern{msvcPattern},
	})
	_ = pm.Register(ProblemMatcherDefinition{
		Name:     "$ubt",
		Owner:    "ubt",
		Patterns: []ProblemPattern{ubtPattern},
	})
}
