package unreal

import "fmt"

// Scope selects what an invocation operates on.
type Scope int

const (
	// ScopeProject operates on the nearest .uproject.
	ScopeProject Scope = iota
	// ScopeEngine operates on the engine tree itself; no project argument.
	ScopeEngine
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeProject:
		return "project"
	case ScopeEngine:
		return "engine"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseScope parses "project" or "engine".
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "project":
		return ScopeProject, nil
	case "engine":
		return ScopeEngine, nil
	default:
		return ScopeProject, fmt.Errorf("%w: scope %q (want project or engine)", ErrInvalidInput, s)
	}
}
