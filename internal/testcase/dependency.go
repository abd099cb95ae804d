package testcase

import (
	"fmt"
	"strings"
)

// DependencyKind selects how a check-level dependency expands into
// case-level edges.
type DependencyKind int

const (
	// DependByEnv links each environment to the identically named
	// environment of the target check.
	DependByEnv DependencyKind = iota
	// DependFully links every environment to every environment of the target.
	DependFully
	// DependExact links environments through an explicit mapping.
	DependExact
)

func (k DependencyKind) String() string {
	switch k {
	case DependByEnv:
		return "by_env"
	case DependFully:
		return "fully"
	case DependExact:
		return "exact"
	default:
		return fmt.Sprintf("DependencyKind(%d)", int(k))
	}
}

// ParseDependencyKind converts a textual kind into a DependencyKind. An
// empty string selects DependByEnv.
func ParseDependencyKind(s string) (DependencyKind, error) {
	switch strings.ToLower(s) {
	case "", "by_env":
		return DependByEnv, nil
	case "fully":
		return DependFully, nil
	case "exact":
		return DependExact, nil
	default:
		return 0, fmt.Errorf("unknown dependency kind %q: must be one of 'by_env', 'fully', 'exact'", s)
	}
}

// Dependency is a dependency declared by a check on another check.
type Dependency struct {
	Target string
	Kind   DependencyKind
	// Envs maps a source environment to its target environments. Only used
	// with DependExact.
	Envs map[string][]string
}

// TargetEnvs resolves the target environments of the dependency for source
// environment env. all lists the environments the target check was generated
// for and is only consulted by DependFully. A nil result means the
// dependency does not apply to env.
func (d Dependency) TargetEnvs(env string, all []string) []string {
	switch d.Kind {
	case DependFully:
		return all
	case DependExact:
		return d.Envs[env]
	default:
		return []string{env}
	}
}
