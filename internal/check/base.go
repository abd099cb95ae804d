// Package check provides Base, an embeddable default implementation of the
// testcase.Check capability set.
//
// A concrete check embeds Base, configures it through NewBase and the
// setters, overrides the stages it needs and implements Clone:
//
//	type Hello struct{ check.Base }
//
//	func (h *Hello) Clone() testcase.Check {
//		return &Hello{Base: h.CloneBase()}
//	}
package check

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/vk/checkgrid/internal/testcase"
)

// Base holds the metadata shared by all checks and provides no-op stages.
type Base struct {
	name          string
	validSystems  []string
	validEnvirons []string
	deps          []testcase.Dependency
	local         bool
	prefix        string

	current   *testcase.TestCase
	stageDir  string
	outputDir string
}

// NewBase returns a Base valid on every system and environment.
func NewBase(name string) Base {
	return Base{
		name:          name,
		validSystems:  []string{"*"},
		validEnvirons: []string{"*"},
	}
}

func (b *Base) Name() string { return b.name }
func (b *Base) ValidSystems() []string { return b.validSystems }
func (b *Base) ValidEnvirons() []string { return b.validEnvirons }
func (b *Base) Dependencies() []testcase.Dependency { return b.deps }
func (b *Base) IsLocal() bool { return b.local }
func (b *Base) SetLocal(local bool) { b.local = local }
func (b *Base) OutputDir() string { return b.outputDir }
func (b *Base) StageDir() string { return b.stageDir }

// SetValidSystems replaces the valid-system patterns.
func (b *Base) SetValidSystems(patterns ...string) { b.validSystems = patterns }

// SetValidEnvirons replaces the valid-environment patterns.
func (b *Base) SetValidEnvirons(patterns ...string) { b.validEnvirons = patterns }

// SetPrefix sets the root under which Setup derives the stage and output
// directories. Without a prefix both stay empty.
func (b *Base) SetPrefix(prefix string) { b.prefix = prefix }

// DependsOn declares a dependency on the check named target. envs is only
// used with testcase.DependExact.
func (b *Base) DependsOn(target string, kind testcase.DependencyKind, envs map[string][]string) {
	b.deps = append(b.deps, testcase.Dependency{Target: target, Kind: kind, Envs: envs})
}

// Current returns the case the check is bound to, or nil before Setup.
func (b *Base) Current() *testcase.TestCase { return b.current }

// GetDep returns the dependency named target in environment environ. An
// empty environ selects the environment the check is currently bound to.
func (b *Base) GetDep(target, environ string) (testcase.Check, error) {
	if b.current == nil {
		return nil, testcase.NewDependencyError("cannot resolve dependencies of %s: check is not bound to a test case", b.name)
	}
	return b.current.GetDep(target, environ)
}

// CloneBase returns a deep copy of the metadata with no case bound.
func (b *Base) CloneBase() Base {
	c := Base{
		name:          b.name,
		validSystems:  slices.Clone(b.validSystems),
		validEnvirons: slices.Clone(b.validEnvirons),
		local:         b.local,
		prefix:        b.prefix,
	}
	for _, d := range b.deps {
		envs := make(map[string][]string, len(d.Envs))
		for k, v := range d.Envs {
			envs[k] = slices.Clone(v)
		}
		if d.Envs == nil {
			envs = nil
		}
		c.deps = append(c.deps, testcase.Dependency{Target: d.Target, Kind: d.Kind, Envs: envs})
	}
	return c
}

// Setup binds the check to tc and derives its directories.
func (b *Base) Setup(_ context.Context, tc *testcase.TestCase) error {
	b.current = tc
	if b.prefix != "" {
		p := tc.Partition()
		rel := filepath.Join(p.System, p.Name, tc.Environ().Name, b.name)
		b.stageDir = filepath.Join(b.prefix, "stage", rel)
		b.outputDir = filepath.Join(b.prefix, "output", rel)
	}
	return nil
}

func (b *Base) Compile(context.Context) error { return nil }
func (b *Base) Run(context.Context) error { return nil }

// Poll reports completion immediately; checks with a real job override it.
func (b *Base) Poll(context.Context) (bool, error) { return true, nil }

func (b *Base) Wait(context.Context) error { return nil }
func (b *Base) Cancel(context.Context) error { return nil }
func (b *Base) Sanity(context.Context) error { return nil }
func (b *Base) Performance(context.Context) error { return nil }
func (b *Base) Cleanup(context.Context, bool) error { return nil }
