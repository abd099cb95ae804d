package dag

import (
	"context"

	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/testcase"
)

// BuildDeps resolves the dependencies declared by the checks of cases into
// case-level edges and returns the resulting graph.
//
// Targets are looked up among cases and, when base is given, among the
// members of base, so that a subgraph can be built against a larger set of
// cases. Only cases becomes members of the new graph. Every member gets its
// dependency list and in-degree set.
//
// An unknown target check, or an unknown target environment, is a
// DependencyError. A source environment that no case was generated for is
// not an error; that part of the declaration is simply unused.
func BuildDeps(ctx context.Context, cases []*testcase.TestCase, base *Graph) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("BuildDeps: Starting graph construction.", "cases", len(cases))

	g := New()
	for _, c := range cases {
		g.addCase(c)
	}

	// First pass: index every case that may be the target of an edge.
	idx := newCaseIndex()
	for _, c := range g.Cases() {
		idx.add(c)
	}
	if base != nil {
		for _, c := range base.Cases() {
			idx.add(c)
		}
	}
	logger.Debug("BuildDeps: Index complete.", "checks", len(idx.checks))

	// Second pass: resolve declarations into edges.
	for _, k := range g.order {
		c := g.cases[k]
		if err := g.resolve(c, idx); err != nil {
			return nil, err
		}
	}
	logger.Debug("BuildDeps: Edge resolution complete.", "edges", g.NumEdges())

	// Third pass: publish dependencies and in-degrees on the members.
	for _, k := range g.order {
		c := g.cases[k]
		c.SetDeps(append([]*testcase.TestCase(nil), g.deps[k]...))
		c.SetNumDependents(g.indegree[k])
	}

	logger.Debug("BuildDeps: Graph construction successful.", "nodes", g.Len())
	return g, nil
}

// resolve adds the edges declared by the check of c.
func (g *Graph) resolve(c *testcase.TestCase, idx *caseIndex) error {
	from := c.Key()
	for _, dep := range c.Check().Dependencies() {
		if _, ok := idx.checks[dep.Target]; !ok {
			return testcase.NewDependencyError("could not resolve dependency of %s: unknown check %q", from, dep.Target)
		}
		part := from.Partition
		available := idx.envs[partKey{dep.Target, part}]
		for _, tenv := range dep.TargetEnvs(from.Environ, available) {
			to := testcase.Key{Check: dep.Target, Partition: part, Environ: tenv}
			target, ok := idx.byKey[to]
			if !ok {
				return testcase.NewDependencyError("could not resolve dependency %s -> %s: no such test case", from, to)
			}
			g.addEdge(from, target)
		}
	}
	return nil
}

type partKey struct {
	check     string
	partition string
}

// caseIndex answers the lookups needed while resolving declarations.
type caseIndex struct {
	checks map[string]struct{}
	envs   map[partKey][]string
	byKey  map[testcase.Key]*testcase.TestCase
}

func newCaseIndex() *caseIndex {
	return &caseIndex{
		checks: make(map[string]struct{}),
		envs:   make(map[partKey][]string),
		byKey:  make(map[testcase.Key]*testcase.TestCase),
	}
}

func (idx *caseIndex) add(c *testcase.TestCase) {
	k := c.Key()
	if _, ok := idx.byKey[k]; ok {
		return
	}
	idx.byKey[k] = c
	idx.checks[k.Check] = struct{}{}
	pk := partKey{k.Check, k.Partition}
	idx.envs[pk] = append(idx.envs[pk], k.Environ)
}
