package dag

import (
	"github.com/vk/checkgrid/internal/testcase"
)

// Toposort linearizes the members of g. All cases of one check are emitted
// together, in insertion order, and a check is emitted only after every check
// it depends on.
//
// With isSubgraph set, edges to cases that are not members of g are treated
// as already satisfied. Otherwise such edges are an error, as is a cycle.
func Toposort(g *Graph, isSubgraph bool) ([]*testcase.TestCase, error) {
	if !isSubgraph {
		for _, k := range g.order {
			for _, d := range g.deps[k] {
				if !g.Has(d.Key()) {
					return nil, testcase.NewDependencyError("dependency %s of %s is not part of the graph", d.Key(), k)
				}
			}
		}
	}

	order, cycle := reduce(g, true).walk()
	if cycle != nil {
		return nil, cycleError(cycle)
	}

	groups := make(map[string][]*testcase.TestCase)
	for _, k := range g.order {
		groups[k.Check] = append(groups[k.Check], g.cases[k])
	}

	out := make([]*testcase.TestCase, 0, g.Len())
	for _, name := range order {
		out = append(out, groups[name]...)
	}
	return out, nil
}
