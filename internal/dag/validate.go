package dag

import (
	"slices"
	"strings"

	"github.com/vk/checkgrid/internal/testcase"
)

// checkGraph is the dependency graph reduced to check names.
type checkGraph struct {
	names []string
	edges map[string][]string
}

func (cg *checkGraph) addNode(name string) {
	if _, ok := cg.edges[name]; ok {
		return
	}
	cg.names = append(cg.names, name)
	cg.edges[name] = nil
}

func (cg *checkGraph) addEdge(from, to string) {
	cg.addNode(from)
	cg.addNode(to)
	if !slices.Contains(cg.edges[from], to) {
		cg.edges[from] = append(cg.edges[from], to)
	}
}

// reduce collapses g to check level. With skipExternal, edges whose target
// is not a member of g are dropped.
func reduce(g *Graph, skipExternal bool) *checkGraph {
	cg := &checkGraph{edges: make(map[string][]string)}
	for _, k := range g.order {
		cg.addNode(k.Check)
		for _, d := range g.deps[k] {
			dk := d.Key()
			if skipExternal && !g.Has(dk) {
				continue
			}
			cg.addEdge(k.Check, dk.Check)
		}
	}
	return cg
}

// walk runs a depth-first traversal over cg following node order. It returns
// the nodes in post-order, so that every node comes after all nodes it
// depends on. When it meets a node that is still on the current path, it
// stops and returns that cycle with the first node repeated at the end.
func (cg *checkGraph) walk() (postorder, cycle []string) {
	done := make(map[string]bool, len(cg.names))
	onPath := make(map[string]int)
	var path []string

	var visit func(n string) []string
	visit = func(n string) []string {
		if i, ok := onPath[n]; ok {
			return append(slices.Clone(path[i:]), n)
		}
		if done[n] {
			return nil
		}
		onPath[n] = len(path)
		path = append(path, n)
		for _, m := range cg.edges[n] {
			if c := visit(m); c != nil {
				return c
			}
		}
		path = path[:len(path)-1]
		delete(onPath, n)
		done[n] = true
		postorder = append(postorder, n)
		return nil
	}

	for _, n := range cg.names {
		if c := visit(n); c != nil {
			return nil, c
		}
	}
	return postorder, nil
}

func cycleError(cycle []string) error {
	return testcase.NewDependencyError("circular dependency found: %s", strings.Join(cycle, "->"))
}

// ValidateDeps fails with a DependencyError if the checks of g depend on each
// other circularly. The error names one cycle as a trace of check names, for
// example "t1->t4->t2->t1". Cycles that only close through different
// environments of the same checks are detected as well.
func ValidateDeps(g *Graph) error {
	if _, cycle := reduce(g, false).walk(); cycle != nil {
		return cycleError(cycle)
	}
	return nil
}
