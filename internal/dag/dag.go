package dag

import "github.com/vk/checkgrid/internal/testcase"

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		cases:    make(map[testcase.Key]*testcase.TestCase),
		deps:     make(map[testcase.Key][]*testcase.TestCase),
		indegree: make(map[testcase.Key]int),
	}
}

// addCase adds c as a member. Adding a key twice keeps the first case.
func (g *Graph) addCase(c *testcase.TestCase) bool {
	k := c.Key()
	if _, ok := g.cases[k]; ok {
		return false
	}
	g.order = append(g.order, k)
	g.cases[k] = c
	return true
}

// addEdge records that the member from depends on to. Duplicate edges are
// ignored.
func (g *Graph) addEdge(from testcase.Key, to *testcase.TestCase) {
	tk := to.Key()
	for _, d := range g.deps[from] {
		if d.Key() == tk {
			return
		}
	}
	g.deps[from] = append(g.deps[from], to)
	g.indegree[tk]++
}

// Len returns the number of member cases.
func (g *Graph) Len() int {
	return len(g.order)
}

// Cases returns the member cases in insertion order.
func (g *Graph) Cases() []*testcase.TestCase {
	out := make([]*testcase.TestCase, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.cases[k])
	}
	return out
}

// Case returns the member case stored under k.
func (g *Graph) Case(k testcase.Key) (*testcase.TestCase, bool) {
	c, ok := g.cases[k]
	return c, ok
}

// Has reports whether k is a member of the graph.
func (g *Graph) Has(k testcase.Key) bool {
	_, ok := g.cases[k]
	return ok
}

// DependenciesOf returns the cases k depends on.
func (g *Graph) DependenciesOf(k testcase.Key) []*testcase.TestCase {
	return g.deps[k]
}

// InDegree returns the number of edges pointing at k.
func (g *Graph) InDegree(k testcase.Key) int {
	return g.indegree[k]
}

// NumEdges returns the total number of edges of the graph.
func (g *Graph) NumEdges() int {
	n := 0
	for _, deps := range g.deps {
		n += len(deps)
	}
	return n
}
