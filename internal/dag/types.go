package dag

import "github.com/vk/checkgrid/internal/testcase"

// Graph maps each test case to the cases it depends on. Keys keep their
// insertion order so that every traversal is deterministic.
type Graph struct {
	// order lists the member keys in insertion order.
	order []testcase.Key
	// cases stores the member cases by key.
	cases map[testcase.Key]*testcase.TestCase
	// deps holds the de-duplicated dependency list of each member. Targets
	// may lie outside the graph when it was built against a base graph.
	deps map[testcase.Key][]*testcase.TestCase
	// indegree counts the edges pointing at a key, members or not.
	indegree map[testcase.Key]int
}
