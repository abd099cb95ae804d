// Package dag builds the dependency graph of test cases, validates it and
// linearizes it for execution.
//
// The graph is an adjacency mapping keyed by testcase.Key, with edges
// pointing from a dependent case to the cases it depends on. Cycle detection
// and ordering work on the graph reduced to check level, since every case of
// a check is scheduled as one contiguous group.
package dag
