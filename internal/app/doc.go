// Package app wires the pieces of a checkgrid session together: it loads the
// site and the check files, builds the dependency graph, runs the cases and
// reports and persists the outcome. It is decoupled from any entrypoint like
// a CLI.
package app
