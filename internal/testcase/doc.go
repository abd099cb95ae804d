// Package testcase defines the unit of scheduling: a check bound to one
// system partition and one programming environment. It also holds the
// capability set that checks expose to the scheduler and the case-generation
// step that expands checks into concrete cases.
package testcase
