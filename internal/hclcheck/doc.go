// Package hclcheck defines checks in HCL files.
//
// Every `check` block becomes one check. Its commands and sanity patterns
// are expressions evaluated once per test case, with the case's partition,
// environment and directories in scope:
//
//	check "hello" {
//	  command         = "echo hello from ${environ.name}"
//	  sanity_patterns = ["hello from ${environ.name}"]
//	}
//
// The job of a check runs `sh -c command` in the stage directory of the case.
package hclcheck
