package testcase

import "strings"

// GenerateOptions controls the filters applied by Generate.
type GenerateOptions struct {
	// SkipSystemCheck generates cases for every partition regardless of the
	// check's valid systems.
	SkipSystemCheck bool
	// SkipEnvironCheck generates cases for every environment of a partition
	// regardless of the check's valid environments.
	SkipEnvironCheck bool
}

// Generate expands checks into test cases on the partitions and environments
// of sys. Cases are ordered by check, then partition, then environment, and
// each case owns its own clone of the check.
func Generate(checks []Check, sys *System, opts GenerateOptions) []*TestCase {
	var cases []*TestCase
	for _, c := range checks {
		for _, p := range sys.Partitions {
			if !opts.SkipSystemCheck && !SupportsPartition(c.ValidSystems(), p) {
				continue
			}
			for _, ename := range p.Environs {
				if !opts.SkipEnvironCheck && !SupportsEnviron(c.ValidEnvirons(), ename) {
					continue
				}
				env, ok := sys.Environ(ename)
				if !ok {
					env = &Environ{Name: ename}
				}
				cases = append(cases, New(c.Clone(), p, env))
			}
		}
	}
	return cases
}

// SupportsPartition reports whether any of the valid-system patterns selects
// partition p. Patterns are "*", "sys", "sys:part" and their wildcard
// combinations "*:*", "sys:*" and "*:part".
func SupportsPartition(patterns []string, p *Partition) bool {
	for _, pat := range patterns {
		sysPat, partPat, hasPart := strings.Cut(pat, ":")
		if !hasPart {
			if pat == "*" || pat == p.System {
				return true
			}
			continue
		}
		if (sysPat == "*" || sysPat == p.System) && (partPat == "*" || partPat == p.Name) {
			return true
		}
	}
	return false
}

// SupportsEnviron reports whether any of the valid-environ patterns selects
// the environment named env.
func SupportsEnviron(patterns []string, env string) bool {
	for _, pat := range patterns {
		if pat == "*" || pat == env {
			return true
		}
	}
	return false
}
