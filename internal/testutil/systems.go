package testutil

import "github.com/vk/checkgrid/internal/testcase"

// FixtureSystem returns "sys0" with partitions p0 and p1, both offering the
// environments e0 and e1.
func FixtureSystem() *testcase.System {
	return &testcase.System{
		Name: "sys0",
		Partitions: []*testcase.Partition{
			{System: "sys0", Name: "p0", Environs: []string{"e0", "e1"}},
			{System: "sys0", Name: "p1", Environs: []string{"e0", "e1"}},
		},
		Environs: []*testcase.Environ{{Name: "e0"}, {Name: "e1"}},
	}
}

// GenericSystem returns a system with the single partition "generic:default"
// limited to maxJobs concurrent jobs and the single environment "builtin".
func GenericSystem(maxJobs int) *testcase.System {
	return &testcase.System{
		Name: "generic",
		Partitions: []*testcase.Partition{
			{System: "generic", Name: "default", MaxJobs: maxJobs, Environs: []string{"builtin"}},
		},
		Environs: []*testcase.Environ{{Name: "builtin"}},
	}
}
