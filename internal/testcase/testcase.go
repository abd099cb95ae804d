package testcase

import "fmt"

// Key identifies a test case by value. Two cases with the same key are the
// same case, regardless of the check instance they carry.
type Key struct {
	Check     string
	Partition string
	Environ   string
}

// String renders the key as "check@system:partition+environ".
func (k Key) String() string {
	return fmt.Sprintf("%s@%s+%s", k.Check, k.Partition, k.Environ)
}

// TestCase is a check bound to a partition and an environment.
type TestCase struct {
	check     Check
	partition *Partition
	environ   *Environ

	// deps are the cases this case depends on, filled in by the graph builder.
	deps []*TestCase
	// numDependents is the in-degree of the case in its dependency graph.
	numDependents int
}

// New creates a test case. The check is used as given; callers that share a
// check between cases must clone it first.
func New(check Check, partition *Partition, environ *Environ) *TestCase {
	return &TestCase{
		check:     check,
		partition: partition,
		environ:   environ,
	}
}

func (c *TestCase) Check() Check { return c.check }
func (c *TestCase) Partition() *Partition { return c.partition }
func (c *TestCase) Environ() *Environ { return c.environ }
func (c *TestCase) Deps() []*TestCase { return c.deps }
func (c *TestCase) NumDependents() int { return c.numDependents }
func (c *TestCase) SetDeps(deps []*TestCase) { c.deps = deps }
func (c *TestCase) SetNumDependents(n int) { c.numDependents = n }

// Key returns the value identity of the case.
func (c *TestCase) Key() Key {
	return Key{
		Check:     c.check.Name(),
		Partition: c.partition.FullName(),
		Environ:   c.environ.Name,
	}
}

// Equal reports whether both cases have the same key.
func (c *TestCase) Equal(other *TestCase) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Key() == other.Key()
}

func (c *TestCase) String() string {
	return c.Key().String()
}

// Clone returns a value-equal case holding a fresh copy of the check. The
// dependency list is copied shallowly; RelinkDeps can redirect it.
func (c *TestCase) Clone() *TestCase {
	deps := make([]*TestCase, len(c.deps))
	copy(deps, c.deps)
	return &TestCase{
		check:         c.check.Clone(),
		partition:     c.partition,
		environ:       c.environ,
		deps:          deps,
		numDependents: c.numDependents,
	}
}

// RelinkDeps replaces every dependency with the case returned by latest for
// its key. Dependencies for which latest returns nil are kept.
func (c *TestCase) RelinkDeps(latest func(Key) *TestCase) {
	for i, d := range c.deps {
		if nd := latest(d.Key()); nd != nil {
			c.deps[i] = nd
		}
	}
}

// GetDep returns the check of the dependency named checkName bound to
// environment envName. An empty envName selects the case's own environment.
func (c *TestCase) GetDep(checkName, envName string) (Check, error) {
	if envName == "" {
		envName = c.environ.Name
	}
	for _, d := range c.deps {
		if d.check.Name() == checkName && d.environ.Name == envName {
			return d.check, nil
		}
	}
	return nil, newDependencyError("could not resolve dependency to (%s, %s) from %s", checkName, envName, c)
}
