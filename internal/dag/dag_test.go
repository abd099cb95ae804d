package dag

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/checkgrid/internal/testcase"
	"github.com/vk/checkgrid/internal/testutil"
)

var ctx = context.Background()

func key(check, part, env string) testcase.Key {
	return testcase.Key{Check: check, Partition: "sys0:" + part, Environ: env}
}

// numDeps counts the edges leaving the cases of check.
func numDeps(g *Graph, check string) int {
	n := 0
	for _, c := range g.Cases() {
		if c.Key().Check == check {
			n += len(g.DependenciesOf(c.Key()))
		}
	}
	return n
}

func fixtureChecks(j *testutil.Journal) []testcase.Check {
	return []testcase.Check{
		testutil.NewFake(j, "Test0"),
		testutil.NewFake(j, "Test1_fully", testutil.DependsOn("Test0", testcase.DependFully, nil)),
		testutil.NewFake(j, "Test1_by_env", testutil.DependsOn("Test0", testcase.DependByEnv, nil)),
		testutil.NewFake(j, "Test1_default", testutil.DependsOn("Test0", testcase.DependByEnv, nil)),
		testutil.NewFake(j, "Test1_exact", testutil.DependsOn("Test0", testcase.DependExact, map[string][]string{
			"e0": {"e0", "e1"},
			"e1": {"e1"},
		})),
	}
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Cases())
	assert.Zero(t, g.NumEdges())
}

func TestBuildDeps(t *testing.T) {
	t.Run("edge counts per dependency kind", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(), fixtureChecks(j)...)

		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)
		assert.Equal(t, 20, g.Len())

		assert.Equal(t, 0, numDeps(g, "Test0"))
		assert.Equal(t, 8, numDeps(g, "Test1_fully"))
		assert.Equal(t, 4, numDeps(g, "Test1_by_env"))
		assert.Equal(t, 4, numDeps(g, "Test1_default"))
		assert.Equal(t, 6, numDeps(g, "Test1_exact"))
	})

	t.Run("exact mapping", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(), fixtureChecks(j)...)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)

		var got []testcase.Key
		for _, d := range g.DependenciesOf(key("Test1_exact", "p1", "e0")) {
			got = append(got, d.Key())
		}
		assert.Equal(t, []testcase.Key{key("Test0", "p1", "e0"), key("Test0", "p1", "e1")}, got)

		deps := g.DependenciesOf(key("Test1_exact", "p1", "e1"))
		require.Len(t, deps, 1)
		assert.Equal(t, key("Test0", "p1", "e1"), deps[0].Key())
	})

	t.Run("in-degree", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(), fixtureChecks(j)...)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)

		assert.Equal(t, 5, g.InDegree(key("Test0", "p0", "e0")))
		assert.Equal(t, 6, g.InDegree(key("Test0", "p0", "e1")))
		assert.Equal(t, 5, g.InDegree(key("Test0", "p1", "e0")))
		assert.Equal(t, 0, g.InDegree(key("Test1_fully", "p0", "e0")))

		c, ok := g.Case(key("Test0", "p0", "e1"))
		require.True(t, ok)
		assert.Equal(t, 6, c.NumDependents())
		assert.Len(t, c.Deps(), 0)
	})

	t.Run("empty input", func(t *testing.T) {
		g, err := BuildDeps(ctx, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, g.Len())
		assert.NoError(t, ValidateDeps(g))

		order, err := Toposort(g, false)
		require.NoError(t, err)
		assert.Empty(t, order)
	})

	t.Run("duplicate declarations are merged", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "Test0"),
			testutil.NewFake(j, "Test1",
				testutil.DependsOn("Test0", testcase.DependByEnv, nil),
				testutil.DependsOn("Test0", testcase.DependFully, nil),
			),
		)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)
		assert.Equal(t, 8, numDeps(g, "Test1"))
	})
}

func TestBuildDepsErrors(t *testing.T) {
	kinds := []testcase.DependencyKind{testcase.DependFully, testcase.DependByEnv, testcase.DependExact}
	for _, kind := range kinds {
		t.Run("unknown target check "+kind.String(), func(t *testing.T) {
			j := testutil.NewJournal()
			cases := testutil.MakeCases(testutil.FixtureSystem(),
				testutil.NewFake(j, "Test0"),
				testutil.NewFake(j, "Test1", testutil.DependsOn("TestX", kind, map[string][]string{"e0": {"e0"}})),
			)
			_, err := BuildDeps(ctx, cases, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, testcase.ErrDependency)
			assert.ErrorContains(t, err, "TestX")
		})
	}

	t.Run("unknown target environment", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "Test0"),
			testutil.NewFake(j, "Test1", testutil.DependsOn("Test0", testcase.DependExact, map[string][]string{"e0": {"eX"}})),
		)
		_, err := BuildDeps(ctx, cases, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, testcase.ErrDependency)
		assert.ErrorContains(t, err, "eX")
	})

	t.Run("unknown source environment is ignored", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "Test0"),
			testutil.NewFake(j, "Test1_default", testutil.DependsOn("Test0", testcase.DependByEnv, nil)),
			testutil.NewFake(j, "Test1", testutil.DependsOn("Test0", testcase.DependExact, map[string][]string{"eX": {"e0"}})),
		)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, numDeps(g, "Test1_default"))
		assert.Equal(t, 0, numDeps(g, "Test1"))
	})
}

func TestGetDep(t *testing.T) {
	j := testutil.NewJournal()
	cases := testutil.MakeCases(testutil.FixtureSystem(), fixtureChecks(j)...)

	find := func(k testcase.Key) *testcase.TestCase {
		for _, c := range cases {
			if c.Key() == k {
				return c
			}
		}
		t.Fatalf("case %s not generated", k)
		return nil
	}
	checkE0 := find(key("Test1_exact", "p0", "e0"))
	checkE1 := find(key("Test1_exact", "p0", "e1"))

	fakeE0 := checkE0.Check().(*testutil.Fake)
	_, err := fakeE0.GetDep("Test0", "e0")
	require.Error(t, err, "no case is bound before setup")

	_, err = BuildDeps(ctx, cases, nil)
	require.NoError(t, err)

	require.NoError(t, fakeE0.Setup(ctx, checkE0))
	dep, err := fakeE0.GetDep("Test0", "e0")
	require.NoError(t, err)
	assert.Equal(t, "Test0", dep.Name())
	_, err = fakeE0.GetDep("Test0", "e1")
	assert.NoError(t, err)
	_, err = fakeE0.GetDep("Test0", "")
	assert.NoError(t, err)

	_, err = fakeE0.GetDep("TestX", "e0")
	assert.ErrorIs(t, err, testcase.ErrDependency)
	_, err = fakeE0.GetDep("Test0", "eX")
	assert.ErrorIs(t, err, testcase.ErrDependency)

	fakeE1 := checkE1.Check().(*testutil.Fake)
	require.NoError(t, fakeE1.Setup(ctx, checkE1))
	_, err = fakeE1.GetDep("Test0", "e0")
	assert.ErrorIs(t, err, testcase.ErrDependency, "e1 only depends on e1")
}

func assertCycle(t *testing.T, err error, rotations ...string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, testcase.ErrDependency)
	for _, r := range rotations {
		if strings.HasSuffix(err.Error(), r) {
			return
		}
	}
	t.Errorf("error %q does not name any of the cycles %v", err, rotations)
}

func TestValidateDeps(t *testing.T) {
	t.Run("acyclic graph", func(t *testing.T) {
		j := testutil.NewJournal()
		g, err := BuildDeps(ctx, testutil.MakeCases(testutil.FixtureSystem(), fixtureChecks(j)...), nil)
		require.NoError(t, err)
		assert.NoError(t, ValidateDeps(g))
	})

	t.Run("cycle through several checks", func(t *testing.T) {
		//       t0
		//       ^
		//       |
		//   +-->t1<--+
		//   |   |    |
		//   t2  |    t3
		//   ^   v    ^
		//   +---t4---+
		j := testutil.NewJournal()
		byEnv := func(target string) testutil.FakeOption {
			return testutil.DependsOn(target, testcase.DependByEnv, nil)
		}
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "t0"),
			testutil.NewFake(j, "t1", byEnv("t0"), byEnv("t4")),
			testutil.NewFake(j, "t2", byEnv("t1")),
			testutil.NewFake(j, "t3", byEnv("t1")),
			testutil.NewFake(j, "t4", byEnv("t2"), byEnv("t3")),
		)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)

		assertCycle(t, ValidateDeps(g),
			"t1->t4->t2->t1", "t2->t1->t4->t2", "t4->t2->t1->t4",
			"t1->t4->t3->t1", "t4->t3->t1->t4", "t3->t1->t4->t3",
		)
	})

	t.Run("cycle across disjoint environments", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "t0", testutil.DependsOn("t1", testcase.DependExact, map[string][]string{"e1": {"e1"}})),
			testutil.NewFake(j, "t1", testutil.DependsOn("t0", testcase.DependExact, map[string][]string{"e0": {"e0"}})),
		)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)

		assertCycle(t, ValidateDeps(g), "t1->t0->t1", "t0->t1->t0")
	})

	t.Run("self dependency", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "t0", testutil.DependsOn("t0", testcase.DependExact, map[string][]string{"e0": {"e1"}})),
		)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)
		assertCycle(t, ValidateDeps(g), "t0->t0")
	})
}

// assertTopoOrder verifies that order groups cases by check and places every
// dependency inside g before its dependents.
func assertTopoOrder(t *testing.T, g *Graph, order []*testcase.TestCase) {
	t.Helper()
	require.Len(t, order, g.Len())

	pos := make(map[testcase.Key]int, len(order))
	for i, c := range order {
		pos[c.Key()] = i
	}
	for _, c := range order {
		for _, d := range g.DependenciesOf(c.Key()) {
			if !g.Has(d.Key()) {
				continue
			}
			assert.Less(t, pos[d.Key()], pos[c.Key()], "%s must come before %s", d, c)
		}
	}

	var groups []string
	for _, c := range order {
		name := c.Key().Check
		if len(groups) == 0 || groups[len(groups)-1] != name {
			assert.NotContains(t, groups, name, "cases of %s are not contiguous", name)
			groups = append(groups, name)
		}
	}
}

func diamondChecks(j *testutil.Journal) []testcase.Check {
	//        t0 <-- t1 <-- t2 <---+
	//        ^                    |
	//        +----- t3 <-- t4 ----+
	//                       t5 --> t6 (exact, fully)
	return []testcase.Check{
		testutil.NewFake(j, "t2", testutil.DependsOn("t1", testcase.DependByEnv, nil)),
		testutil.NewFake(j, "t5", testutil.DependsOn("t6", testcase.DependExact, map[string][]string{"e0": {"e1"}})),
		testutil.NewFake(j, "t0"),
		testutil.NewFake(j, "t4",
			testutil.DependsOn("t3", testcase.DependFully, nil),
			testutil.DependsOn("t2", testcase.DependByEnv, nil),
		),
		testutil.NewFake(j, "t1", testutil.DependsOn("t0", testcase.DependFully, nil)),
		testutil.NewFake(j, "t3", testutil.DependsOn("t0", testcase.DependByEnv, nil)),
		testutil.NewFake(j, "t6", testutil.DependsOn("t0", testcase.DependFully, nil)),
	}
}

func TestToposort(t *testing.T) {
	t.Run("full graph", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(), diamondChecks(j)...)
		g, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)
		require.NoError(t, ValidateDeps(g))

		order, err := Toposort(g, false)
		require.NoError(t, err)
		assertTopoOrder(t, g, order)
	})

	t.Run("subgraph", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(), diamondChecks(j)...)
		full, err := BuildDeps(ctx, cases, nil)
		require.NoError(t, err)

		var sub []*testcase.TestCase
		for _, c := range cases {
			if slices.Contains([]string{"t2", "t3", "t4"}, c.Key().Check) {
				sub = append(sub, c)
			}
		}
		g, err := BuildDeps(ctx, sub, full)
		require.NoError(t, err)
		assert.Equal(t, len(sub), g.Len())
		assert.False(t, g.Has(key("t1", "p0", "e0")))

		_, err = Toposort(g, false)
		assert.ErrorIs(t, err, testcase.ErrDependency, "edges leaving the graph must be rejected")

		order, err := Toposort(g, true)
		require.NoError(t, err)
		assertTopoOrder(t, g, order)
		assert.Equal(t, "t4", order[len(order)-1].Key().Check)
	})

	t.Run("subgraph without base is unresolvable", func(t *testing.T) {
		j := testutil.NewJournal()
		cases := testutil.MakeCases(testutil.FixtureSystem(),
			testutil.NewFake(j, "t1", testutil.DependsOn("t0", testcase.DependByEnv, nil)),
		)
		_, err := BuildDeps(ctx, cases, nil)
		assert.ErrorIs(t, err, testcase.ErrDependency)
	})
}
