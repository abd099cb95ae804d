package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/vk/checkgrid/internal/testcase"
	"github.com/vk/checkgrid/internal/testutil"
)

// runFakes runs a passing check "good" and a check "bad" failing its
// sanity stage on the generic system, reporting events to l.
func runFakes(t *testing.T, l executor.TaskEventListener) *executor.Stats {
	t.Helper()
	j := testutil.NewJournal()
	checks := []testcase.Check{
		testutil.NewFake(j, "good"),
		testutil.NewFake(j, "bad", testutil.FailAt("sanity")),
	}
	cases := testcase.Generate(checks, testutil.GenericSystem(0), testcase.GenerateOptions{})

	policy := executor.NewSerialPolicy(executor.Options{})
	policy.AddListener(l)
	runner := executor.NewRunner(policy)
	require.NoError(t, runner.RunAll(context.Background(), cases))
	return runner.Stats()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
