package resultstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/checkgrid/internal/executor"
	"github.com/vk/checkgrid/internal/resultstore"
	"github.com/vk/checkgrid/internal/testutil"
)

func runSession(t *testing.T) *executor.Runner {
	t.Helper()
	j := testutil.NewJournal()
	cases := testutil.MakeCases(testutil.GenericSystem(0),
		testutil.NewFake(j, "HelloTest"),
		testutil.NewFake(j, "SanityFailureCheck", testutil.FailAt("sanity")),
	)
	runner := executor.NewRunner(executor.NewSerialPolicy(executor.Options{}), executor.WithMaxRetries(1))
	require.NoError(t, runner.RunAll(context.Background(), cases))
	return runner
}

func TestSaveSession(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	store, err := resultstore.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()
	runner := runSession(t)

	// --- Act ---
	require.NoError(t, store.SaveSession(ctx, runner.SessionID(), runner.Stats()))

	// --- Assert ---
	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, runner.SessionID(), sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Runs)
	assert.Equal(t, 2, sessions[0].Cases)
	assert.Equal(t, 1, sessions[0].Failures)
	assert.False(t, sessions[0].CreatedAt.IsZero())

	results, err := store.SessionResults(ctx, runner.SessionID())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, resultstore.Result{
		Run: 0, Check: "HelloTest", Partition: "generic:default", Environ: "builtin", Passed: true,
		Duration: results[0].Duration,
	}, results[0])
	assert.False(t, results[1].Passed)
	assert.Equal(t, "sanity", results[1].FailedStage)
	assert.Equal(t, "SanityFailureCheck failed in sanity", results[1].Error)
	assert.Equal(t, 1, results[2].Run)
	assert.Equal(t, "SanityFailureCheck", results[2].Check)
}

func TestSaveSessionTwice(t *testing.T) {
	ctx := context.Background()
	store, err := resultstore.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()
	runner := runSession(t)

	require.NoError(t, store.SaveSession(ctx, runner.SessionID(), runner.Stats()))
	require.NoError(t, store.SaveSession(ctx, runner.SessionID(), runner.Stats()))

	results, err := store.SessionResults(ctx, runner.SessionID())
	require.NoError(t, err)
	assert.Len(t, results, 3)

	assert.Error(t, store.SaveSession(ctx, "", runner.Stats()))
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	store, err := resultstore.Open(path)
	require.NoError(t, err)
	first := runSession(t)
	require.NoError(t, store.SaveSession(ctx, first.SessionID(), first.Stats()))
	require.NoError(t, store.Close())

	store, err = resultstore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	second := runSession(t)
	require.NoError(t, store.SaveSession(ctx, second.SessionID(), second.Stats()))

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	results, err := store.SessionResults(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, results)
}
