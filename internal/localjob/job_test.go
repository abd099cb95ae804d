package localjob

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestJob(t *testing.T) {
	ctx := context.Background()

	t.Run("output and exit code", func(t *testing.T) {
		j := New("hello", t.TempDir(), `echo "hello $GREETING"; echo oops >&2; exit 3`, []string{"GREETING=world"})
		require.NoError(t, j.Submit(ctx))
		require.NoError(t, j.Wait(ctx))

		assert.Equal(t, 3, j.ExitCode())
		out, err := os.ReadFile(j.StdoutPath())
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", string(out))
		errOut, err := os.ReadFile(j.StderrPath())
		require.NoError(t, err)
		assert.Equal(t, "oops\n", string(errOut))

		done, err := j.Poll()
		assert.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("not started", func(t *testing.T) {
		j := New("idle", t.TempDir(), "true", nil)
		_, err := j.Poll()
		assert.ErrorIs(t, err, ErrNotStarted)
		assert.ErrorIs(t, j.Wait(ctx), ErrNotStarted)
		assert.ErrorIs(t, j.Cancel(), ErrNotStarted)
		assert.Equal(t, -1, j.ExitCode())
	})

	t.Run("double submit", func(t *testing.T) {
		j := New("twice", t.TempDir(), "true", nil)
		require.NoError(t, j.Submit(ctx))
		assert.Error(t, j.Submit(ctx))
		require.NoError(t, j.Wait(ctx))
	})

	t.Run("poll does not block", func(t *testing.T) {
		j := New("sleep", t.TempDir(), "sleep 5", nil)
		require.NoError(t, j.Submit(ctx))
		defer j.Cancel()

		start := time.Now()
		done, err := j.Poll()
		require.NoError(t, err)
		assert.False(t, done)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("cancel", func(t *testing.T) {
		j := New("sleep", t.TempDir(), "sleep 30", nil)
		require.NoError(t, j.Submit(ctx))
		require.NoError(t, j.Cancel())
		require.NoError(t, j.Wait(ctx))
		assert.NotEqual(t, 0, j.ExitCode())
		assert.NoError(t, j.Cancel(), "cancelling a finished job is a no-op")
	})

	t.Run("cancel kills background children", func(t *testing.T) {
		dir := t.TempDir()
		j := New("spawn", dir, "sleep 30 & echo $! > child.pid; wait", nil)
		require.NoError(t, j.Submit(ctx))

		pidFile := filepath.Join(dir, "child.pid")
		var pid int
		require.Eventually(t, func() bool {
			data, err := os.ReadFile(pidFile)
			if err != nil {
				return false
			}
			pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
			return err == nil
		}, 5*time.Second, 10*time.Millisecond)
		require.True(t, alive(pid))

		require.NoError(t, j.Cancel())
		require.NoError(t, j.Wait(ctx))
		assert.Eventually(t, func() bool { return !alive(pid) }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("wait honours the context", func(t *testing.T) {
		j := New("sleep", t.TempDir(), "sleep 30", nil)
		require.NoError(t, j.Submit(ctx))
		defer j.Cancel()

		wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, j.Wait(wctx), context.DeadlineExceeded)
	})
}

// alive reports whether pid runs. Zombies waiting to be reaped by init are
// reported as dead.
func alive(pid int) bool {
	if unix.Kill(pid, 0) != nil {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return !os.IsNotExist(err)
	}
	// The state follows the parenthesised command name.
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) == 0 || fields[0] != "Z"
}
