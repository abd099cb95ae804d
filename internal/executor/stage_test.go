package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStage(t *testing.T) {
	want := []Stage{StageSetup, StageCompile, StageRun, StageSanity, StagePerformance, StageCleanup, StageSuccess}

	s := StageInit
	for _, w := range want {
		next, ok := nextStage(s)
		assert.True(t, ok, "transition out of %s", s)
		assert.Equal(t, w, next)
		s = next
	}

	_, ok := nextStage(StageSuccess)
	assert.False(t, ok)
	assert.True(t, StageSuccess.Terminal())
	assert.False(t, StageCleanup.Terminal())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "setup", StageSetup.String())
	assert.Equal(t, "performance", StagePerformance.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}

func TestAbortCause(t *testing.T) {
	t.Run("task error on a live context", func(t *testing.T) {
		assert.Nil(t, abortCause(context.Background(), errors.New("sanity failed")))
	})

	t.Run("force exit wins", func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(ErrInterrupted)
		err := abortCause(ctx, &ForceExitError{Signal: "TERM"})
		assert.EqualError(t, err, "received TERM signal")
	})

	t.Run("interrupt", func(t *testing.T) {
		err := abortCause(context.Background(), ErrInterrupted)
		assert.ErrorIs(t, err, ErrInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancelCause(context.Background())
		cause := errors.New("shutting down")
		cancel(cause)
		assert.Equal(t, cause, abortCause(ctx, errors.New("job lost")))
	})
}

func TestPollRate(t *testing.T) {
	r := newPollRate(Options{PollInterval: 10 * time.Millisecond, MaxPollInterval: 35 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, r.next())
	assert.Equal(t, 20*time.Millisecond, r.next())
	assert.Equal(t, 35*time.Millisecond, r.next())
	assert.Equal(t, 35*time.Millisecond, r.next())

	r.reset()
	assert.Equal(t, 10*time.Millisecond, r.next())

	d := newPollRate(Options{})
	assert.Equal(t, defaultPollInterval, d.min)
	assert.Equal(t, defaultMaxPollInterval, d.max)
}

func TestTaskDependencyError(t *testing.T) {
	err := &TaskDependencyError{}
	assert.EqualError(t, err, "dependencies failed")

	err.Reason = "dependencies can never be satisfied"
	assert.EqualError(t, err, "dependencies can never be satisfied")
}
