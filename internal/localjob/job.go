// Package localjob runs shell commands as jobs on the local host, with their
// output redirected to files in the job directory.
package localjob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/vk/checkgrid/internal/ctxlog"
	"golang.org/x/sys/unix"
)

// ErrNotStarted is returned by operations that need a submitted job.
var ErrNotStarted = errors.New("job not started")

// Job is a single `sh -c` invocation.
type Job struct {
	Name    string
	Dir     string
	Command string
	// Env is appended to the environment of the current process.
	Env []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	exitCode int
	stdout   *os.File
	stderr   *os.File
}

// New returns a job that will run command in dir.
func New(name, dir, command string, env []string) *Job {
	return &Job{Name: name, Dir: dir, Command: command, Env: env, exitCode: -1}
}

// StdoutPath is the file receiving the standard output of the job.
func (j *Job) StdoutPath() string { return filepath.Join(j.Dir, j.Name+".out") }

// StderrPath is the file receiving the standard error of the job.
func (j *Job) StderrPath() string { return filepath.Join(j.Dir, j.Name+".err") }

// Submit starts the job. It does not wait for it to finish.
func (j *Job) Submit(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cmd != nil {
		return fmt.Errorf("job %s already submitted", j.Name)
	}
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	stdout, err := os.Create(j.StdoutPath())
	if err != nil {
		return fmt.Errorf("failed to create stdout file: %w", err)
	}
	stderr, err := os.Create(j.StderrPath())
	if err != nil {
		stdout.Close()
		return fmt.Errorf("failed to create stderr file: %w", err)
	}

	// The job outlives the stage that submitted it, so it is bound to
	// Cancel and not to ctx.
	cmd := exec.Command("sh", "-c", j.Command)
	cmd.Dir = j.Dir
	cmd.Env = append(os.Environ(), j.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Own process group, so that Cancel reaches the children of sh too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start job %s: %w", j.Name, err)
	}

	j.cmd, j.stdout, j.stderr = cmd, stdout, stderr
	j.done = make(chan struct{})
	ctxlog.FromContext(ctx).Debug("Job submitted.", "job", j.Name, "pid", cmd.Process.Pid, "dir", j.Dir)

	go j.reap()
	return nil
}

func (j *Job) reap() {
	err := j.cmd.Wait()
	j.stdout.Close()
	j.stderr.Close()

	j.mu.Lock()
	j.exitCode = j.cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// A non-zero exit status is reported through ExitCode only.
		j.waitErr = err
	}
	j.mu.Unlock()
	close(j.done)
}

func (j *Job) started() (chan struct{}, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cmd == nil {
		return nil, ErrNotStarted
	}
	return j.done, nil
}

// Poll reports whether the job finished, without blocking.
func (j *Job) Poll() (bool, error) {
	done, err := j.started()
	if err != nil {
		return false, err
	}
	select {
	case <-done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return true, j.waitErr
	default:
		return false, nil
	}
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	done, err := j.started()
	if err != nil {
		return err
	}
	select {
	case <-done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.waitErr
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Cancel kills the process group of the job. Cancelling a finished job does
// nothing.
func (j *Job) Cancel() error {
	done, err := j.started()
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	default:
	}
	err = unix.Kill(-j.cmd.Process.Pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to kill job %s: %w", j.Name, err)
	}
	return nil
}

// ExitCode returns the exit status of a finished job, or -1.
func (j *Job) ExitCode() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode
}
