package testcase

import "context"

// Pipeline is the set of stage operations the scheduler drives. Stage bodies
// are opaque to the scheduler; it only reacts to their errors.
type Pipeline interface {
	// Setup binds the check to its case and prepares its directories.
	Setup(ctx context.Context, tc *TestCase) error
	Compile(ctx context.Context) error
	// Run submits the check's job. It must not block until the job finishes.
	Run(ctx context.Context) error
	// Poll reports whether the submitted job has finished. It never blocks.
	Poll(ctx context.Context) (bool, error)
	// Wait blocks until the submitted job finishes or ctx is done.
	Wait(ctx context.Context) error
	// Cancel requests termination of the submitted job.
	Cancel(ctx context.Context) error
	Sanity(ctx context.Context) error
	// Performance may return a *PerformanceWarning for soft failures.
	Performance(ctx context.Context) error
	Cleanup(ctx context.Context, removeFiles bool) error
}

// Check is the capability set a regression check exposes to the scheduler.
type Check interface {
	Pipeline

	Name() string
	ValidSystems() []string
	ValidEnvirons() []string
	Dependencies() []Dependency

	// Clone returns an independent copy of the check with no case bound.
	Clone() Check

	IsLocal() bool
	SetLocal(local bool)

	OutputDir() string
	StageDir() string
}
