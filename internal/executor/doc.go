// Package executor drives test cases through the check pipeline.
//
// Each case is wrapped in a Task, a linear stage state machine:
//
//	init -> setup -> compile -> run -> sanity -> performance -> cleanup -> success
//
// with "failed" reachable from every non-terminal stage. A Policy decides in
// which order and with how much concurrency Tasks advance: SerialPolicy runs
// one case to completion at a time, AsyncPolicy keeps several jobs in flight
// through a single-threaded submit/poll loop bounded by the max_jobs limit of
// each partition. The Runner repeats the policy over failed cases up to a
// retry limit and keeps the per-run results in Stats.
//
// Task failures are local: a failed stage, a failed poll, a panic in a stage
// body or a failed dependency only fail the affected Task. Cancellation of
// the run context, an ErrInterrupted stage error or a ForceExitError abort
// the whole run once every in-flight job has been cancelled and waited for.
package executor
