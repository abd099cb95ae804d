package executor

import "fmt"

// Stage is a step of the check pipeline.
type Stage int

const (
	StageInit Stage = iota
	StageSetup
	StageCompile
	StageRun
	StageSanity
	StagePerformance
	// StageCleanup is entered once a case has passed; the cleanup body runs
	// when no dependent needs the case's files anymore.
	StageCleanup
	StageSuccess
)

// StartupStage is the failed stage reported for cases that never started
// because one of their dependencies failed.
const StartupStage = "startup"

var stageNames = [...]string{
	StageInit:        "init",
	StageSetup:       "setup",
	StageCompile:     "compile",
	StageRun:         "run",
	StageSanity:      "sanity",
	StagePerformance: "performance",
	StageCleanup:     "cleanup",
	StageSuccess:     "success",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no stage follows s.
func (s Stage) Terminal() bool {
	return s >= StageSuccess
}

// nextStage is the transition function of the pipeline.
func nextStage(s Stage) (Stage, bool) {
	if s < StageInit || s.Terminal() {
		return s, false
	}
	return s + 1, true
}
