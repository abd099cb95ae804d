package executor

// TaskEventListener observes the lifecycle of tasks. Listeners are invoked
// synchronously, in registration order, from the goroutine running the
// policy.
type TaskEventListener interface {
	OnTaskSetup(t *Task)
	OnTaskRun(t *Task)
	OnTaskSuccess(t *Task)
	OnTaskFailure(t *Task)
	// OnTaskExit follows the success or failure event of every task that
	// reached OnTaskRun.
	OnTaskExit(t *Task)
}

// ListenerFuncs adapts a set of optional functions to TaskEventListener.
type ListenerFuncs struct {
	Setup   func(t *Task)
	Run     func(t *Task)
	Success func(t *Task)
	Failure func(t *Task)
	Exit    func(t *Task)
}

var _ TaskEventListener = ListenerFuncs{}

func (f ListenerFuncs) OnTaskSetup(t *Task) {
	if f.Setup != nil {
		f.Setup(t)
	}
}

func (f ListenerFuncs) OnTaskRun(t *Task) {
	if f.Run != nil {
		f.Run(t)
	}
}

func (f ListenerFuncs) OnTaskSuccess(t *Task) {
	if f.Success != nil {
		f.Success(t)
	}
}

func (f ListenerFuncs) OnTaskFailure(t *Task) {
	if f.Failure != nil {
		f.Failure(t)
	}
}

func (f ListenerFuncs) OnTaskExit(t *Task) {
	if f.Exit != nil {
		f.Exit(t)
	}
}
