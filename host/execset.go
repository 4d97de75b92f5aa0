package host

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
)

// ExecutionSet is a program (routines plus constants) that is loaded onto a
// device as a unit. Its contents are fixed at construction.
type ExecutionSet struct {
	name        string
	routines    []program.Routine
	constants   []program.Constant
	heapReserve uint32

	mutex       sync.Mutex
	session     *Session
	concurrency int
	tasks       []*Task
	running     map[uint32]bool
}

// NewExecutionSet creates a set from routines.
func NewExecutionSet(name string, routines ...program.Routine) *ExecutionSet {
	return &ExecutionSet{
		name:        name,
		routines:    slices.Clone(routines),
		concurrency: DefaultMaxConcurrentTasks,
		running:     make(map[uint32]bool),
	}
}

// FromImage creates a set from a program image.
func FromImage(img *program.Image) *ExecutionSet {
	set := NewExecutionSet(img.Name, img.Routines...)
	set.constants = slices.Clone(img.Constants)
	set.heapReserve = img.HeapReserve
	return set
}

// Name returns the set name.
func (e *ExecutionSet) Name() string {
	return e.name
}

// Routines returns the routines in upload order.
func (e *ExecutionSet) Routines() []program.Routine {
	return slices.Clone(e.routines)
}

// Routine returns the routine with the given id.
func (e *ExecutionSet) Routine(id uint32) (program.Routine, bool) {
	for _, r := range e.routines {
		if r.ID == id {
			return r, true
		}
	}
	return program.Routine{}, false
}

// Loaded reports whether the set is active on a session.
func (e *ExecutionSet) Loaded() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.session != nil
}

// Estimate returns the memory footprint at the set's concurrency, which is
// the session's MaxConcurrentTasks once Load has run.
func (e *ExecutionSet) Estimate() MemoryEstimate {
	e.mutex.Lock()
	n := e.concurrency
	e.mutex.Unlock()
	return EstimateMemory(e.routines, e.constants, e.heapReserve, n)
}

// EstimateRequiredMemory returns Estimate().Total.
func (e *ExecutionSet) EstimateRequiredMemory() int64 {
	return e.Estimate().Total
}

// NewTask creates a handle for one invocation of routine id. The task is
// Prepared until the set is loaded, Loaded afterwards.
func (e *ExecutionSet) NewTask(id uint32) (*Task, error) {
	r, ok := e.Routine(id)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08X", pkg.ErrUnknownRoutine, id)
	}

	t := newTask(e, r)

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.session != nil {
		t.state = StateLoaded
	}
	e.tasks = append(e.tasks, t)
	return t, nil
}

// Tasks returns the tasks created on the set that have not been disposed.
func (e *ExecutionSet) Tasks() []*Task {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return slices.Clone(e.tasks)
}

// Running returns the number of tasks currently running.
func (e *ExecutionSet) Running() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.running)
}

func (e *ExecutionSet) activeOn(s *Session) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.session == s
}

func (e *ExecutionSet) setConcurrency(n int) {
	e.mutex.Lock()
	e.concurrency = n
	e.mutex.Unlock()
}

// markLoaded binds the set to s and promotes every Prepared task.
func (e *ExecutionSet) markLoaded(s *Session) {
	e.mutex.Lock()
	e.session = s
	tasks := slices.Clone(e.tasks)
	e.mutex.Unlock()

	for _, t := range tasks {
		t.promote()
	}
}

// unload detaches the set from its session. Its Loaded tasks stay Loaded
// and cannot be invoked until the set is loaded again.
func (e *ExecutionSet) unload() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.session = nil
}

// acquire reserves a run slot for routine id.
func (e *ExecutionSet) acquire(id uint32) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.running[id] {
		return fmt.Errorf("%w: routine 0x%08X already running", pkg.ErrBusy, id)
	}
	if len(e.running) >= e.concurrency {
		return fmt.Errorf("%w: %d of %d tasks running", pkg.ErrBusy, len(e.running), e.concurrency)
	}
	e.running[id] = true
	return nil
}

func (e *ExecutionSet) releaseSlot(id uint32) {
	e.mutex.Lock()
	delete(e.running, id)
	e.mutex.Unlock()
}

func (e *ExecutionSet) forget(t *Task) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if i := slices.Index(e.tasks, t); i >= 0 {
		e.tasks = slices.Delete(e.tasks, i, i+1)
	}
}
