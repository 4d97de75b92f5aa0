package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// Task is the handle for one invocation of a routine.
//
// A task moves Prepared → Loaded → Running → Stopped | Aborted and never
// backwards. It can be invoked once; create a new task to run the routine
// again.
//
// Only a Running task is ever aborted. A Loaded task whose program was
// cleared from the device stays Loaded, and InvokeAsync reports
// pkg.ErrNotLoaded until its set is loaded again. A disposed task that never
// ran keeps its state and can no longer be invoked.
type Task struct {
	set     *ExecutionSet
	routine program.Routine

	mutex   sync.Mutex
	state   TaskState
	session *Session
	id      uint16
	started time.Time
	outcome Outcome
	ctx     context.Context // Ends when the task reaches a terminal state
	cancel  context.CancelFunc

	// disposed blocks any further invocation.
	disposed bool

	// waitMu admits one consumer of reply frames at a time.
	waitMu sync.Mutex
	reasm  protocol.Reassembler
}

func newTask(set *ExecutionSet, r program.Routine) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{set: set, routine: r, ctx: ctx, cancel: cancel}
}

// Routine returns the routine this task invokes.
func (t *Task) Routine() program.Routine {
	return t.routine
}

// State returns the current state.
func (t *Task) State() TaskState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// ID returns the invocation id, or 0 if the task was never invoked.
func (t *Task) ID() uint16 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.id
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Outcome returns the final outcome, or the current state with no values if
// the task is not terminal.
func (t *Task) Outcome() Outcome {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.state.Terminal() {
		return Outcome{State: t.state}
	}
	return t.outcome
}

// String identifies the task in logs.
func (t *Task) String() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	name := t.routine.Name
	if name == "" {
		name = fmt.Sprintf("0x%08X", t.routine.ID)
	}
	return fmt.Sprintf("%s#%d(%s)", name, t.id, t.state)
}

// promote moves a Prepared task to Loaded.
func (t *Task) promote() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state == StatePrepared {
		t.state = StateLoaded
	}
}

// invokable returns nil if the task may be started.
func (t *Task) invokable() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.invokableLocked()
}

func (t *Task) invokableLocked() error {
	if t.disposed {
		return fmt.Errorf("%w: invoke disposed task", pkg.ErrInvalidState)
	}
	if t.state != StateLoaded {
		return fmt.Errorf("%w: invoke %s task", pkg.ErrInvalidState, t.state)
	}
	return nil
}

// start moves a Loaded task to Running under invocation id.
func (t *Task) start(s *Session, id uint16) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.invokableLocked(); err != nil {
		return err
	}
	t.state = StateRunning
	t.session = s
	t.id = id
	t.started = time.Now()
	return nil
}

// finish records a terminal outcome. Only the first call has an effect.
// settled reports that the device has ended the invocation; otherwise its
// id is held back until the device does.
func (t *Task) finish(o Outcome, settled bool) bool {
	t.mutex.Lock()
	if t.state.Terminal() {
		t.mutex.Unlock()
		return false
	}
	wasRunning := t.state == StateRunning
	if !t.started.IsZero() {
		o.Elapsed = time.Since(t.started)
	}
	t.state = o.State
	t.outcome = o
	sess, id := t.session, t.id
	t.mutex.Unlock()

	t.cancel()
	if wasRunning {
		t.set.releaseSlot(t.routine.ID)
		if sess != nil {
			sess.release(id, settled)
		}
	}

	if o.State == StateStopped {
		pkg.LogDebug(pkg.ComponentTask, "task stopped", "task", t.String(), "values", len(o.Values), "elapsed", o.Elapsed)
	} else {
		pkg.LogDebug(pkg.ComponentTask, "task aborted", "task", t.String(), "fault", o.Fault)
	}
	return true
}

// abort ends the task locally while the device may still run it.
func (t *Task) abort(kind protocol.FaultKind, err error) bool {
	return t.finish(Outcome{State: StateAborted, Fault: newFault(kind, err)}, false)
}

// reject ends the task on a final frame that could not be decoded.
func (t *Task) reject(err error) bool {
	return t.finish(Outcome{State: StateAborted, Fault: newFault(protocol.FaultProtocol, err)}, true)
}

// WaitForResult waits up to timeout for the task to finish. A negative
// timeout waits forever. If the timeout elapses first the task is aborted
// with a timeout fault and an error matching pkg.ErrTimeout is returned.
func (t *Task) WaitForResult(timeout time.Duration) (Outcome, error) {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.Wait(ctx)
}

// Wait waits for the task to finish or ctx to end. A context deadline
// aborts the task with a timeout fault; cancellation aborts it with a
// cancelled fault. Waiting on a terminal task returns its outcome at once.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	t.mutex.Lock()
	state, sess, id := t.state, t.session, t.id
	t.mutex.Unlock()
	if state.Terminal() {
		return t.Outcome(), nil
	}
	if state != StateRunning {
		return Outcome{State: state}, fmt.Errorf("%w: wait on %s task", pkg.ErrInvalidState, state)
	}

	t.waitMu.Lock()
	defer t.waitMu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	match := func(m protocol.Message) bool {
		c, ok := m.(protocol.Correlated)
		return ok && c.InvocationID() == id && m.Command() != protocol.CmdInvoke
	}

	for {
		m, err := sess.replies.Remove(wctx, match)
		if err != nil {
			if t.ctx.Err() != nil {
				return t.Outcome(), nil
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				t.abort(protocol.FaultTimeout, pkg.ErrTimeout)
				return t.Outcome(), fmt.Errorf("%s: %w", t, pkg.ErrTimeout)
			}
			t.abort(protocol.FaultCancelled, ctx.Err())
			return t.Outcome(), fmt.Errorf("%s: %w: %w", t, pkg.ErrCancelled, ctx.Err())
		}
		if t.handle(m) {
			return t.Outcome(), nil
		}
	}
}

// handle applies one reply frame and reports whether the task finished.
func (t *Task) handle(m protocol.Message) bool {
	switch m := m.(type) {
	case protocol.ResultChunk:
		if err := t.reasm.Add(m.Index, m.Data); err != nil {
			return t.abort(protocol.FaultProtocol, fmt.Errorf("%w: %w", pkg.ErrProtocol, err))
		}
		return false

	case protocol.ResultComplete:
		data, err := t.reasm.Complete(m.Count)
		if err != nil {
			return t.reject(fmt.Errorf("%w: %w", pkg.ErrProtocol, err))
		}
		vals, err := protocol.ParseValues(data)
		if err != nil {
			return t.reject(fmt.Errorf("%w: %w", pkg.ErrProtocol, err))
		}
		return t.finish(Outcome{State: StateStopped, Values: vals}, true)

	case protocol.Exception:
		return t.finish(Outcome{State: StateAborted, Fault: faultFromException(m)}, true)
	}
	return false
}

// Results returns the return values of a Stopped task or the fault of an
// Aborted one. It fails with pkg.ErrInvalidState before the task is terminal.
func (t *Task) Results() ([]protocol.Value, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	switch t.state {
	case StateStopped:
		return t.outcome.Values, nil
	case StateAborted:
		return nil, t.outcome.Fault
	default:
		return nil, fmt.Errorf("%w: results of %s task", pkg.ErrInvalidState, t.state)
	}
}

// Terminate asks the device to kill the running invocation. The task ends
// when the device reports the kill; use Wait to observe it.
func (t *Task) Terminate(ctx context.Context) error {
	t.mutex.Lock()
	state, sess, id := t.state, t.session, t.id
	t.mutex.Unlock()
	if state != StateRunning {
		return fmt.Errorf("%w: terminate %s task", pkg.ErrInvalidState, state)
	}
	return sess.kill(ctx, id)
}

// Dispose releases the task. A running task is aborted locally as cancelled
// and any frames already received for it are discarded. Any other task keeps
// its state but can no longer be invoked.
func (t *Task) Dispose() {
	t.mutex.Lock()
	t.disposed = true
	running := t.state == StateRunning
	t.mutex.Unlock()

	if running {
		t.abort(protocol.FaultCancelled, pkg.ErrCancelled)
	}
	t.set.forget(t)
}

// pending returns the frames for t still waiting in the bag (for tests).
func (t *Task) pending() int {
	t.mutex.Lock()
	sess, id := t.session, t.id
	t.mutex.Unlock()
	if sess == nil {
		return 0
	}
	n := 0
	for _, m := range sess.replies.Snapshot() {
		if c, ok := m.(protocol.Correlated); ok && c.InvocationID() == id {
			n++
		}
	}
	return n
}
