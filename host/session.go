package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/softexec/bag"
	"github.com/ardnew/softexec/host/hal"
	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/protocol"
)

// Session drives one device over one link.
//
// A single reader goroutine decodes frames from the link and routes them:
// replies and invocation results go to a correlation bag where blocked
// callers claim them, device log text and pin events go to the configured
// callbacks. Writes from any goroutine are serialized.
type Session struct {
	id     uuid.UUID
	link   hal.Link
	config Config

	writer  *protocol.Writer
	reader  *protocol.Reader
	replies *bag.Bag[protocol.Message]

	seq         protocol.Sequencer
	invocations protocol.Sequencer

	mutex    sync.Mutex
	running  bool
	cancel   context.CancelFunc
	linkCtx  context.Context // Ends when the reader stops
	done     chan struct{}
	live     map[uint16]*Task
	retired  map[uint16]struct{} // Abandoned ids the device may still report on
	active   *ExecutionSet
	partial  bool
	caps     *protocol.Capabilities
	lastLoss error

	// loadMu serializes Load and ClearAll.
	loadMu sync.Mutex

	orphans   atomic.Uint64
	malformed atomic.Uint64
	textLines atomic.Uint64
}

// Stats holds session counters.
type Stats struct {
	BytesSent      uint64
	BytesReceived  uint64
	FramesSent     uint64
	FramesReceived uint64
	FramesDropped  uint64 // Framing errors, unknown commands, malformed payloads
	Orphans        uint64 // Result frames for invocations nobody owns
	Evicted        uint64 // Replies pushed out of a full bag
	TextLines      uint64 // Raw text lines between frames
	Retired        int    // Invocation ids held back until the device ends them
}

// NewSession creates a session on link. The link is opened by Start.
func NewSession(link hal.Link, opts ...Option) *Session {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Session{
		id:      uuid.New(),
		link:    link,
		config:  cfg,
		live:    make(map[uint16]*Task),
		retired: make(map[uint16]struct{}),
	}
	s.replies = bag.New(
		bag.WithCapacity[protocol.Message](cfg.BagCapacity),
		bag.WithOnEvict(func(m protocol.Message) {
			pkg.LogDebug(pkg.ComponentHost, "reply evicted", "session", s.id, "command", m.Command())
		}),
	)
	return s
}

// ID returns the session id attached to every log line.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.config
}

// Start opens the link and starts the reader.
func (s *Session) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return pkg.ErrAlreadyRunning
	}
	if err := s.link.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", s.link.Name(), err)
	}

	s.writer = protocol.NewWriter(s.link)
	s.reader = protocol.NewReader(s.link,
		protocol.WithMaxFrameLen(s.config.MaxFrameLen),
		protocol.WithOnText(s.deviceText),
		protocol.WithOnDrop(func(err error) {
			pkg.LogDebug(pkg.ComponentProtocol, "frame dropped", "session", s.id, "error", err)
		}),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	linkCtx, linkDown := context.WithCancel(context.Background())
	s.cancel = cancel
	s.linkCtx = linkCtx
	s.done = make(chan struct{})
	s.lastLoss = nil
	s.running = true

	go s.readLoop(runCtx, s.reader, s.done, linkDown)

	pkg.LogInfo(pkg.ComponentHost, "session started", "session", s.id, "link", s.link.Name())
	return nil
}

// Stop stops the reader, closes the link and aborts every running task
// with a connection fault.
func (s *Session) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return pkg.ErrNotRunning
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	err := s.link.Close()
	<-done

	for _, t := range s.liveTasks() {
		t.abort(protocol.FaultConnection, fmt.Errorf("%w: session stopped", pkg.ErrNotConnected))
	}

	pkg.LogInfo(pkg.ComponentHost, "session stopped", "session", s.id)
	return err
}

// Running reports whether the session is started and its link is up.
func (s *Session) Running() bool {
	return s.ready() == nil
}

// ready returns nil if frames can be exchanged.
func (s *Session) ready() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return pkg.ErrNotRunning
	}
	if s.linkCtx.Err() != nil {
		if s.lastLoss != nil {
			return fmt.Errorf("%w: %w", pkg.ErrNotConnected, s.lastLoss)
		}
		return pkg.ErrNotConnected
	}
	return nil
}

// Active returns the execution set loaded on the device, if any.
func (s *Session) Active() *ExecutionSet {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active
}

// Partial reports whether a failed upload left an incomplete program on the
// device. Only ClearAll recovers from it.
func (s *Session) Partial() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.partial
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mutex.Lock()
	w, r := s.writer, s.reader
	retired := len(s.retired)
	s.mutex.Unlock()

	st := Stats{
		Retired:       retired,
		Orphans:       s.orphans.Load(),
		Evicted:       s.replies.Evicted(),
		TextLines:     s.textLines.Load(),
		FramesDropped: s.malformed.Load(),
	}
	if w != nil {
		st.BytesSent = w.BytesWritten()
		st.FramesSent = w.FramesWritten()
	}
	if r != nil {
		st.BytesReceived = r.BytesRead()
		st.FramesReceived = r.FramesRead()
		st.FramesDropped += r.Dropped()
	}
	return st
}

func (s *Session) readLoop(ctx context.Context, r *protocol.Reader, done chan struct{}, linkDown context.CancelFunc) {
	defer close(done)
	defer linkDown()

	for {
		f, err := r.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				pkg.LogWarn(pkg.ComponentHost, "link lost", "session", s.id, "link", s.link.Name(), "error", err)
			}
			s.linkLost(err)
			return
		}
		s.dispatch(f)
	}
}

func (s *Session) dispatch(f protocol.Frame) {
	m, err := protocol.Unmarshal(f)
	if err != nil {
		s.malformed.Add(1)
		pkg.LogDebug(pkg.ComponentProtocol, "malformed frame", "session", s.id, "frame", f, "error", err)
		return
	}

	switch m := m.(type) {
	case protocol.Ack, protocol.Nack, protocol.Capabilities:
		s.replies.Add(m)

	case protocol.ResultChunk, protocol.ResultComplete, protocol.Exception:
		s.deliver(m.(protocol.Correlated))

	case protocol.Log:
		s.deviceText(m.Text)

	case protocol.PinEvent:
		pkg.LogDebug(pkg.ComponentDevice, "pin event", "session", s.id, "pin", m.Pin, "value", m.Value)
		if fn := s.config.OnPinEvent; fn != nil {
			fn(m.Pin, m.Value)
		}

	default:
		s.malformed.Add(1)
		pkg.LogDebug(pkg.ComponentProtocol, "unexpected command from device", "session", s.id, "command", m.Command())
	}
}

// deliver hands an invocation frame to its waiter, or discards it if the
// invocation is not live. A final frame for a retired id frees the id.
func (s *Session) deliver(m protocol.Correlated) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := m.InvocationID()
	if _, ok := s.live[id]; ok {
		s.replies.Add(m)
		return
	}

	s.orphans.Add(1)
	pkg.LogDebug(pkg.ComponentHost, "orphan frame discarded", "session", s.id, "command", m.Command(), "invocation", id)
	if _, ok := s.retired[id]; ok && m.Command() != protocol.CmdResultChunk {
		delete(s.retired, id)
		pkg.LogDebug(pkg.ComponentHost, "invocation id settled", "session", s.id, "invocation", id)
	}
}

func (s *Session) deviceText(text string) {
	pkg.LogInfo(pkg.ComponentDevice, text, "session", s.id)
	if fn := s.config.OnLog; fn != nil {
		fn(text)
	}
	s.textLines.Add(1)
}

// linkLost aborts every live invocation with a connection fault so that
// waiters return.
func (s *Session) linkLost(err error) {
	s.mutex.Lock()
	s.lastLoss = err
	s.mutex.Unlock()

	for _, t := range s.liveTasks() {
		t.abort(protocol.FaultConnection, fmt.Errorf("%w: %w", pkg.ErrNotConnected, err))
	}
}

func (s *Session) liveTasks() []*Task {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tasks := make([]*Task, 0, len(s.live))
	for _, t := range s.live {
		tasks = append(tasks, t)
	}
	return tasks
}

// release forgets invocation id and discards frames still queued for it.
// Unless settled, the id is retired until the device reports the end of the
// invocation, so a late frame is never credited to a new task.
func (s *Session) release(id uint16, settled bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.live, id)
	if !settled {
		s.retired[id] = struct{}{}
	}
	n := s.replies.RemoveAll(func(m protocol.Message) bool {
		c, ok := m.(protocol.Correlated)
		return ok && c.InvocationID() == id
	})
	if n > 0 {
		s.orphans.Add(uint64(n))
		pkg.LogDebug(pkg.ComponentHost, "drained frames of released invocation", "session", s.id, "invocation", id, "count", n)
	}
}

// nextInvocation returns an id that is neither live nor retired. Called
// with s.mutex held.
func (s *Session) nextInvocation() (uint16, error) {
	for range protocol.MaxSequence {
		id := s.invocations.Next()
		_, live := s.live[id]
		_, retired := s.retired[id]
		if !live && !retired {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no free invocation id", pkg.ErrBusy)
}

// request writes m and waits for the ACK, NACK or CAPABILITIES carrying the
// same sequence number.
func (s *Session) request(ctx context.Context, timeout time.Duration, m protocol.Sequenced) (protocol.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(s.linkCtx, cancel)
	defer stop()

	if err := s.writer.WriteMessage(m); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", pkg.ErrNotConnected, m.Command(), err)
	}

	seq := m.Sequence()
	reply, err := s.replies.Remove(rctx, func(r protocol.Message) bool {
		switch r.(type) {
		case protocol.Ack, protocol.Nack, protocol.Capabilities:
			return r.(protocol.Sequenced).Sequence() == seq
		}
		return false
	})
	if err != nil {
		switch {
		case s.linkCtx.Err() != nil:
			return nil, fmt.Errorf("%s seq %d: %w", m.Command(), seq, pkg.ErrNotConnected)
		case ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%s seq %d: %w: %w", m.Command(), seq, pkg.ErrCancelled, ctx.Err())
		default:
			return nil, fmt.Errorf("%s seq %d: %w", m.Command(), seq, pkg.ErrTimeout)
		}
	}

	if nack, ok := reply.(protocol.Nack); ok {
		return nil, nack.Err()
	}
	return reply, nil
}

// expectAck sends m and requires an ACK for it.
func (s *Session) expectAck(ctx context.Context, timeout time.Duration, m protocol.Sequenced) error {
	reply, err := s.request(ctx, timeout, m)
	if err != nil {
		return err
	}
	if ack, ok := reply.(protocol.Ack); !ok || ack.Acked != m.Command() {
		return fmt.Errorf("%w: %s answered with %s", pkg.ErrProtocol, m.Command(), reply.Command())
	}
	return nil
}

// InvokeAsync starts task on the device with args and returns once the
// INVOKE frame is written. It never waits for the result.
//
// The task must be Loaded and belong to the set active on this session.
// Nothing about the task changes when an error is returned before the
// frame is written.
func (s *Session) InvokeAsync(t *Task, args ...protocol.Value) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := t.invokable(); err != nil {
		return err
	}
	if !t.set.activeOn(s) {
		return fmt.Errorf("%w: %q", pkg.ErrNotLoaded, t.set.Name())
	}
	if len(args) != int(t.routine.Args) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d",
			pkg.ErrInvalidParameter, t, t.routine.Args, len(args))
	}
	for i, a := range args {
		if a.Kind().Size() == 0 {
			return fmt.Errorf("%w: %s argument %d has no value (%s)",
				pkg.ErrInvalidParameter, t, i, a.Kind())
		}
	}
	if err := t.set.acquire(t.routine.ID); err != nil {
		return err
	}

	s.mutex.Lock()
	id, err := s.nextInvocation()
	if err == nil {
		err = t.start(s, id)
	}
	if err != nil {
		s.mutex.Unlock()
		t.set.releaseSlot(t.routine.ID)
		return err
	}
	s.live[id] = t
	s.mutex.Unlock()

	err = s.writer.WriteMessage(protocol.Invoke{
		Invocation: id,
		Routine:    t.routine.ID,
		Args:       args,
	})
	if err != nil {
		err = fmt.Errorf("%w: invoke: %w", pkg.ErrNotConnected, err)
		t.abort(protocol.FaultConnection, err)
		return err
	}

	pkg.LogDebug(pkg.ComponentTask, "invoked", "session", s.id, "task", t, "args", len(args))
	return nil
}

// kill asks the device to terminate invocation id.
func (s *Session) kill(ctx context.Context, id uint16) error {
	return s.expectAck(ctx, s.config.ReplyTimeout, protocol.Kill{
		Seq:        s.seq.Next(),
		Invocation: id,
	})
}

// QueryCapabilities returns the device capabilities, querying the device
// the first time and after a hard ClearAll.
func (s *Session) QueryCapabilities(ctx context.Context) (protocol.Capabilities, error) {
	s.mutex.Lock()
	if s.caps != nil {
		caps := *s.caps
		s.mutex.Unlock()
		return caps, nil
	}
	s.mutex.Unlock()

	reply, err := s.request(ctx, s.config.ReplyTimeout, protocol.QueryCapabilities{Seq: s.seq.Next()})
	if err != nil {
		return protocol.Capabilities{}, err
	}
	caps, ok := reply.(protocol.Capabilities)
	if !ok {
		return protocol.Capabilities{}, fmt.Errorf("%w: capability query answered with %s", pkg.ErrProtocol, reply.Command())
	}
	if caps.ProtocolVersion != ProtocolVersion {
		pkg.LogWarn(pkg.ComponentHost, "protocol version mismatch", "session", s.id, "device", caps.ProtocolVersion, "host", ProtocolVersion)
	}

	s.mutex.Lock()
	s.caps = &caps
	s.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentHost, "device capabilities", "session", s.id,
		"ram", caps.RAMSize, "flash", caps.FlashSize, "flashUsed", caps.FlashUsed,
		"maxMessage", caps.MaxMessageSize)
	return caps, nil
}

// ClearAll aborts every running task with a reset fault, unloads the active
// set, asks the device to drop its program and discards all queued replies.
// A hard reset also forgets the cached capabilities.
//
// If the device does not acknowledge, the session treats it as holding a
// partial program so that a later Load fails until ClearAll succeeds.
func (s *Session) ClearAll(ctx context.Context, hardReset bool) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	s.mutex.Lock()
	active := s.active
	s.active = nil
	s.mutex.Unlock()

	if active != nil {
		active.unload()
	}
	for _, t := range s.liveTasks() {
		t.abort(protocol.FaultReset, pkg.ErrReset)
	}

	err := s.expectAck(ctx, s.config.ReplyTimeout, protocol.ClearAll{
		Seq:  s.seq.Next(),
		Hard: hardReset,
	})

	n := s.replies.Clear()
	s.orphans.Add(uint64(n))

	s.mutex.Lock()
	s.partial = err != nil
	if err == nil {
		// The device drops cleared invocations without a final frame.
		clear(s.retired)
	}
	if hardReset {
		s.caps = nil
	}
	s.mutex.Unlock()

	if err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	pkg.LogInfo(pkg.ComponentHost, "device cleared", "session", s.id, "hard", hardReset, "discarded", n)
	return nil
}
