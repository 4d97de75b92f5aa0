package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softexec/device/hal"
	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// Device speaks the device side of the protocol over a port and runs
// invocations through an Interpreter.
type Device struct {
	port   hal.Port
	interp Interpreter

	flashSize  uint32
	maxMessage int

	writer *protocol.Writer
	ram    ram

	// State
	state      State
	store      *store
	running    map[uint16]*invocation
	generation uint64
	mutex      sync.Mutex

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}

	// Event callbacks
	onStateChange func(old, new State)

	invocations atomic.Uint64
	faults      atomic.Uint64
}

// invocation is one running routine.
type invocation struct {
	id         uint16
	routine    program.Routine
	cancel     context.CancelFunc
	generation uint64
	held       atomic.Int64
	killed     atomic.Bool
	cleared    atomic.Bool
}

// Option configures a Device.
type Option func(*Device)

// WithRAMSize sets the RAM available to the program and its invocations.
func WithRAMSize(n uint32) Option {
	return func(d *Device) { d.ram.size = int64(n) }
}

// WithFlashSize sets the flash size reported to the host.
func WithFlashSize(n uint32) Option {
	return func(d *Device) { d.flashSize = n }
}

// WithMaxMessageSize sets the receive buffer size reported to the host. It
// also bounds result chunks sent by the device.
func WithMaxMessageSize(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.maxMessage = n
		}
	}
}

// WithOnStateChange registers a callback for program state changes.
func WithOnStateChange(fn func(old, new State)) Option {
	return func(d *Device) { d.onStateChange = fn }
}

// New creates a device on port that runs routines with interp.
func New(port hal.Port, interp Interpreter, opts ...Option) *Device {
	d := &Device{
		port:       port,
		interp:     interp,
		flashSize:  DefaultFlashSize,
		maxMessage: DefaultMaxMessageSize,
		store:      newStore(),
		running:    make(map[uint16]*invocation),
	}
	d.ram.size = DefaultRAMSize
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start initializes the port and starts serving host frames.
func (d *Device) Start(ctx context.Context) error {
	d.mutex.Lock()
	if d.started {
		d.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mutex.Unlock()

	if err := d.port.Init(d.ctx); err != nil {
		return err
	}
	if err := d.port.Start(); err != nil {
		return err
	}

	d.mutex.Lock()
	d.started = true
	d.writer = protocol.NewWriter(d.port)
	d.done = make(chan struct{})
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentDevice, "device started", "ram", d.ram.size, "maxMessage", d.maxMessage)

	go d.serve()
	return nil
}

// Stop cancels running invocations, stops the port and waits for the frame
// loop to exit.
func (d *Device) Stop() error {
	d.mutex.Lock()
	if !d.started {
		d.mutex.Unlock()
		return nil
	}
	d.started = false
	d.cancel()
	for _, inv := range d.running {
		inv.cleared.Store(true)
		inv.cancel()
	}
	done := d.done
	d.mutex.Unlock()

	err := d.port.Stop()
	<-done
	d.wg.Wait()

	pkg.LogDebug(pkg.ComponentDevice, "device stopped")
	return err
}

// Done returns a channel closed when the frame loop exits, either by Stop
// or because the host side of the link went away.
func (d *Device) Done() <-chan struct{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.done
}

// IsRunning returns true if the device is serving frames.
func (d *Device) IsRunning() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.started
}

// State returns the program state.
func (d *Device) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// MemoryUsed returns the RAM held by the program and running invocations.
func (d *Device) MemoryUsed() int64 {
	return d.ram.inUse()
}

// Running returns the number of invocations in progress.
func (d *Device) Running() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.running)
}

// Invocations returns the number of INVOKE frames accepted.
func (d *Device) Invocations() uint64 {
	return d.invocations.Load()
}

// Faults returns the number of EXCEPTION frames sent.
func (d *Device) Faults() uint64 {
	return d.faults.Load()
}

// setState changes the program state. Called with d.mutex held.
func (d *Device) setState(s State) {
	old := d.state
	if old == s {
		return
	}
	d.state = s
	pkg.LogDebug(pkg.ComponentDevice, "state changed", "old", old, "new", s)
	if d.onStateChange != nil {
		d.onStateChange(old, s)
	}
}

func (d *Device) serve() {
	defer close(d.done)

	r := protocol.NewReader(d.port, protocol.WithOnDrop(func(err error) {
		pkg.LogDebug(pkg.ComponentDevice, "frame dropped", "error", err)
	}))
	for {
		f, err := r.ReadFrame()
		if err != nil {
			if d.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				pkg.LogWarn(pkg.ComponentDevice, "error reading frame", "error", err)
			}
			return
		}

		m, err := protocol.Unmarshal(f)
		if err != nil {
			pkg.LogDebug(pkg.ComponentDevice, "malformed frame", "frame", f, "error", err)
			continue
		}
		d.handle(m)
	}
}

func (d *Device) handle(m protocol.Message) {
	switch m := m.(type) {
	case protocol.DeclareRoutine:
		d.handleDeclare(m)
	case protocol.LoadChunk:
		d.handleChunk(m)
	case protocol.LoadComplete:
		d.handleComplete(m)
	case protocol.Invoke:
		d.handleInvoke(m)
	case protocol.Kill:
		d.handleKill(m)
	case protocol.ClearAll:
		d.handleClear(m)
	case protocol.QueryCapabilities:
		d.send(d.capabilities(m.Seq))
	default:
		pkg.LogDebug(pkg.ComponentDevice, "ignoring command", "command", m.Command())
	}
}

func (d *Device) handleDeclare(m protocol.DeclareRoutine) {
	d.mutex.Lock()
	var code pkg.CommandError
	switch d.state {
	case StateReady:
		code = pkg.CommandErrorEngineBusy
	default:
		code = d.store.declare(m)
		if code == pkg.CommandErrorNone {
			d.setState(StateLoading)
		}
	}
	d.mutex.Unlock()

	d.reply(m.Seq, m.Command(), code)
}

func (d *Device) handleChunk(m protocol.LoadChunk) {
	d.mutex.Lock()
	code := pkg.CommandErrorNotLoaded
	var err error
	if d.state == StateLoading {
		code, err = d.store.chunk(m)
	}
	d.mutex.Unlock()

	if err != nil {
		pkg.LogDebug(pkg.ComponentDevice, "chunk rejected", "routine", m.Routine, "index", m.Index, "error", err)
	}
	d.reply(m.Seq, m.Command(), code)
}

func (d *Device) handleComplete(m protocol.LoadComplete) {
	d.mutex.Lock()
	code := pkg.CommandErrorNone
	var err error
	switch {
	case d.state != StateLoading:
		code = pkg.CommandErrorNotLoaded
	default:
		if err = d.store.verify(m.Routines); err != nil {
			code = pkg.CommandErrorInvalidArguments
			if errors.Is(err, pkg.ErrChunkSequence) {
				code = pkg.CommandErrorChunkSequence
			}
			break
		}
		size := d.store.size()
		d.ram.reset()
		if !d.ram.alloc(size) {
			code = pkg.CommandErrorOutOfMemory
			break
		}
		d.setState(StateReady)
	}
	d.mutex.Unlock()

	if err != nil {
		pkg.LogDebug(pkg.ComponentDevice, "load rejected", "error", err)
	} else if code == pkg.CommandErrorNone {
		pkg.LogDebug(pkg.ComponentDevice, "program loaded", "routines", m.Routines, "hostEstimate", m.Memory, "used", d.ram.inUse())
	}
	d.reply(m.Seq, m.Command(), code)
}

func (d *Device) handleInvoke(m protocol.Invoke) {
	d.mutex.Lock()
	fault := d.admit(m)
	if fault != nil {
		d.mutex.Unlock()
		d.exception(m.Invocation, fault)
		return
	}

	r, _ := d.store.routine(m.Routine)
	ctx, cancel := context.WithCancel(d.ctx)
	inv := &invocation{
		id:         m.Invocation,
		routine:    r,
		cancel:     cancel,
		generation: d.generation,
	}
	inv.held.Store(FrameOverhead + SlotSize*int64(r.Slots()))
	d.running[m.Invocation] = inv
	d.wg.Add(1)
	d.mutex.Unlock()

	d.invocations.Add(1)
	go d.run(ctx, inv, m.Args)
}

// admit checks an INVOKE and reserves its frame. Called with d.mutex held.
func (d *Device) admit(m protocol.Invoke) *Fault {
	if d.state != StateReady {
		return &Fault{Kind: protocol.FaultInvalidOperation, Token: m.Routine, Message: "no program loaded"}
	}
	r, ok := d.store.routine(m.Routine)
	if !ok {
		return &Fault{Kind: protocol.FaultMissingMethod, Token: m.Routine, Message: "routine not declared"}
	}
	if _, busy := d.running[m.Invocation]; busy {
		return &Fault{Kind: protocol.FaultInvalidOperation, Token: m.Routine, Message: "invocation id in use"}
	}
	if len(m.Args) != int(r.Args) {
		return NewFault(protocol.FaultInvalidOperation, "%d arguments, routine takes %d", len(m.Args), r.Args)
	}
	frame := FrameOverhead + SlotSize*int64(r.Slots())
	if !d.ram.alloc(frame) {
		return &Fault{Kind: protocol.FaultOutOfMemory, Token: m.Routine, Message: "no room for invocation frame"}
	}
	return nil
}

func (d *Device) run(ctx context.Context, inv *invocation, args []protocol.Value) {
	defer d.wg.Done()
	defer inv.cancel()

	env := &Env{dev: d, inv: inv}
	vals, err := d.interp.Run(ctx, inv.routine, args, env)

	d.mutex.Lock()
	if d.running[inv.id] == inv {
		delete(d.running, inv.id)
	}
	if inv.generation == d.generation {
		d.ram.release(inv.held.Load())
	}
	d.mutex.Unlock()

	switch {
	case inv.cleared.Load():
		return
	case inv.killed.Load():
		d.exception(inv.id, &Fault{Kind: protocol.FaultKilled, Token: inv.routine.ID})
	case err != nil:
		d.exception(inv.id, asFault(err, inv.routine.ID))
	default:
		d.result(inv.id, vals)
	}
}

func (d *Device) handleKill(m protocol.Kill) {
	d.mutex.Lock()
	if inv, ok := d.running[m.Invocation]; ok {
		inv.killed.Store(true)
		inv.cancel()
	}
	d.mutex.Unlock()

	d.reply(m.Seq, m.Command(), pkg.CommandErrorNone)
}

func (d *Device) handleClear(m protocol.ClearAll) {
	d.mutex.Lock()
	for id, inv := range d.running {
		inv.cleared.Store(true)
		inv.cancel()
		delete(d.running, id)
	}
	d.generation++
	d.store = newStore()
	d.ram.reset()
	d.setState(StateEmpty)
	d.mutex.Unlock()

	if m.Hard {
		d.send(protocol.Log{Text: "reset"})
	}
	d.reply(m.Seq, m.Command(), pkg.CommandErrorNone)
}

func (d *Device) capabilities(seq uint16) protocol.Capabilities {
	d.mutex.Lock()
	used := d.store.size()
	d.mutex.Unlock()

	return protocol.Capabilities{
		Seq:             seq,
		ProtocolVersion: ProtocolVersion,
		IntSize:         DefaultIntSize,
		PointerSize:     DefaultPointerSize,
		FlashSize:       d.flashSize,
		FlashUsed:       uint32(used),
		RAMSize:         uint32(d.ram.size),
		MaxMessageSize:  uint16(d.maxMessage),
	}
}

func (d *Device) constant(id uint32) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.store.constant(id)
}

// reply sends ACK, or NACK with code.
func (d *Device) reply(seq uint16, cmd protocol.Command, code pkg.CommandError) {
	if code == pkg.CommandErrorNone {
		d.send(protocol.Ack{Seq: seq, Acked: cmd})
		return
	}
	pkg.LogDebug(pkg.ComponentDevice, "nack", "command", cmd, "seq", seq, "code", code)
	d.send(protocol.Nack{Seq: seq, Acked: cmd, Error: code})
}

func (d *Device) exception(id uint16, f *Fault) {
	d.faults.Add(1)
	pkg.LogDebug(pkg.ComponentDevice, "invocation faulted", "invocation", id, "fault", f)
	d.send(protocol.Exception{
		Invocation: id,
		Code:       f.Code(),
		Token:      f.Token,
		Message:    f.Message,
	})
}

// result sends the return values as RESULT_CHUNK frames followed by
// RESULT_COMPLETE in one write.
func (d *Device) result(id uint16, vals []protocol.Value) {
	data := protocol.AppendValues(nil, vals...)
	chunks := protocol.SplitChunks(data, protocol.ChunkCapacity(d.maxMessage, protocol.ResultChunkOverhead))

	frames := make([]protocol.Frame, 0, len(chunks)+1)
	for i, c := range chunks {
		frames = append(frames, protocol.Marshal(protocol.ResultChunk{Invocation: id, Index: uint16(i), Data: c}))
	}
	frames = append(frames, protocol.Marshal(protocol.ResultComplete{Invocation: id, Count: uint16(len(chunks))}))

	if err := d.writer.WriteFrames(frames...); err != nil {
		pkg.LogWarn(pkg.ComponentDevice, "error sending result", "invocation", id, "error", err)
	}
}

func (d *Device) send(m protocol.Message) error {
	d.mutex.Lock()
	w := d.writer
	d.mutex.Unlock()
	if w == nil {
		return pkg.ErrNotConnected
	}
	if err := w.WriteMessage(m); err != nil {
		if d.ctx.Err() == nil {
			pkg.LogWarn(pkg.ComponentDevice, "error sending frame", "command", m.Command(), "error", err)
		}
		return err
	}
	return nil
}
