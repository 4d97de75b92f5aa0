package protocol

import (
	"errors"
	"fmt"

	"github.com/ardnew/softexec/pkg"
)

// Message is the typed form of one frame.
type Message interface {
	Command() Command
	build(b *Builder)
}

// Sequenced is implemented by messages that carry a sequence number used to
// pair requests with replies.
type Sequenced interface {
	Message
	Sequence() uint16
}

// Correlated is implemented by messages that belong to one invocation.
type Correlated interface {
	Message
	InvocationID() uint16
}

// DeclareRoutine announces a routine and the size of its code.
type DeclareRoutine struct {
	Seq      uint16
	Routine  uint32
	Flags    uint16
	MaxStack uint16
	Args     uint16
	Locals   uint16
	CodeLen  uint32
}

// LoadChunk carries one chunk of a routine's code.
type LoadChunk struct {
	Seq     uint16
	Routine uint32
	Index   uint16
	Count   uint16
	Data    []byte
}

// LoadComplete ends an upload.
type LoadComplete struct {
	Seq      uint16
	Routines uint16
	Memory   uint32
}

// Invoke starts a routine. An empty Args is a plain invoke.
type Invoke struct {
	Invocation uint16
	Routine    uint32
	Args       []Value
}

// ResultChunk carries part of an invocation's encoded return values.
type ResultChunk struct {
	Invocation uint16
	Index      uint16
	Data       []byte
}

// ResultComplete ends a successful invocation after Count result chunks.
type ResultComplete struct {
	Invocation uint16
	Count      uint16
}

// Exception reports that an invocation faulted.
type Exception struct {
	Invocation uint16
	Code       uint32
	Token      uint32
	Message    string
}

// Log carries diagnostic text from the device.
type Log struct {
	Text string
}

// ClearAll asks the device to drop its program and every task.
type ClearAll struct {
	Seq  uint16
	Hard bool
}

// PinEvent reports an asynchronous pin or sensor change.
type PinEvent struct {
	Pin   uint16
	Value uint32
}

// QueryCapabilities asks for the device limits.
type QueryCapabilities struct {
	Seq uint16
}

// Capabilities describes the device.
type Capabilities struct {
	Seq             uint16
	ProtocolVersion uint16
	IntSize         uint8
	PointerSize     uint8
	FlashSize       uint32
	FlashUsed       uint32
	RAMSize         uint32
	MaxMessageSize  uint16
}

// Kill asks the device to terminate a running invocation.
type Kill struct {
	Seq        uint16
	Invocation uint16
}

// Ack acknowledges the sequenced command Seq.
type Ack struct {
	Seq   uint16
	Acked Command
}

// Nack rejects the sequenced command Seq.
type Nack struct {
	Seq   uint16
	Acked Command
	Error pkg.CommandError
}

func (DeclareRoutine) Command() Command    { return CmdDeclareRoutine }
func (LoadChunk) Command() Command         { return CmdLoadChunk }
func (LoadComplete) Command() Command      { return CmdLoadComplete }
func (Invoke) Command() Command            { return CmdInvoke }
func (ResultChunk) Command() Command       { return CmdResultChunk }
func (ResultComplete) Command() Command    { return CmdResultComplete }
func (Exception) Command() Command         { return CmdException }
func (Log) Command() Command               { return CmdLog }
func (ClearAll) Command() Command          { return CmdClearAll }
func (PinEvent) Command() Command          { return CmdPinEvent }
func (QueryCapabilities) Command() Command { return CmdQueryCapabilities }
func (Capabilities) Command() Command      { return CmdCapabilities }
func (Kill) Command() Command              { return CmdKill }
func (Ack) Command() Command               { return CmdAck }
func (Nack) Command() Command              { return CmdNack }

func (m DeclareRoutine) Sequence() uint16    { return m.Seq }
func (m LoadChunk) Sequence() uint16         { return m.Seq }
func (m LoadComplete) Sequence() uint16      { return m.Seq }
func (m ClearAll) Sequence() uint16          { return m.Seq }
func (m QueryCapabilities) Sequence() uint16 { return m.Seq }
func (m Capabilities) Sequence() uint16      { return m.Seq }
func (m Kill) Sequence() uint16              { return m.Seq }
func (m Ack) Sequence() uint16               { return m.Seq }
func (m Nack) Sequence() uint16              { return m.Seq }

func (m Invoke) InvocationID() uint16         { return m.Invocation }
func (m ResultChunk) InvocationID() uint16    { return m.Invocation }
func (m ResultComplete) InvocationID() uint16 { return m.Invocation }
func (m Exception) InvocationID() uint16      { return m.Invocation }

// Kind returns the fault kind named by the exception code.
func (m Exception) Kind() FaultKind {
	return FaultFromCode(m.Code)
}

// Err returns the NACK as an error matching pkg.ErrNack and the sentinel for
// the device error code.
func (m Nack) Err() error {
	cause := m.Error.Error()
	if cause == nil || errors.Is(cause, pkg.ErrNack) {
		return fmt.Errorf("%s seq %d: %w", m.Acked, m.Seq, pkg.ErrNack)
	}
	return fmt.Errorf("%s seq %d: %w: %w", m.Acked, m.Seq, pkg.ErrNack, cause)
}

func (m DeclareRoutine) build(b *Builder) {
	b.Uint14(m.Seq).Uint32(m.Routine).Uint14(m.Flags).Uint14(m.MaxStack).
		Uint14(m.Args).Uint14(m.Locals).Uint32(m.CodeLen)
}

func (m LoadChunk) build(b *Builder) {
	b.Uint14(m.Seq).Uint32(m.Routine).Uint14(m.Index).Uint14(m.Count).Blob(m.Data)
}

func (m LoadComplete) build(b *Builder) {
	b.Uint14(m.Seq).Uint14(m.Routines).Uint32(m.Memory)
}

func (m Invoke) build(b *Builder) {
	b.Uint14(m.Invocation).Uint32(m.Routine).Blob(AppendValues(nil, m.Args...))
}

func (m ResultChunk) build(b *Builder) {
	b.Uint14(m.Invocation).Uint14(m.Index).Blob(m.Data)
}

func (m ResultComplete) build(b *Builder) {
	b.Uint14(m.Invocation).Uint14(m.Count)
}

func (m Exception) build(b *Builder) {
	b.Uint14(m.Invocation).Uint32(m.Code).Uint32(m.Token).Blob([]byte(m.Message))
}

func (m Log) build(b *Builder) {
	b.Blob([]byte(m.Text))
}

func (m ClearAll) build(b *Builder) {
	b.Uint14(m.Seq).Bool(m.Hard)
}

func (m PinEvent) build(b *Builder) {
	b.Uint14(m.Pin).Uint32(m.Value)
}

func (m QueryCapabilities) build(b *Builder) {
	b.Uint14(m.Seq)
}

func (m Capabilities) build(b *Builder) {
	b.Uint14(m.Seq).Uint14(m.ProtocolVersion).Byte(m.IntSize).Byte(m.PointerSize).
		Uint32(m.FlashSize).Uint32(m.FlashUsed).Uint32(m.RAMSize).Uint14(m.MaxMessageSize)
}

func (m Kill) build(b *Builder) {
	b.Uint14(m.Seq).Uint14(m.Invocation)
}

func (m Ack) build(b *Builder) {
	b.Uint14(m.Seq).Byte(uint8(m.Acked))
}

func (m Nack) build(b *Builder) {
	b.Uint14(m.Seq).Byte(uint8(m.Acked)).Byte(uint8(m.Error))
}

// Marshal encodes m as a frame.
func Marshal(m Message) Frame {
	b := NewBuilder(m.Command())
	m.build(b)
	return b.Frame()
}

// Unmarshal decodes a frame into its typed message.
func Unmarshal(f Frame) (Message, error) {
	p := NewParser(f)
	var m Message
	switch f.Command() {
	case CmdDeclareRoutine:
		m = DeclareRoutine{
			Seq:      p.Uint14(),
			Routine:  p.Uint32(),
			Flags:    p.Uint14(),
			MaxStack: p.Uint14(),
			Args:     p.Uint14(),
			Locals:   p.Uint14(),
			CodeLen:  p.Uint32(),
		}
	case CmdLoadChunk:
		m = LoadChunk{
			Seq:     p.Uint14(),
			Routine: p.Uint32(),
			Index:   p.Uint14(),
			Count:   p.Uint14(),
			Data:    p.Blob(),
		}
	case CmdLoadComplete:
		m = LoadComplete{Seq: p.Uint14(), Routines: p.Uint14(), Memory: p.Uint32()}
	case CmdInvoke:
		inv := Invoke{Invocation: p.Uint14(), Routine: p.Uint32()}
		raw := p.Blob()
		if p.Err() == nil {
			args, err := ParseValues(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Command(), err)
			}
			inv.Args = args
		}
		m = inv
	case CmdResultChunk:
		m = ResultChunk{Invocation: p.Uint14(), Index: p.Uint14(), Data: p.Blob()}
	case CmdResultComplete:
		m = ResultComplete{Invocation: p.Uint14(), Count: p.Uint14()}
	case CmdException:
		m = Exception{
			Invocation: p.Uint14(),
			Code:       p.Uint32(),
			Token:      p.Uint32(),
			Message:    string(p.Blob()),
		}
	case CmdLog:
		m = Log{Text: string(p.Blob())}
	case CmdClearAll:
		m = ClearAll{Seq: p.Uint14(), Hard: p.Bool()}
	case CmdPinEvent:
		m = PinEvent{Pin: p.Uint14(), Value: p.Uint32()}
	case CmdQueryCapabilities:
		m = QueryCapabilities{Seq: p.Uint14()}
	case CmdCapabilities:
		m = Capabilities{
			Seq:             p.Uint14(),
			ProtocolVersion: p.Uint14(),
			IntSize:         p.Byte(),
			PointerSize:     p.Byte(),
			FlashSize:       p.Uint32(),
			FlashUsed:       p.Uint32(),
			RAMSize:         p.Uint32(),
			MaxMessageSize:  p.Uint14(),
		}
	case CmdKill:
		m = Kill{Seq: p.Uint14(), Invocation: p.Uint14()}
	case CmdAck:
		m = Ack{Seq: p.Uint14(), Acked: Command(p.Byte() | CommandFlag)}
	case CmdNack:
		m = Nack{
			Seq:   p.Uint14(),
			Acked: Command(p.Byte() | CommandFlag),
			Error: pkg.CommandError(p.Byte()),
		}
	default:
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnknownCommand, f.Command())
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
