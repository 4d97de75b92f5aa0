package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softexec/pkg"
)

func TestMarshalWireBytes(t *testing.T) {
	f := Marshal(Ack{Seq: 5, Acked: CmdLoadChunk})
	got := f.AppendTo(nil)
	want := []byte{0x8E, 0x05, 0x00, 0x01, EndMarker}
	if !bytes.Equal(got, want) {
		t.Errorf("Ack wire = % X, want % X", got, want)
	}

	f = Marshal(QueryCapabilities{Seq: 0x81})
	got = f.AppendTo(nil)
	want = []byte{0x8A, 0x01, 0x01, EndMarker}
	if !bytes.Equal(got, want) {
		t.Errorf("QueryCapabilities wire = % X, want % X", got, want)
	}
}

func TestMarshalCatalogue(t *testing.T) {
	msgs := []Message{
		DeclareRoutine{Seq: 1, Routine: 0x0600_0001, Flags: 3, MaxStack: 12, Args: 2, Locals: 4, CodeLen: 300},
		LoadChunk{Seq: 2, Routine: 7, Index: 1, Count: 3, Data: []byte{0xFF, 0x00, 0x80}},
		LoadComplete{Seq: 3, Routines: 2, Memory: 123456},
		Invoke{Invocation: 9, Routine: 7},
		Invoke{Invocation: 10, Routine: 7, Args: []Value{Int32(-1), Float64(2.5), Bool(true)}},
		ResultChunk{Invocation: 9, Index: 0, Data: AppendValues(nil, Int32(42))},
		ResultComplete{Invocation: 9, Count: 1},
		Exception{Invocation: 9, Code: FaultIndexOutOfRange.Code(), Token: 0x0100_0002, Message: "index 5"},
		Log{Text: "hello"},
		ClearAll{Seq: 4, Hard: true},
		PinEvent{Pin: 13, Value: 1},
		QueryCapabilities{Seq: 5},
		Capabilities{Seq: 5, ProtocolVersion: 1, IntSize: 4, PointerSize: 4, FlashSize: 1 << 20, FlashUsed: 4096, RAMSize: 320 << 10, MaxMessageSize: 1024},
		Kill{Seq: 6, Invocation: 9},
		Ack{Seq: 7, Acked: CmdClearAll},
		Nack{Seq: 8, Acked: CmdLoadChunk, Error: pkg.CommandErrorChunkSequence},
	}
	for _, m := range msgs {
		t.Run(m.Command().String(), func(t *testing.T) {
			f := Marshal(m)
			require.NoError(t, f.Validate())
			assert.Equal(t, m.Command(), f.Command())

			got, err := Unmarshal(f)
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	// Truncated ACK.
	_, err := Unmarshal(NewFrame(CmdAck, []byte{0x01}))
	assert.ErrorIs(t, err, pkg.ErrMalformed)

	// Trailing byte after a fixed layout.
	_, err = Unmarshal(NewFrame(CmdQueryCapabilities, []byte{0x01, 0x00, 0x00}))
	assert.ErrorIs(t, err, pkg.ErrMalformed)

	// Blob with invalid padding.
	_, err = Unmarshal(NewFrame(CmdLog, []byte{0x7F, 0x7F}))
	assert.ErrorIs(t, err, pkg.ErrPadding)

	// Invoke carrying an unknown value kind.
	bad := NewBuilder(CmdInvoke).Uint14(1).Uint32(1).Blob([]byte{0x63, 0, 0, 0, 0}).Frame()
	_, err = Unmarshal(bad)
	assert.ErrorIs(t, err, pkg.ErrMalformed)

	_, err = Unmarshal(NewFrame(Command(0xE0), nil))
	assert.ErrorIs(t, err, pkg.ErrUnknownCommand)
}

func TestNackErr(t *testing.T) {
	err := Nack{Seq: 1, Acked: CmdLoadChunk, Error: pkg.CommandErrorChunkSequence}.Err()
	assert.True(t, errors.Is(err, pkg.ErrNack))
	assert.True(t, errors.Is(err, pkg.ErrChunkSequence))

	err = Nack{Seq: 1, Acked: CmdInvoke}.Err()
	assert.True(t, errors.Is(err, pkg.ErrNack))
}

func TestFrameValidate(t *testing.T) {
	assert.ErrorIs(t, NewFrame(CmdLog, []byte{0x80}).Validate(), pkg.ErrHighBit)
	assert.ErrorIs(t, NewFrame(Command(0x8D), nil).Validate(), pkg.ErrUnknownCommand)
	assert.NoError(t, NewFrame(CmdLog, nil).Validate())
}

func TestFrameImmutable(t *testing.T) {
	payload := []byte{1, 2, 3}
	f := NewFrame(CmdLog, payload)
	payload[0] = 0x7F
	assert.Equal(t, byte(1), f.Payload()[0])
}

func TestFrameWriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := Marshal(Kill{Seq: 1, Invocation: 2}).WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	assert.Equal(t, []byte{0x8C, 0x01, 0x00, 0x02, 0x00, EndMarker}, buf.Bytes())
}

func TestCommandCatalogue(t *testing.T) {
	for c := 0x80; c < 0xF0; c++ {
		cmd := Command(c)
		if !IsCommandByte(byte(c)) {
			t.Errorf("IsCommandByte(0x%02X) = false", c)
		}
		if cmd.Known() && cmd.String() == "" {
			t.Errorf("%02X has no name", c)
		}
	}
	for _, b := range []byte{0x00, 0x7F, EndMarker, 0xF0, 0xFF} {
		if IsCommandByte(b) {
			t.Errorf("IsCommandByte(0x%02X) = true", b)
		}
	}
	if Command(0x8D).Known() {
		t.Error("0x8D should not be a known command")
	}
	if !CmdException.Terminal() || !CmdResultComplete.Terminal() || CmdResultChunk.Terminal() {
		t.Error("Terminal() classification wrong")
	}
}

func TestFaultCodes(t *testing.T) {
	tests := []struct {
		code uint32
		want FaultKind
	}{
		{0, FaultUnknown},
		{FaultDivideByZero.Code(), FaultDivideByZero},
		{FaultKilled.Code(), FaultKilled},
		{FaultTimeout.Code(), FaultUnknown},
		{FaultConnection.Code(), FaultUnknown},
		{FaultReset.Code(), FaultUnknown},
		{0x3F, FaultUnknown},
		{CustomCodeBase, FaultCustomException},
		{0x0200_0001, FaultCustomException},
	}
	for _, tt := range tests {
		if got := FaultFromCode(tt.code); got != tt.want {
			t.Errorf("FaultFromCode(%#x) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if FaultOutOfMemory.Local() || !FaultTimeout.Local() {
		t.Error("Local() classification wrong")
	}
}

func TestSequencerSkipsZero(t *testing.T) {
	var s Sequencer
	s.last = 0x3FFE
	assert.Equal(t, uint16(0x3FFF), s.Next())
	assert.Equal(t, uint16(1), s.Next())
	assert.Equal(t, uint16(2), s.Next())
}
