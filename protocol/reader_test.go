package protocol

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softexec/pkg"
)

func wire(msgs ...Message) []byte {
	var out []byte
	for _, m := range msgs {
		out = Marshal(m).AppendTo(out)
	}
	return out
}

func readAll(t *testing.T, r *Reader) []Message {
	t.Helper()
	var msgs []Message
	for {
		f, err := r.ReadFrame()
		if errors.Is(err, io.EOF) {
			return msgs
		}
		require.NoError(t, err)
		m, err := Unmarshal(f)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
}

func TestReaderFramesAndText(t *testing.T) {
	var stream []byte
	stream = append(stream, "boot ok\r\n"...)
	stream = append(stream, wire(Ack{Seq: 1, Acked: CmdClearAll})...)
	stream = append(stream, "partial "...)
	stream = append(stream, wire(ResultComplete{Invocation: 3, Count: 0})...)
	stream = append(stream, "line\n"...)

	var lines []string
	r := NewReader(bytes.NewReader(stream), WithOnText(func(s string) { lines = append(lines, s) }))
	msgs := readAll(t, r)

	assert.Equal(t, []Message{
		Ack{Seq: 1, Acked: CmdClearAll},
		ResultComplete{Invocation: 3, Count: 0},
	}, msgs)
	assert.Equal(t, []string{"boot ok", "partial line"}, lines)
	assert.EqualValues(t, len(stream), r.BytesRead())
	assert.EqualValues(t, 2, r.FramesRead())
	assert.Zero(t, r.Dropped())
}

func TestReaderResync(t *testing.T) {
	tests := []struct {
		name string
		junk []byte
		want error
	}{
		{"interrupted", []byte{byte(CmdResultChunk), 0x01, 0x00}, pkg.ErrFraming},
		{"unknown command", []byte{0x8D, 0x01, 0x02, EndMarker}, pkg.ErrUnknownCommand},
		{"reserved byte", []byte{byte(CmdLog), 0x01, 0xF5, 0x02, EndMarker}, pkg.ErrFraming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append(append([]byte(nil), tt.junk...), wire(Ack{Seq: 9, Acked: CmdKill})...)
			var drops []error
			r := NewReader(bytes.NewReader(stream), WithOnDrop(func(err error) { drops = append(drops, err) }))
			msgs := readAll(t, r)

			assert.Equal(t, []Message{Ack{Seq: 9, Acked: CmdKill}}, msgs)
			require.Len(t, drops, 1)
			assert.ErrorIs(t, drops[0], tt.want)
			assert.EqualValues(t, 1, r.Dropped())
		})
	}
}

func TestReaderFrameTooLong(t *testing.T) {
	long := Marshal(Log{Text: string(bytes.Repeat([]byte("x"), 200))}).AppendTo(nil)
	stream := append(long, wire(Ack{Seq: 2, Acked: CmdInvoke})...)

	var drops []error
	r := NewReader(bytes.NewReader(stream),
		WithMaxFrameLen(64),
		WithOnDrop(func(err error) { drops = append(drops, err) }))
	msgs := readAll(t, r)

	assert.Equal(t, []Message{Ack{Seq: 2, Acked: CmdInvoke}}, msgs)
	require.Len(t, drops, 1)
	assert.ErrorIs(t, drops[0], pkg.ErrFrameTooLong)
}

func TestReaderStrayEndMarker(t *testing.T) {
	stream := append([]byte{EndMarker, 0xFF}, wire(Log{Text: "ok"})...)
	msgs := readAll(t, NewReader(bytes.NewReader(stream)))
	assert.Equal(t, []Message{Log{Text: "ok"}}, msgs)
}

func TestReaderTruncatedFrame(t *testing.T) {
	stream := Marshal(Log{Text: "cut"}).AppendTo(nil)
	r := NewReader(bytes.NewReader(stream[:len(stream)-1]))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

type lockedBuffer struct {
	mutex  sync.Mutex
	buf    bytes.Buffer
	writes int
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.writes++
	return b.buf.Write(p)
}

func TestWriterConcurrent(t *testing.T) {
	const (
		writers = 8
		each    = 50
	)
	var out lockedBuffer
	w := NewWriter(&out)

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range each {
				m := ResultChunk{Invocation: uint16(i + 1), Index: uint16(j), Data: bytes.Repeat([]byte{byte(j)}, 40)}
				assert.NoError(t, w.WriteMessage(m))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, writers*each, w.FramesWritten())
	assert.EqualValues(t, out.buf.Len(), w.BytesWritten())
	assert.Equal(t, writers*each, out.writes)

	next := make(map[uint16]uint16)
	r := NewReader(bytes.NewReader(out.buf.Bytes()))
	for _, m := range readAll(t, r) {
		rc := m.(ResultChunk)
		assert.Equal(t, next[rc.Invocation], rc.Index)
		next[rc.Invocation]++
	}
	assert.Len(t, next, writers)
	assert.Zero(t, r.Dropped())
}

func TestWriterRejectsInvalidFrame(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	err := w.WriteFrame(NewFrame(CmdLog, []byte{0x80}))
	assert.ErrorIs(t, err, pkg.ErrHighBit)
	assert.Zero(t, out.Len())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriterError(t *testing.T) {
	w := NewWriter(failWriter{})
	err := w.WriteMessage(Log{Text: "x"})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Zero(t, w.FramesWritten())
}
