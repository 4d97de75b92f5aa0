package protocol

import (
	"fmt"

	"github.com/ardnew/softexec/codec"
	"github.com/ardnew/softexec/pkg"
)

// Fixed frame bytes (command, end marker and integer fields) around the data
// blob of each chunked message.
const (
	LoadChunkOverhead   = 2 + codec.Uint14Size + codec.Uint32Size + 2*codec.Uint14Size
	ResultChunkOverhead = 2 + 3*codec.Uint14Size
)

// MaxChunks is the largest chunk count a 14-bit count field can carry.
const MaxChunks = codec.MaxUint14

// ChunkCapacity returns how many raw bytes fit in one chunk of a frame with
// the given fixed overhead when frames are limited to maxFrame bytes.
func ChunkCapacity(maxFrame, overhead int) int {
	n := (maxFrame - overhead) * 7 / 8
	if n < 0 {
		return 0
	}
	return n
}

// SplitChunks cuts data into pieces of at most size bytes. Empty data yields
// a single empty chunk so every transfer carries at least one frame.
func SplitChunks(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return [][]byte{data[:0:0]}
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		chunks = append(chunks, data[:size:size])
		data = data[size:]
	}
	return append(chunks, data)
}

// Reassembler joins chunks that must arrive in index order starting at 0.
// The zero value is ready to use.
type Reassembler struct {
	next  uint16
	buf   []byte
	Limit int // maximum reassembled size, 0 for none
}

// Add appends chunk index. Gaps, duplicates and reordering return
// pkg.ErrChunkSequence.
func (r *Reassembler) Add(index uint16, data []byte) error {
	if index != r.next {
		return fmt.Errorf("%w: got chunk %d, want %d", pkg.ErrChunkSequence, index, r.next)
	}
	if r.Limit > 0 && len(r.buf)+len(data) > r.Limit {
		return fmt.Errorf("%w: reassembled payload exceeds %d bytes", pkg.ErrFrameTooLong, r.Limit)
	}
	r.buf = append(r.buf, data...)
	r.next++
	return nil
}

// Chunks returns the number of chunks accepted so far.
func (r *Reassembler) Chunks() int {
	return int(r.next)
}

// Complete returns the joined data if exactly count chunks were added.
func (r *Reassembler) Complete(count uint16) ([]byte, error) {
	if count != r.next {
		return nil, fmt.Errorf("%w: completed with %d chunks, received %d", pkg.ErrChunkSequence, count, r.next)
	}
	return r.buf, nil
}

// Reset discards all chunks.
func (r *Reassembler) Reset() {
	r.next = 0
	r.buf = nil
}
