package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/softexec/codec"
	"github.com/ardnew/softexec/pkg"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"empty", 0, 10, []int{0}},
		{"exact", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"single", 3, 10, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xAB}, tt.n)
			chunks := SplitChunks(data, tt.size)
			if len(chunks) != len(tt.want) {
				t.Fatalf("SplitChunks() = %d chunks, want %d", len(chunks), len(tt.want))
			}
			for i, c := range chunks {
				if len(c) != tt.want[i] {
					t.Errorf("chunk %d len = %d, want %d", i, len(c), tt.want[i])
				}
			}
			if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
				t.Error("chunks do not join back to the input")
			}
		})
	}
}

func TestChunkCapacityFitsFrame(t *testing.T) {
	for _, maxFrame := range []int{64, 100, 1024, 4096} {
		n := ChunkCapacity(maxFrame, LoadChunkOverhead)
		if got := LoadChunkOverhead + codec.EncodedLen(n); got > maxFrame {
			t.Errorf("maxFrame %d: chunk of %d bytes makes a %d byte frame", maxFrame, n, got)
		}
		f := Marshal(LoadChunk{Seq: 1, Routine: 1, Index: 1, Count: 2, Data: make([]byte, n)})
		if f.Len() > maxFrame {
			t.Errorf("maxFrame %d: frame length %d", maxFrame, f.Len())
		}
	}
	if ChunkCapacity(4, LoadChunkOverhead) != 0 {
		t.Error("ChunkCapacity should clamp at 0")
	}
}

func TestReassembler(t *testing.T) {
	var r Reassembler
	for i, part := range [][]byte{{1, 2}, {3}, {4, 5}} {
		if err := r.Add(uint16(i), part); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	got, err := r.Complete(3)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Complete() = %v", got)
	}
}

func TestReassemblerSequenceErrors(t *testing.T) {
	tests := []struct {
		name    string
		indexes []uint16
		count   uint16
	}{
		{"missing", []uint16{0, 2}, 3},
		{"duplicate", []uint16{0, 0}, 2},
		{"out of order", []uint16{1, 0}, 2},
		{"count mismatch", []uint16{0, 1}, 3},
		{"early complete", []uint16{0, 1, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Reassembler
			var err error
			for _, idx := range tt.indexes {
				if err = r.Add(idx, []byte{byte(idx)}); err != nil {
					break
				}
			}
			if err == nil {
				_, err = r.Complete(tt.count)
			}
			if !errors.Is(err, pkg.ErrChunkSequence) {
				t.Errorf("error = %v, want ErrChunkSequence", err)
			}
		})
	}
}

func TestReassemblerLimit(t *testing.T) {
	r := Reassembler{Limit: 4}
	if err := r.Add(0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(1, []byte{4, 5}); !errors.Is(err, pkg.ErrFrameTooLong) {
		t.Errorf("error = %v, want ErrFrameTooLong", err)
	}
	r.Reset()
	if r.Chunks() != 0 {
		t.Error("Reset() kept chunks")
	}
}
