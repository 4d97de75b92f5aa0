package protocol

import (
	"sync"

	"github.com/ardnew/softexec/codec"
)

// MaxSequence is the number of distinct identifiers a Sequencer yields.
const MaxSequence = codec.MaxUint14

// Sequencer hands out 14-bit identifiers that wrap around and never yield 0.
type Sequencer struct {
	mutex sync.Mutex
	last  uint16
}

// Next returns the next identifier.
func (s *Sequencer) Next() uint16 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.last = (s.last + 1) & codec.MaxUint14
	if s.last == 0 {
		s.last = 1
	}
	return s.last
}
