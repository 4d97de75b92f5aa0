package device

import (
	"fmt"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// declaration is one routine or constant being uploaded.
type declaration struct {
	routine  program.Routine
	codeLen  int
	reasm    protocol.Reassembler
	complete bool
}

// store holds the uploaded program.
type store struct {
	decls map[uint32]*declaration
	order []uint32
}

func newStore() *store {
	return &store{decls: make(map[uint32]*declaration)}
}

func (s *store) declare(m protocol.DeclareRoutine) pkg.CommandError {
	if _, ok := s.decls[m.Routine]; ok {
		return pkg.CommandErrorInvalidArguments
	}
	d := &declaration{
		routine: program.Routine{
			ID:       m.Routine,
			Flags:    program.Flags(m.Flags),
			MaxStack: m.MaxStack,
			Args:     m.Args,
			Locals:   m.Locals,
		},
		codeLen: int(m.CodeLen),
	}
	d.reasm.Limit = d.codeLen
	d.complete = d.codeLen == 0 || d.routine.Flags.Has(program.FlagNative)
	s.decls[m.Routine] = d
	s.order = append(s.order, m.Routine)
	return pkg.CommandErrorNone
}

func (s *store) chunk(m protocol.LoadChunk) (pkg.CommandError, error) {
	d, ok := s.decls[m.Routine]
	if !ok {
		return pkg.CommandErrorUnknownRoutine, fmt.Errorf("%w: 0x%08X", pkg.ErrUnknownRoutine, m.Routine)
	}
	if d.complete {
		return pkg.CommandErrorChunkSequence, fmt.Errorf("%w: 0x%08X already complete", pkg.ErrChunkSequence, m.Routine)
	}
	if err := d.reasm.Add(m.Index, m.Data); err != nil {
		return pkg.CommandErrorChunkSequence, err
	}
	if m.Index+1 < m.Count {
		return pkg.CommandErrorNone, nil
	}
	code, err := d.reasm.Complete(m.Count)
	if err != nil {
		return pkg.CommandErrorChunkSequence, err
	}
	if len(code) != d.codeLen {
		return pkg.CommandErrorInvalidArguments, fmt.Errorf("%w: 0x%08X has %d bytes, declared %d",
			pkg.ErrInvalidParameter, m.Routine, len(code), d.codeLen)
	}
	d.routine.Code = code
	d.complete = true
	return pkg.CommandErrorNone, nil
}

// verify checks that count declarations arrived and every one is complete.
func (s *store) verify(count uint16) error {
	if int(count) != len(s.order) {
		return fmt.Errorf("%w: %d declarations, host announced %d", pkg.ErrInvalidParameter, len(s.order), count)
	}
	for _, id := range s.order {
		if !s.decls[id].complete {
			return fmt.Errorf("%w: 0x%08X incomplete", pkg.ErrChunkSequence, id)
		}
	}
	return nil
}

// size returns the RAM the program occupies.
func (s *store) size() int64 {
	var n int64
	for _, d := range s.decls {
		r := d.routine
		if r.Flags.Has(program.FlagConstant) {
			n += ConstantHeaderSize + int64(len(r.Code))
			continue
		}
		n += RoutineHeaderSize + ArgumentSize*int64(r.Args) + LocalSize*int64(r.Locals) + int64(len(r.Code))
	}
	return n
}

func (s *store) routine(id uint32) (program.Routine, bool) {
	d, ok := s.decls[id]
	if !ok || d.routine.Flags.Has(program.FlagConstant) {
		return program.Routine{}, false
	}
	return d.routine, true
}

func (s *store) constant(id uint32) ([]byte, bool) {
	d, ok := s.decls[id]
	if !ok || !d.routine.Flags.Has(program.FlagConstant) {
		return nil, false
	}
	return d.routine.Code, true
}
