package host

import (
	"context"
	"fmt"
	"math"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// Load uploads set to the device and makes it the active program.
//
// Admission runs first: another active set or a partial upload fails with
// pkg.ErrProgramActive, and a set whose estimate exceeds the memory budget
// fails with pkg.ErrProgramTooLarge unless admission is advisory. Each
// declaration, chunk and the final LOAD_COMPLETE waits for its ACK. On
// success every Prepared task of set becomes Loaded. On failure the error
// wraps pkg.ErrUploadFailed and the device is marked as holding a partial
// program until ClearAll.
//
// Loading the set that is already active does nothing.
func (s *Session) Load(ctx context.Context, set *ExecutionSet) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	s.mutex.Lock()
	active, partial := s.active, s.partial
	s.mutex.Unlock()

	switch {
	case active == set:
		return nil
	case active != nil:
		return fmt.Errorf("%w: %q is loaded", pkg.ErrProgramActive, active.Name())
	case partial:
		return fmt.Errorf("%w: device holds a partial program", pkg.ErrProgramActive)
	}

	set.setConcurrency(s.config.MaxConcurrentTasks)
	est := set.Estimate()

	if s.config.MemoryBudget > 0 {
		if err := s.admit(set, est, s.config.MemoryBudget); err != nil {
			return err
		}
	}

	maxMessage := s.config.MaxMessageSize
	caps, err := s.QueryCapabilities(ctx)
	switch {
	case err == nil:
		if caps.MaxMessageSize > 0 {
			maxMessage = int(caps.MaxMessageSize)
		}
		if s.config.MemoryBudget <= 0 && caps.RAMSize > 0 {
			if err := s.admit(set, est, int64(caps.RAMSize)); err != nil {
				return err
			}
		}
	case s.config.MemoryBudget > 0:
		pkg.LogWarn(pkg.ComponentUpload, "capability query failed, using defaults", "session", s.id, "error", err)
	default:
		return fmt.Errorf("%w: %w", pkg.ErrUploadFailed, err)
	}

	size := protocol.ChunkCapacity(maxMessage, protocol.LoadChunkOverhead)
	if size < 1 {
		return fmt.Errorf("%w: message size %d too small for a chunk", pkg.ErrInvalidParameter, maxMessage)
	}

	s.mutex.Lock()
	s.partial = true
	s.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentUpload, "upload started", "session", s.id, "set", set.Name(),
		"routines", len(set.routines), "constants", len(set.constants), "memory", est.Total, "chunk", size)

	if err := s.upload(ctx, set, est, size); err != nil {
		pkg.LogWarn(pkg.ComponentUpload, "upload failed", "session", s.id, "set", set.Name(), "error", err)
		return fmt.Errorf("%w: %q: %w", pkg.ErrUploadFailed, set.Name(), err)
	}

	s.mutex.Lock()
	s.partial = false
	s.active = set
	s.mutex.Unlock()
	set.markLoaded(s)

	pkg.LogInfo(pkg.ComponentUpload, "upload complete", "session", s.id, "set", set.Name())
	return nil
}

// admit checks est against budget.
func (s *Session) admit(set *ExecutionSet, est MemoryEstimate, budget int64) error {
	if est.Total <= budget {
		return nil
	}
	if s.config.Admission == AdmissionAdvisory {
		pkg.LogWarn(pkg.ComponentUpload, "program exceeds memory budget", "session", s.id,
			"set", set.Name(), "required", est.Total, "budget", budget)
		return nil
	}
	return fmt.Errorf("%w: %q needs %d bytes, budget is %d",
		pkg.ErrProgramTooLarge, set.Name(), est.Total, budget)
}

func (s *Session) upload(ctx context.Context, set *ExecutionSet, est MemoryEstimate, size int) error {
	timeout := s.config.UploadTimeout
	declared := 0

	for _, r := range set.routines {
		if err := s.declare(ctx, r.ID, r.Flags, r.MaxStack, r.Args, r.Locals, r.Code, size); err != nil {
			return fmt.Errorf("routine 0x%08X: %w", r.ID, err)
		}
		declared++
	}
	for _, c := range set.constants {
		if err := s.declare(ctx, c.ID, program.FlagConstant, 0, 0, 0, c.Data, size); err != nil {
			return fmt.Errorf("constant 0x%08X: %w", c.ID, err)
		}
		declared++
	}

	memory := est.Total
	if memory > math.MaxUint32 {
		memory = math.MaxUint32
	}
	return s.expectAck(ctx, timeout, protocol.LoadComplete{
		Seq:      s.seq.Next(),
		Routines: uint16(declared),
		Memory:   uint32(memory),
	})
}

// declare sends one DECLARE_ROUTINE followed by the chunks of data.
func (s *Session) declare(ctx context.Context, id uint32, flags program.Flags, maxStack, args, locals uint16, data []byte, size int) error {
	timeout := s.config.UploadTimeout

	err := s.expectAck(ctx, timeout, protocol.DeclareRoutine{
		Seq:      s.seq.Next(),
		Routine:  id,
		Flags:    uint16(flags),
		MaxStack: maxStack,
		Args:     args,
		Locals:   locals,
		CodeLen:  uint32(len(data)),
	})
	if err != nil || len(data) == 0 || flags.Has(program.FlagNative) {
		return err
	}

	chunks := protocol.SplitChunks(data, size)
	if len(chunks) > protocol.MaxChunks {
		return fmt.Errorf("%w: %d chunks", pkg.ErrFrameTooLong, len(chunks))
	}
	for i, c := range chunks {
		err := s.expectAck(ctx, timeout, protocol.LoadChunk{
			Seq:     s.seq.Next(),
			Routine: id,
			Index:   uint16(i),
			Count:   uint16(len(chunks)),
			Data:    c,
		})
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	pkg.LogDebug(pkg.ComponentUpload, "declared", "session", s.id, "id", id, "bytes", len(data), "chunks", len(chunks))
	return nil
}
