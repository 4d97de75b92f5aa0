package host

import "github.com/ardnew/softexec/program"

// MemoryEstimate breaks down the device memory an execution set needs.
type MemoryEstimate struct {
	Routines    int64 // Routine headers, argument and local descriptors, code
	Constants   int64 // Constant blobs and their headers
	Reservation int64 // Frames for concurrently running invocations
	Heap        int64 // Heap reserve declared by the image
	Total       int64
}

// EstimateMemory computes the footprint of routines, constants and heap
// when up to concurrent invocations of the largest routine may run.
func EstimateMemory(routines []program.Routine, constants []program.Constant, heap uint32, concurrent int) MemoryEstimate {
	var est MemoryEstimate
	largest := int64(0)
	for _, r := range routines {
		est.Routines += RoutineHeaderSize +
			ArgumentSize*int64(r.Args) +
			LocalSize*int64(r.Locals) +
			int64(len(r.Code))

		frame := FrameOverhead + SlotSize*int64(r.Slots())
		if frame > largest {
			largest = frame
		}
	}
	for _, c := range constants {
		est.Constants += int64(len(c.Data)) + ConstantHeaderSize
	}
	if concurrent < 1 {
		concurrent = 1
	}
	est.Reservation = largest * int64(concurrent)
	est.Heap = int64(heap)
	est.Total = est.Routines + est.Constants + est.Reservation + est.Heap
	return est
}

// EstimateRequiredMemory returns the total device bytes set needs at its
// configured concurrency.
func EstimateRequiredMemory(set *ExecutionSet) int64 {
	return set.Estimate().Total
}
