package host

import (
	"errors"
	"testing"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
)

func TestEstimateMemory(t *testing.T) {
	routines := []program.Routine{
		{ID: 1, MaxStack: 4, Args: 2, Locals: 1, Code: make([]byte, 100)},
		{ID: 2, MaxStack: 10, Args: 0, Locals: 6, Code: make([]byte, 20)},
	}
	constants := []program.Constant{{ID: 3, Data: make([]byte, 12)}}

	tests := []struct {
		name       string
		concurrent int
		heap       uint32
		want       MemoryEstimate
	}{
		{
			name:       "single",
			concurrent: 1,
			want: MemoryEstimate{
				Routines:    (40 + 8 + 4 + 100) + (40 + 0 + 24 + 20),
				Constants:   12 + 4,
				Reservation: 32 + 8*16,
				Total:       152 + 84 + 16 + 160,
			},
		},
		{
			name:       "concurrent with heap",
			concurrent: 3,
			heap:       256,
			want: MemoryEstimate{
				Routines:    236,
				Constants:   16,
				Reservation: 3 * 160,
				Heap:        256,
				Total:       236 + 16 + 480 + 256,
			},
		},
		{
			name:       "zero concurrency counts one frame",
			concurrent: 0,
			want: MemoryEstimate{
				Routines:    236,
				Constants:   16,
				Reservation: 160,
				Total:       412,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateMemory(routines, constants, tt.heap, tt.concurrent)
			if got != tt.want {
				t.Errorf("EstimateMemory() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEstimateRequiredMemoryFollowsConcurrency(t *testing.T) {
	set := NewExecutionSet("demo", program.Routine{ID: 1, MaxStack: 2, Code: []byte{1, 2, 3}})
	one := EstimateRequiredMemory(set)
	if one != set.EstimateRequiredMemory() {
		t.Fatalf("package and method estimates differ")
	}
	set.setConcurrency(4)
	four := set.EstimateRequiredMemory()
	frame := int64(FrameOverhead + SlotSize*2)
	if four-one != 3*frame {
		t.Errorf("estimate grew by %d, want %d", four-one, 3*frame)
	}
}

func TestFromImage(t *testing.T) {
	img := &program.Image{
		Name:        "blink",
		Routines:    []program.Routine{{ID: 7, Name: "Blink", Code: []byte{0}}},
		Constants:   []program.Constant{{ID: 8, Data: []byte("on")}},
		HeapReserve: 64,
	}
	set := FromImage(img)
	if set.Name() != "blink" {
		t.Errorf("Name() = %q", set.Name())
	}
	est := set.Estimate()
	if est.Heap != 64 || est.Constants != 6 {
		t.Errorf("Estimate() = %+v", est)
	}
	if r, ok := set.Routine(7); !ok || r.Name != "Blink" {
		t.Errorf("Routine(7) = %+v, %v", r, ok)
	}

	img.Routines[0].Name = "changed"
	if r, _ := set.Routine(7); r.Name != "Blink" {
		t.Error("set shares routine storage with the image")
	}
}

func TestExecutionSetTasks(t *testing.T) {
	set := NewExecutionSet("demo",
		program.Routine{ID: 1, Code: []byte{1}},
		program.Routine{ID: 2, Code: []byte{2}},
	)

	if _, err := set.NewTask(99); !errors.Is(err, pkg.ErrUnknownRoutine) {
		t.Errorf("NewTask(99) error = %v, want ErrUnknownRoutine", err)
	}

	a, err := set.NewTask(1)
	if err != nil {
		t.Fatal(err)
	}
	if a.State() != StatePrepared {
		t.Errorf("State() = %s, want Prepared", a.State())
	}
	b, _ := set.NewTask(2)
	if n := len(set.Tasks()); n != 2 {
		t.Errorf("len(Tasks()) = %d, want 2", n)
	}

	set.markLoaded(&Session{})
	if a.State() != StateLoaded || b.State() != StateLoaded {
		t.Errorf("states after load = %s, %s", a.State(), b.State())
	}
	c, _ := set.NewTask(1)
	if c.State() != StateLoaded {
		t.Errorf("task created after load = %s, want Loaded", c.State())
	}

	b.Dispose()
	if n := len(set.Tasks()); n != 2 {
		t.Errorf("len(Tasks()) after Dispose = %d, want 2", n)
	}
	if b.State() != StateLoaded {
		t.Errorf("disposed task state = %s, want Loaded", b.State())
	}
}

func TestAcquire(t *testing.T) {
	set := NewExecutionSet("demo",
		program.Routine{ID: 1, Code: []byte{1}},
		program.Routine{ID: 2, Code: []byte{2}},
		program.Routine{ID: 3, Code: []byte{3}},
	)
	set.setConcurrency(2)

	if err := set.acquire(1); err != nil {
		t.Fatal(err)
	}
	if err := set.acquire(1); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("same routine twice = %v, want ErrBusy", err)
	}
	if err := set.acquire(2); err != nil {
		t.Fatal(err)
	}
	if err := set.acquire(3); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("over concurrency = %v, want ErrBusy", err)
	}
	if set.Running() != 2 {
		t.Errorf("Running() = %d, want 2", set.Running())
	}
	set.releaseSlot(1)
	if err := set.acquire(3); err != nil {
		t.Errorf("after release = %v", err)
	}
}
