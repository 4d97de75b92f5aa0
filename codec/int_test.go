package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/ardnew/softexec/pkg"
)

func TestUint14RoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x7F, 0x80, 0x1234, MaxUint14} {
		p := AppendUint14(nil, v)
		if len(p) != Uint14Size || !Valid(p) {
			t.Fatalf("AppendUint14(%d) = % X", v, p)
		}
		got, err := Uint14(p)
		if err != nil {
			t.Fatalf("Uint14() error = %v", err)
		}
		if got != v {
			t.Errorf("Uint14 round trip = %d, want %d", got, v)
		}
	}
}

func TestUint14Truncates(t *testing.T) {
	got, _ := Uint14(AppendUint14(nil, 0xFFFF))
	if got != MaxUint14 {
		t.Errorf("Uint14(0xFFFF) = %d, want %d", got, MaxUint14)
	}
}

func TestUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x7F, 0x80, 0xDEADBEEF, math.MaxUint32} {
		p := AppendUint32(nil, v)
		if len(p) != Uint32Size || !Valid(p) {
			t.Fatalf("AppendUint32(%d) = % X", v, p)
		}
		got, err := Uint32(p)
		if err != nil {
			t.Fatalf("Uint32() error = %v", err)
		}
		if got != v {
			t.Errorf("Uint32 round trip = %#x, want %#x", got, v)
		}
	}
}

func TestIntErrors(t *testing.T) {
	if _, err := Uint14([]byte{0x01}); !errors.Is(err, pkg.ErrMalformed) {
		t.Errorf("short Uint14 error = %v", err)
	}
	if _, err := Uint14([]byte{0x81, 0x00}); !errors.Is(err, pkg.ErrHighBit) {
		t.Errorf("high bit Uint14 error = %v", err)
	}
	if _, err := Uint32([]byte{0, 0, 0, 0}); !errors.Is(err, pkg.ErrMalformed) {
		t.Errorf("short Uint32 error = %v", err)
	}
	if _, err := Uint32([]byte{0, 0, 0, 0, 0x10}); !errors.Is(err, pkg.ErrMalformed) {
		t.Errorf("overflow Uint32 error = %v", err)
	}
}
