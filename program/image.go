package program

import (
	"fmt"

	"github.com/ardnew/softexec/codec"
	"github.com/ardnew/softexec/pkg"
)

// Flags describe how the device treats a declared routine.
type Flags uint16

// Routine flags.
const (
	FlagNative   Flags = 1 << iota // Implemented by firmware; no code is uploaded
	FlagVoid                       // Returns no values
	FlagStatic                     // No implicit receiver argument
	FlagConstant                   // Declaration carries a constant blob, not code
)

// Has reports whether all bits of mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Routine is one compiled routine.
type Routine struct {
	ID       uint32 `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint,omitempty"`
	Flags    Flags  `cbor:"3,keyasint,omitempty"`
	MaxStack uint16 `cbor:"4,keyasint"`
	Args     uint16 `cbor:"5,keyasint"`
	Locals   uint16 `cbor:"6,keyasint"`
	Code     []byte `cbor:"7,keyasint,omitempty"`
}

// Slots returns the number of value slots an invocation of r occupies.
func (r Routine) Slots() int {
	return int(r.MaxStack) + int(r.Args) + int(r.Locals)
}

// Constant is a read-only data blob referenced by routines.
type Constant struct {
	ID   uint32 `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// Image is the compiler output for one program.
type Image struct {
	Name        string     `cbor:"1,keyasint"`
	Version     uint32     `cbor:"2,keyasint,omitempty"`
	Routines    []Routine  `cbor:"3,keyasint"`
	Constants   []Constant `cbor:"4,keyasint,omitempty"`
	HeapReserve uint32     `cbor:"5,keyasint,omitempty"`
}

// Routine returns the routine with the given id.
func (img *Image) Routine(id uint32) (Routine, bool) {
	for _, r := range img.Routines {
		if r.ID == id {
			return r, true
		}
	}
	return Routine{}, false
}

// Lookup returns the routine with the given name.
func (img *Image) Lookup(name string) (Routine, bool) {
	for _, r := range img.Routines {
		if r.Name != "" && r.Name == name {
			return r, true
		}
	}
	return Routine{}, false
}

// CodeSize returns the total number of code and constant bytes.
func (img *Image) CodeSize() int {
	n := 0
	for _, r := range img.Routines {
		n += len(r.Code)
	}
	for _, c := range img.Constants {
		n += len(c.Data)
	}
	return n
}

// Validate checks that every routine and constant can be declared on the
// wire.
func (img *Image) Validate() error {
	if len(img.Routines) == 0 {
		return fmt.Errorf("%w: %q has no routines", pkg.ErrInvalidImage, img.Name)
	}
	if len(img.Routines)+len(img.Constants) > codec.MaxUint14 {
		return fmt.Errorf("%w: too many declarations", pkg.ErrInvalidImage)
	}

	seen := make(map[uint32]bool, len(img.Routines)+len(img.Constants))
	for _, r := range img.Routines {
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate id %#x", pkg.ErrInvalidImage, r.ID)
		}
		seen[r.ID] = true

		if r.Flags.Has(FlagConstant) {
			return fmt.Errorf("%w: routine %#x flagged as constant", pkg.ErrInvalidImage, r.ID)
		}
		if uint32(r.Flags) > codec.MaxUint14 || r.MaxStack > codec.MaxUint14 ||
			r.Args > codec.MaxUint14 || r.Locals > codec.MaxUint14 {
			return fmt.Errorf("%w: routine %#x exceeds 14-bit field limits", pkg.ErrInvalidImage, r.ID)
		}
		if !r.Flags.Has(FlagNative) && len(r.Code) == 0 {
			return fmt.Errorf("%w: routine %#x has no code", pkg.ErrInvalidImage, r.ID)
		}
	}
	for _, c := range img.Constants {
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate id %#x", pkg.ErrInvalidImage, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
