package vm

import "fmt"

// Ref is a checked handle to a heap object.
//
// A Ref packs the slot index and the slot generation into 64 bits:
//   - low 32 bits: slot index + 1 (so the zero Ref never names slot 0)
//   - high 32 bits: generation of the slot at allocation time
//
// Every time a slot is vacated its generation is bumped, so an old copy of a
// Ref into a reused slot no longer matches and resolves to ErrStaleReference.
type Ref uint64

// NilRef is the zero Ref. It never resolves to an object.
const NilRef Ref = 0

const (
	refIndexMask uint64 = 0x00000000FFFFFFFF
	refGenShift         = 32
)

func makeRef(index uint32, gen uint32) Ref {
	return Ref(uint64(gen)<<refGenShift | (uint64(index) + 1))
}

// IsNil returns true if r is NilRef.
func (r Ref) IsNil() bool {
	return r == NilRef
}

// Index returns the slot index named by r. Only meaningful if !r.IsNil().
func (r Ref) Index() uint32 {
	return uint32(uint64(r)&refIndexMask) - 1
}

// Generation returns the slot generation r was issued for.
func (r Ref) Generation() uint32 {
	return uint32(uint64(r) >> refGenShift)
}

func (r Ref) String() string {
	if r.IsNil() {
		return "#nil"
	}
	return fmt.Sprintf("#%d.%d", r.Index(), r.Generation())
}
