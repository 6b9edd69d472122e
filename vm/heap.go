package vm

import (
	"fmt"
	"iter"
	"math"
)

// Heap owns every allocated object. The collector is the only caller that
// reclaims objects; the VM is the only caller that allocates them.
//
// Pointers returned by Get stay valid until the next Allocate.
type Heap interface {
	// Allocate stores obj and returns a Ref to it.
	Allocate(obj Object) Ref

	// Get resolves a live Ref.
	Get(ref Ref) (*Object, error)

	// Reclaim removes a single live object.
	Reclaim(ref Ref) error

	// Live yields every live Ref in strategy order.
	Live() iter.Seq[Ref]

	// Sweep visits every live object once; objects for which keep returns
	// false are reclaimed in place. Returns the number reclaimed.
	Sweep(keep func(obj *Object) bool) int

	// Len returns the number of live objects.
	Len() int

	// Cap returns the number of slots the heap can hold without growing.
	Cap() int

	// Strategy names the storage strategy.
	Strategy() Strategy
}

// Strategy selects the heap storage layout.
type Strategy uint8

const (
	// StrategyArena sweeps slots in index order.
	StrategyArena Strategy = iota
	// StrategyLinked chains slots through an intrusive allocation list and
	// sweeps last-allocated-first.
	StrategyLinked
)

func (s Strategy) String() string {
	switch s {
	case StrategyArena:
		return "arena"
	case StrategyLinked:
		return "linked"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy maps a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "arena":
		return StrategyArena, nil
	case "linked":
		return StrategyLinked, nil
	default:
		return 0, fmt.Errorf("vm: unknown heap strategy %q (want arena or linked)", name)
	}
}

// NewHeap creates an empty heap for the given strategy.
func NewHeap(s Strategy, capacity int) Heap {
	switch s {
	case StrategyLinked:
		return NewLinkedHeap(capacity)
	default:
		return NewArenaHeap(capacity)
	}
}

// ---------------------------------------------------------------------------
// slotTable: generation-checked slot storage shared by both strategies
// ---------------------------------------------------------------------------

type slot struct {
	obj      Object
	gen      uint32
	occupied bool
}

// slotTable is a growable, densely indexed table of object slots with a LIFO
// free list. Vacating a slot bumps its generation so outstanding Refs to it
// become stale.
type slotTable struct {
	slots []slot
	free  []uint32
	live  int
}

func newSlotTable(capacity int) slotTable {
	if capacity < 0 {
		capacity = 0
	}
	return slotTable{slots: make([]slot, 0, capacity)}
}

// maxSlots bounds the table so every index still fits a Ref's 32-bit
// index field after the +1 bias.
var maxSlots uint64 = math.MaxUint32

// alloc stores obj in the most recently freed slot, or a new one. Running
// out of indices is fatal, like host memory exhaustion.
func (t *slotTable) alloc(obj Object) uint32 {
	if len(t.free) == 0 && uint64(len(t.slots)) >= maxSlots {
		panic(fmt.Sprintf("vm: heap exhausted at %d slots", len(t.slots)))
	}
	t.live++
	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		s := &t.slots[i]
		s.obj = obj
		s.occupied = true
		return i
	}
	t.slots = append(t.slots, slot{obj: obj, occupied: true})
	return uint32(len(t.slots) - 1)
}

func (t *slotTable) ref(i uint32) Ref {
	return makeRef(i, t.slots[i].gen)
}

// resolve checks ref against the table and returns its slot index.
func (t *slotTable) resolve(ref Ref) (uint32, error) {
	if ref.IsNil() {
		return 0, ErrInvalidReference
	}
	i := ref.Index()
	if int(i) >= len(t.slots) {
		return 0, fmt.Errorf("%w: %s beyond %d slots", ErrInvalidReference, ref, len(t.slots))
	}
	s := &t.slots[i]
	if !s.occupied || s.gen != ref.Generation() {
		return 0, fmt.Errorf("%w: %s", ErrStaleReference, ref)
	}
	return i, nil
}

func (t *slotTable) get(ref Ref) (*Object, error) {
	i, err := t.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &t.slots[i].obj, nil
}

// vacate releases slot i to the free list.
func (t *slotTable) vacate(i uint32) {
	s := &t.slots[i]
	s.obj = Object{}
	s.occupied = false
	s.gen++
	t.free = append(t.free, i)
	t.live--
}
