package vm

import "iter"

// ArenaHeap keeps objects in a densely indexed table and reuses vacated
// slots most-recently-freed first. Live and Sweep walk the table in index
// order.
type ArenaHeap struct {
	table slotTable
}

// NewArenaHeap creates an arena heap with room for capacity objects.
func NewArenaHeap(capacity int) *ArenaHeap {
	return &ArenaHeap{table: newSlotTable(capacity)}
}

func (h *ArenaHeap) Allocate(obj Object) Ref {
	return h.table.ref(h.table.alloc(obj))
}

func (h *ArenaHeap) Get(ref Ref) (*Object, error) {
	return h.table.get(ref)
}

func (h *ArenaHeap) Reclaim(ref Ref) error {
	i, err := h.table.resolve(ref)
	if err != nil {
		return err
	}
	h.table.vacate(i)
	return nil
}

func (h *ArenaHeap) Live() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for i := range h.table.slots {
			s := &h.table.slots[i]
			if !s.occupied {
				continue
			}
			if !yield(makeRef(uint32(i), s.gen)) {
				return
			}
		}
	}
}

// Sweep makes a single linear pass over the table, vacating every slot
// keep rejects.
func (h *ArenaHeap) Sweep(keep func(obj *Object) bool) int {
	reclaimed := 0
	for i := range h.table.slots {
		s := &h.table.slots[i]
		if !s.occupied || keep(&s.obj) {
			continue
		}
		h.table.vacate(uint32(i))
		reclaimed++
	}
	return reclaimed
}

func (h *ArenaHeap) Len() int {
	return h.table.live
}

func (h *ArenaHeap) Cap() int {
	return cap(h.table.slots)
}

func (h *ArenaHeap) Strategy() Strategy {
	return StrategyArena
}

// FreeSlots returns the number of vacated slots awaiting reuse.
func (h *ArenaHeap) FreeSlots() int {
	return len(h.table.free)
}
