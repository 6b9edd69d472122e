package vm

import "iter"

const endOfList int32 = -1

// LinkedHeap chains every live slot into an intrusive singly linked
// allocation list. New objects are prepended, so Live and Sweep see the most
// recently allocated object first.
//
// The list links are slot indices rather than owned nodes: storage lives in
// the same generation-checked slot table the arena uses, and unlinking a
// node only vacates its slot.
type LinkedHeap struct {
	table slotTable
	next  []int32 // next[i] is the successor of slot i, or endOfList
	first int32
}

// NewLinkedHeap creates a linked heap with room for capacity objects.
func NewLinkedHeap(capacity int) *LinkedHeap {
	if capacity < 0 {
		capacity = 0
	}
	return &LinkedHeap{
		table: newSlotTable(capacity),
		next:  make([]int32, 0, capacity),
		first: endOfList,
	}
}

func (h *LinkedHeap) Allocate(obj Object) Ref {
	i := h.table.alloc(obj)
	if int(i) == len(h.next) {
		h.next = append(h.next, endOfList)
	}
	h.next[i] = h.first
	h.first = int32(i)
	return h.table.ref(i)
}

func (h *LinkedHeap) Get(ref Ref) (*Object, error) {
	return h.table.get(ref)
}

// Reclaim walks the list to find the predecessor of ref before unlinking it.
func (h *LinkedHeap) Reclaim(ref Ref) error {
	i, err := h.table.resolve(ref)
	if err != nil {
		return err
	}
	target := int32(i)
	prev := endOfList
	for cur := h.first; cur != endOfList; cur = h.next[cur] {
		if cur == target {
			h.unlink(prev, cur)
			return nil
		}
		prev = cur
	}
	// An occupied slot is always on the list.
	panic("vm: linked heap lost track of " + ref.String())
}

func (h *LinkedHeap) Live() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for cur := h.first; cur != endOfList; cur = h.next[cur] {
			if !yield(h.table.ref(uint32(cur))) {
				return
			}
		}
	}
}

// Sweep walks the list once. A kept node becomes the new predecessor; a
// rejected node has its predecessor repointed at its successor before the
// slot is vacated, so the walk continues from an intact list.
func (h *LinkedHeap) Sweep(keep func(obj *Object) bool) int {
	reclaimed := 0
	prev := endOfList
	cur := h.first
	for cur != endOfList {
		succ := h.next[cur]
		if keep(&h.table.slots[cur].obj) {
			prev = cur
		} else {
			h.unlink(prev, cur)
			reclaimed++
		}
		cur = succ
	}
	return reclaimed
}

// unlink removes cur (whose predecessor is prev) and vacates its slot.
func (h *LinkedHeap) unlink(prev, cur int32) {
	if prev == endOfList {
		h.first = h.next[cur]
	} else {
		h.next[prev] = h.next[cur]
	}
	h.next[cur] = endOfList
	h.table.vacate(uint32(cur))
}

func (h *LinkedHeap) Len() int {
	return h.table.live
}

func (h *LinkedHeap) Cap() int {
	return cap(h.table.slots)
}

func (h *LinkedHeap) Strategy() Strategy {
	return StrategyLinked
}
