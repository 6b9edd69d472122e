package vm

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: portable heap image
// ---------------------------------------------------------------------------

const (
	snapshotMagic   = "MSVM"
	snapshotVersion = 1
)

// ErrBadSnapshot is wrapped by every Restore validation failure.
var ErrBadSnapshot = errors.New("vm: bad snapshot")

// Snapshot captures a VM's heap and stack. Objects are numbered from 1 in
// heap order; id 0 stands for NilRef.
type Snapshot struct {
	Magic     string           `cbor:"1,keyasint"`
	Version   uint16           `cbor:"2,keyasint"`
	Strategy  string           `cbor:"3,keyasint"`
	Threshold int              `cbor:"4,keyasint"`
	Objects   []SnapshotObject `cbor:"5,keyasint"`
	Stack     []uint32         `cbor:"6,keyasint"`
}

// SnapshotObject is one heap object inside a Snapshot.
type SnapshotObject struct {
	ID   uint32 `cbor:"1,keyasint"`
	Kind Kind   `cbor:"2,keyasint"`
	Int  int64  `cbor:"3,keyasint,omitempty"`
	Head uint32 `cbor:"4,keyasint,omitempty"`
	Tail uint32 `cbor:"5,keyasint,omitempty"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot captures every live object (reachable or not) and the stack.
func (vm *VM) Snapshot() *Snapshot {
	ids := make(map[Ref]uint32, vm.heap.Len())
	for ref := range vm.heap.Live() {
		ids[ref] = uint32(len(ids) + 1)
	}

	s := &Snapshot{
		Magic:     snapshotMagic,
		Version:   snapshotVersion,
		Strategy:  vm.heap.Strategy().String(),
		Threshold: vm.collector.Threshold(),
		Objects:   make([]SnapshotObject, 0, len(ids)),
		Stack:     make([]uint32, 0, vm.roots.Len()),
	}
	for ref := range vm.heap.Live() {
		obj, _ := vm.heap.Get(ref)
		so := SnapshotObject{ID: ids[ref], Kind: obj.kind}
		switch obj.kind {
		case KindInt:
			so.Int = obj.value
		case KindPair:
			so.Head = ids[obj.head]
			so.Tail = ids[obj.tail]
		}
		s.Objects = append(s.Objects, so)
	}
	for ref := range vm.roots.All() {
		s.Stack = append(s.Stack, ids[ref])
	}
	return s
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// SaveSnapshot writes the VM's snapshot to path.
func (vm *VM) SaveSnapshot(path string) error {
	data, err := MarshalSnapshot(vm.Snapshot())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSnapshot reads a snapshot from path and restores it.
func LoadSnapshot(path string, opts ...Option) (*VM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read snapshot %s: %w", path, err)
	}
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return Restore(s, opts...)
}

// Restore rebuilds a VM from s. The snapshot's strategy and threshold are
// applied before opts, so opts may override them. Objects are reallocated
// children first; cycles, dangling ids and unknown kinds are rejected.
func Restore(s *Snapshot, opts ...Option) (*VM, error) {
	if s.Magic != snapshotMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadSnapshot, s.Magic)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, s.Version)
	}
	strategy, err := ParseStrategy(s.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	byID := make(map[uint32]*SnapshotObject, len(s.Objects))
	for i := range s.Objects {
		so := &s.Objects[i]
		if so.ID == 0 {
			return nil, fmt.Errorf("%w: object with id 0", ErrBadSnapshot)
		}
		if _, dup := byID[so.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate object id %d", ErrBadSnapshot, so.ID)
		}
		switch so.Kind {
		case KindInt, KindPair:
		default:
			return nil, fmt.Errorf("%w: object %d has %s", ErrBadSnapshot, so.ID, so.Kind)
		}
		byID[so.ID] = so
	}

	base := []Option{WithStrategy(strategy), WithCapacity(max(len(s.Objects), DefaultHeapCapacity))}
	if s.Threshold > 0 {
		base = append(base, WithInitialThreshold(s.Threshold))
	}
	vm := New(append(base, opts...)...)

	r := &restorer{vm: vm, byID: byID, refs: make(map[uint32]Ref, len(byID)), state: make(map[uint32]uint8, len(byID))}
	for i := range s.Objects {
		if _, err := r.restore(s.Objects[i].ID); err != nil {
			return nil, err
		}
	}
	for _, id := range s.Stack {
		ref, ok := r.refs[id]
		if !ok {
			return nil, fmt.Errorf("%w: stack holds unknown object %d", ErrBadSnapshot, id)
		}
		vm.roots.Push(ref)
	}
	return vm, nil
}

const (
	restorePending uint8 = iota
	restoreActive
	restoreDone
)

type restorer struct {
	vm    *VM
	byID  map[uint32]*SnapshotObject
	refs  map[uint32]Ref
	state map[uint32]uint8
}

// restore allocates id after its children, using an explicit stack so long
// pair chains do not recurse.
func (r *restorer) restore(id uint32) (Ref, error) {
	if r.state[id] == restoreDone {
		return r.refs[id], nil
	}

	work := []uint32{id}
	for len(work) > 0 {
		cur := work[len(work)-1]
		so, ok := r.byID[cur]
		if !ok {
			return NilRef, fmt.Errorf("%w: reference to unknown object %d", ErrBadSnapshot, cur)
		}

		switch r.state[cur] {
		case restoreDone:
			work = work[:len(work)-1]
			continue
		case restorePending:
			r.state[cur] = restoreActive
			if so.Kind == KindPair {
				for _, child := range [2]uint32{so.Tail, so.Head} {
					switch r.state[child] {
					case restoreActive:
						return NilRef, fmt.Errorf("%w: cycle through object %d", ErrBadSnapshot, child)
					case restorePending:
						if child == 0 {
							return NilRef, fmt.Errorf("%w: pair %d has a nil field", ErrBadSnapshot, cur)
						}
						work = append(work, child)
					}
				}
			}
			continue
		}

		// restoreActive: children are done
		var obj Object
		if so.Kind == KindInt {
			obj = NewInt(so.Int)
		} else {
			obj = NewPair(r.refs[so.Head], r.refs[so.Tail])
		}
		r.refs[cur] = r.vm.heap.Allocate(obj)
		r.state[cur] = restoreDone
		work = work[:len(work)-1]
	}
	return r.refs[id], nil
}
