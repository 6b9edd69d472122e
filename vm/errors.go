package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrStackUnderflow is carried by the panic raised when an operation
	// needs more operands than the root set holds.
	ErrStackUnderflow = errors.New("vm: stack underflow")

	// ErrInvalidReference is returned for NilRef or an index past the end of the heap.
	ErrInvalidReference = errors.New("vm: invalid reference")

	// ErrStaleReference is returned when a Ref names a slot that has since been
	// reclaimed (and possibly reused).
	ErrStaleReference = errors.New("vm: stale reference")

	// ErrReentrantCollection is carried by the panic raised when a collection
	// is started while another one is still marking or sweeping.
	ErrReentrantCollection = errors.New("vm: collection already in progress")
)

// underflow panics with an error wrapping ErrStackUnderflow.
func underflow(op string, need, have int) {
	panic(fmt.Errorf("%w: %s needs %d operand(s), stack has %d", ErrStackUnderflow, op, need, have))
}

// HeapInconsistency describes a violated heap invariant found by Verify.
type HeapInconsistency struct {
	Unreachable  []Ref // live objects no root can reach
	Dangling     []Ref // refs held by roots or pairs that no longer resolve
	MarkedAtRest []Ref // live objects whose mark bit survived a cycle
}

func (e *HeapInconsistency) Error() string {
	return fmt.Sprintf("vm: heap inconsistent: %d unreachable, %d dangling, %d marked at rest",
		len(e.Unreachable), len(e.Dangling), len(e.MarkedAtRest))
}
