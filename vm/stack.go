package vm

import "iter"

// RootSet is the VM's operand stack. Every Ref on it is a GC root.
type RootSet struct {
	refs []Ref
}

// Push appends ref to the top of the stack.
func (s *RootSet) Push(ref Ref) {
	s.refs = append(s.refs, ref)
}

// Pop removes and returns the top Ref. Panics with ErrStackUnderflow if the
// stack is empty.
func (s *RootSet) Pop() Ref {
	n := len(s.refs)
	if n == 0 {
		underflow("pop", 1, 0)
	}
	ref := s.refs[n-1]
	s.refs[n-1] = NilRef
	s.refs = s.refs[:n-1]
	return ref
}

// Peek returns the Ref depth entries below the top (0 is the top).
// Panics with ErrStackUnderflow if the stack is not deep enough.
func (s *RootSet) Peek(depth int) Ref {
	n := len(s.refs)
	if depth < 0 || depth >= n {
		underflow("peek", depth+1, n)
	}
	return s.refs[n-1-depth]
}

// Len returns the stack depth.
func (s *RootSet) Len() int {
	return len(s.refs)
}

// Clear empties the stack.
func (s *RootSet) Clear() {
	clear(s.refs)
	s.refs = s.refs[:0]
}

// All yields the stack bottom to top.
func (s *RootSet) All() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for _, ref := range s.refs {
			if !yield(ref) {
				return
			}
		}
	}
}

// Slice returns a copy of the stack, bottom first.
func (s *RootSet) Slice() []Ref {
	out := make([]Ref, len(s.refs))
	copy(out, s.refs)
	return out
}
