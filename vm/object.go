package vm

import "fmt"

// Kind tags the payload carried by an Object.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindPair
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindPair:
		return "pair"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Object is a heap-allocated value: either an integer or a pair of Refs.
//
// The mark bit is only set while a collection cycle is in progress; between
// cycles every live object has marked == false.
type Object struct {
	kind   Kind
	marked bool

	// Int payload
	value int64

	// Pair payload
	head Ref
	tail Ref
}

// NewInt creates an integer object.
func NewInt(v int64) Object {
	return Object{kind: KindInt, value: v}
}

// NewPair creates a pair object from two existing Refs.
func NewPair(head, tail Ref) Object {
	return Object{kind: KindPair, head: head, tail: tail}
}

// Kind returns the object's type tag.
func (o *Object) Kind() Kind {
	return o.kind
}

// IsInt returns true if o holds an integer.
func (o *Object) IsInt() bool {
	return o.kind == KindInt
}

// IsPair returns true if o holds a pair.
func (o *Object) IsPair() bool {
	return o.kind == KindPair
}

// Int returns the integer payload. Panics if o is not an int.
func (o *Object) Int() int64 {
	if o.kind != KindInt {
		panic(fmt.Sprintf("vm: Int called on %s object", o.kind))
	}
	return o.value
}

// Pair returns the head and tail Refs. Panics if o is not a pair.
func (o *Object) Pair() (head, tail Ref) {
	if o.kind != KindPair {
		panic(fmt.Sprintf("vm: Pair called on %s object", o.kind))
	}
	return o.head, o.tail
}

// Marked reports the mark bit.
func (o *Object) Marked() bool {
	return o.marked
}

func (o *Object) String() string {
	switch o.kind {
	case KindInt:
		return fmt.Sprintf("%d", o.value)
	case KindPair:
		return fmt.Sprintf("(%s . %s)", o.head, o.tail)
	default:
		return "<invalid>"
	}
}
