package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Object creation tests
// ---------------------------------------------------------------------------

func TestNewInt(t *testing.T) {
	obj := NewInt(-42)
	if obj.Kind() != KindInt || !obj.IsInt() || obj.IsPair() {
		t.Fatalf("NewInt kind = %s", obj.Kind())
	}
	if obj.Int() != -42 {
		t.Errorf("Int() = %d, want -42", obj.Int())
	}
	if obj.Marked() {
		t.Error("new object is marked")
	}
	if got := obj.String(); got != "-42" {
		t.Errorf("String() = %q, want -42", got)
	}
}

func TestNewPair(t *testing.T) {
	head, tail := makeRef(0, 0), makeRef(1, 3)
	obj := NewPair(head, tail)
	if !obj.IsPair() || obj.IsInt() {
		t.Fatalf("NewPair kind = %s", obj.Kind())
	}
	h, tl := obj.Pair()
	if h != head || tl != tail {
		t.Errorf("Pair() = (%s, %s), want (%s, %s)", h, tl, head, tail)
	}
	if got := obj.String(); got != "(#0.0 . #1.3)" {
		t.Errorf("String() = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Accessor misuse
// ---------------------------------------------------------------------------

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

func TestObjectAccessorKindMismatch(t *testing.T) {
	i := NewInt(1)
	p := NewPair(NilRef, NilRef)
	expectPanic(t, "Pair on int", func() { i.Pair() })
	expectPanic(t, "Int on pair", func() { p.Int() })

	var zero Object
	if got := zero.String(); got != "<invalid>" {
		t.Errorf("zero Object String() = %q", got)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInt, "int"},
		{KindPair, "pair"},
		{Kind(9), "kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
