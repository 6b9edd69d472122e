package vm

import (
	"strconv"
	"strings"
)

// Format renders the structure ref names as an s-expression, e.g.
// "(1 . (2 . 3))".
func (vm *VM) Format(ref Ref) (string, error) {
	var b strings.Builder
	if err := vm.format(&b, ref); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (vm *VM) format(b *strings.Builder, ref Ref) error {
	obj, err := vm.heap.Get(ref)
	if err != nil {
		return err
	}
	if obj.kind == KindInt {
		b.WriteString(strconv.FormatInt(obj.value, 10))
		return nil
	}
	head, tail := obj.head, obj.tail
	b.WriteByte('(')
	if err := vm.format(b, head); err != nil {
		return err
	}
	b.WriteString(" . ")
	if err := vm.format(b, tail); err != nil {
		return err
	}
	b.WriteByte(')')
	return nil
}
