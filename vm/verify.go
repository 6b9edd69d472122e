package vm

// Reachable returns the set of Refs transitively reachable from the stack.
// It walks the graph without touching mark bits, so it can be used to audit
// the collector. Refs that do not resolve are skipped.
func (vm *VM) Reachable() map[Ref]struct{} {
	seen, _ := vm.trace()
	return seen
}

func (vm *VM) trace() (seen map[Ref]struct{}, dangling []Ref) {
	seen = make(map[Ref]struct{})
	var work []Ref
	visit := func(ref Ref) {
		if ref.IsNil() {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		if _, err := vm.heap.Get(ref); err != nil {
			dangling = append(dangling, ref)
			return
		}
		seen[ref] = struct{}{}
		work = append(work, ref)
	}

	for ref := range vm.roots.All() {
		visit(ref)
	}
	for len(work) > 0 {
		ref := work[len(work)-1]
		work = work[:len(work)-1]
		obj, _ := vm.heap.Get(ref)
		if obj.kind == KindPair {
			visit(obj.head)
			visit(obj.tail)
		}
	}
	return seen, dangling
}

// Verify checks the invariants that must hold after a collection: every
// live object is reachable from the stack, every reachable Ref resolves,
// and no mark bit is left set. Returns *HeapInconsistency on failure.
//
// Between collections unreachable garbage is expected, so Verify is only
// meaningful right after GC.
func (vm *VM) Verify() error {
	seen, dangling := vm.trace()
	report := &HeapInconsistency{Dangling: dangling}

	for ref := range vm.heap.Live() {
		obj, _ := vm.heap.Get(ref)
		if obj.marked {
			report.MarkedAtRest = append(report.MarkedAtRest, ref)
		}
		if _, ok := seen[ref]; !ok {
			report.Unreachable = append(report.Unreachable, ref)
		}
	}

	if len(report.Unreachable) == 0 && len(report.Dangling) == 0 && len(report.MarkedAtRest) == 0 {
		return nil
	}
	return report
}
