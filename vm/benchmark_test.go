package vm

import (
	"testing"
)

// =============================================================================
// Benchmark Helpers
// =============================================================================

// benchmarkVM creates a fresh VM for benchmarking
func benchmarkVM(s Strategy) *VM {
	return New(WithStrategy(s))
}

func benchmarkStrategies(b *testing.B, fn func(b *testing.B, s Strategy)) {
	for _, s := range []Strategy{StrategyArena, StrategyLinked} {
		b.Run(s.String(), func(b *testing.B) { fn(b, s) })
	}
}

// =============================================================================
// Allocation
// =============================================================================

// BenchmarkPushIntGarbage measures allocation when every value dies at once,
// so each cycle reclaims everything it sweeps.
func BenchmarkPushIntGarbage(b *testing.B) {
	benchmarkStrategies(b, func(b *testing.B, s Strategy) {
		vm := benchmarkVM(s)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			vm.PushInt(int64(i))
			vm.Drop()
		}
	})
}

// BenchmarkPushPairTree measures building pairs over a live working set.
func BenchmarkPushPairTree(b *testing.B) {
	benchmarkStrategies(b, func(b *testing.B, s Strategy) {
		vm := benchmarkVM(s)
		vm.PushInt(0)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			vm.PushInt(int64(i))
			vm.PushPair()
			if vm.StackDepth() == 1 && i%1024 == 1023 {
				vm.Drop()
				vm.PushInt(0)
			}
		}
	})
}

// =============================================================================
// Collection
// =============================================================================

// BenchmarkGCLiveChain measures marking a long chain that survives.
func BenchmarkGCLiveChain(b *testing.B) {
	benchmarkStrategies(b, func(b *testing.B, s Strategy) {
		vm := benchmarkVM(s)
		vm.PushInt(0)
		for i := 1; i < 4096; i++ {
			vm.PushInt(int64(i))
			vm.PushPair()
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			vm.GC()
		}
	})
}

// BenchmarkSweepHalf measures a sweep that reclaims every other object.
func BenchmarkSweepHalf(b *testing.B) {
	benchmarkStrategies(b, func(b *testing.B, s Strategy) {
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			heap := NewHeap(s, 4096)
			for j := 0; j < 4096; j++ {
				heap.Allocate(NewInt(int64(j)))
			}
			b.StartTimer()
			heap.Sweep(func(obj *Object) bool { return obj.Int()%2 == 0 })
		}
	})
}
