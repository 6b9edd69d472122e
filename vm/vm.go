package vm

// ---------------------------------------------------------------------------
// VM: the stack machine driving the collector
// ---------------------------------------------------------------------------

// DefaultHeapCapacity is the number of object slots reserved by New.
const DefaultHeapCapacity = 1 << 10

// VM is a stack machine over integer and pair objects. Its operand stack is
// the root set; every allocation may first trigger a collection.
//
// A VM is not safe for concurrent use. Callers that share a VM between
// goroutines must serialize every operation (see server.VMWorker).
type VM struct {
	heap      Heap
	roots     RootSet
	collector *Collector
}

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	strategy         Strategy
	capacity         int
	initialThreshold int
	minThreshold     int
	observers        []func(CycleStats)
}

// WithStrategy selects the heap storage strategy (arena by default).
func WithStrategy(s Strategy) Option {
	return func(c *vmConfig) { c.strategy = s }
}

// WithCapacity pre-sizes heap storage for n objects.
func WithCapacity(n int) Option {
	return func(c *vmConfig) { c.capacity = n }
}

// WithInitialThreshold sets the live count that triggers the first collection.
func WithInitialThreshold(n int) Option {
	return func(c *vmConfig) { c.initialThreshold = n }
}

// WithMinThreshold sets the floor for recomputed thresholds.
func WithMinThreshold(n int) Option {
	return func(c *vmConfig) { c.minThreshold = n }
}

// WithObserver registers a callback invoked after every collection cycle.
func WithObserver(fn func(CycleStats)) Option {
	return func(c *vmConfig) { c.observers = append(c.observers, fn) }
}

// New creates a VM with an empty heap and stack.
func New(opts ...Option) *VM {
	cfg := &vmConfig{
		strategy:         StrategyArena,
		capacity:         DefaultHeapCapacity,
		initialThreshold: InitialGCThreshold,
		minThreshold:     DefaultMinThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	heap := NewHeap(cfg.strategy, cfg.capacity)
	collector := NewCollector(heap, cfg.initialThreshold, cfg.minThreshold)
	for _, fn := range cfg.observers {
		collector.AddObserver(fn)
	}
	return &VM{heap: heap, collector: collector}
}

// NewWithCapacity creates a VM whose heap is pre-sized for n objects.
func NewWithCapacity(n int, opts ...Option) *VM {
	return New(append(opts, WithCapacity(n))...)
}

// allocate stores obj, collecting first if the threshold has been reached.
// Anything obj refers to must already be on the root set.
func (vm *VM) allocate(obj Object) Ref {
	vm.collector.MaybeCollect(vm.roots.All())
	return vm.heap.Allocate(obj)
}

// PushInt allocates an integer and pushes it.
func (vm *VM) PushInt(v int64) Ref {
	ref := vm.allocate(NewInt(v))
	vm.roots.Push(ref)
	return ref
}

// PushPair pops the top two values and pushes a pair of them; the value
// below the top becomes the head. Panics with ErrStackUnderflow if fewer
// than two values are on the stack.
//
// The operands stay on the stack until the pair has been allocated, so a
// collection triggered by that allocation still sees them as roots.
func (vm *VM) PushPair() Ref {
	if n := vm.roots.Len(); n < 2 {
		underflow("push pair", 2, n)
	}
	head := vm.roots.Peek(1)
	tail := vm.roots.Peek(0)
	ref := vm.allocate(NewPair(head, tail))
	vm.roots.Pop()
	vm.roots.Pop()
	vm.roots.Push(ref)
	return ref
}

// Pop removes the top value and returns its Ref. The Ref stays resolvable
// only until the next collection unless something else still reaches it.
// Panics with ErrStackUnderflow on an empty stack.
func (vm *VM) Pop() Ref {
	return vm.roots.Pop()
}

// Drop discards the top value.
func (vm *VM) Drop() {
	vm.roots.Pop()
}

// GC forces a collection cycle.
func (vm *VM) GC() CycleStats {
	return vm.collector.Collect(vm.roots.All())
}

// Close clears the stack and runs a final collection, leaving the heap
// empty. The VM may be reused afterwards.
func (vm *VM) Close() {
	vm.roots.Clear()
	vm.GC()
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// NumObjects returns the number of live heap objects.
func (vm *VM) NumObjects() int {
	return vm.heap.Len()
}

// IsEmpty returns true if the heap holds no objects.
func (vm *VM) IsEmpty() bool {
	return vm.heap.Len() == 0
}

// Threshold returns the live count at which the next allocation collects.
func (vm *VM) Threshold() int {
	return vm.collector.Threshold()
}

// Collections returns the number of completed collection cycles.
func (vm *VM) Collections() uint64 {
	return vm.collector.Cycles()
}

// LastCycle returns statistics from the most recent cycle, or nil.
func (vm *VM) LastCycle() *CycleStats {
	return vm.collector.LastCycle()
}

// StackDepth returns the number of values on the stack.
func (vm *VM) StackDepth() int {
	return vm.roots.Len()
}

// Roots returns a copy of the stack, bottom first.
func (vm *VM) Roots() []Ref {
	return vm.roots.Slice()
}

// Strategy returns the heap storage strategy.
func (vm *VM) Strategy() Strategy {
	return vm.heap.Strategy()
}

// Lookup returns a copy of the object ref names.
func (vm *VM) Lookup(ref Ref) (Object, error) {
	obj, err := vm.heap.Get(ref)
	if err != nil {
		return Object{}, err
	}
	return *obj, nil
}
