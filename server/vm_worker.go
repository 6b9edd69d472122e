package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/marksweep/vm"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("server: vm worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) any
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value any
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// A VM is single-threaded and a collection needs exclusive access to the
// whole heap and root set, so every operation from every handler runs to
// completion on the worker before the next one starts.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics. A panic
// carrying an error (stack underflow, for instance) stays matchable with
// errors.Is.
func (w *VMWorker) execute(fn func(*vm.VM) any) vmResult {
	var result vmResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					result.err = fmt.Errorf("vm operation aborted: %w", err)
				} else {
					result.err = fmt.Errorf("vm operation aborted: %v", r)
				}
			}
		}()
		result.value = fn(w.vm)
	}()
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes, ctx is done, or the worker stops.
func (w *VMWorker) Do(ctx context.Context, fn func(*vm.VM) any) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, ErrWorkerStopped
	}

	// Once queued the request runs even if the caller gives up, so a
	// cancelled mutation is never half-applied.
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine. Safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// call runs fn on w and returns its typed result.
func call[T any](ctx context.Context, w *VMWorker, fn func(*vm.VM) T) (T, error) {
	v, err := w.Do(ctx, func(v *vm.VM) any { return fn(v) })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
