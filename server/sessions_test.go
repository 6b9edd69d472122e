package server

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/marksweep/vm"
)

func newTestStore() *SessionStore {
	return NewSessionStore(func(string) *vm.VM { return vm.New() })
}

func TestSessionStoreCreateGet(t *testing.T) {
	store := newTestStore()
	defer store.DestroyAll(context.Background())

	a := store.Create("a")
	b := store.Create("b")
	if a.ID == b.ID {
		t.Fatal("sessions share an id")
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}

	got, err := store.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "a" {
		t.Errorf("Name = %q, want a", got.Name)
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) err = %v", err)
	}
}

// TestSessionStoreDestroyEmptiesHeap verifies Destroy runs a final
// collection before stopping the worker.
func TestSessionStoreDestroyEmptiesHeap(t *testing.T) {
	var v *vm.VM
	store := NewSessionStore(func(string) *vm.VM {
		v = vm.New()
		return v
	})
	ctx := context.Background()

	s := store.Create("")
	if _, err := call(ctx, s.worker, func(v *vm.VM) vm.Ref {
		v.PushInt(1)
		v.PushInt(2)
		return v.PushPair()
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.Destroy(ctx, s.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !v.IsEmpty() {
		t.Errorf("heap holds %d objects after Destroy", v.NumObjects())
	}
	if err := store.Destroy(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Destroy err = %v", err)
	}
	if _, err := s.worker.Do(ctx, func(*vm.VM) any { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("worker still running after Destroy: %v", err)
	}
}
