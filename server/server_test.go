package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/marksweep/tracelog"
	"github.com/chazu/marksweep/vm"
)

// newTestServer starts a Server over httptest and returns a client for it.
func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *Client) {
	t.Helper()
	srv := New(opts...)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Stop(context.Background())
	})
	return srv, NewClient(hs.Client(), hs.URL)
}

// TestHeapServiceRoundTrip drives one session through the full set of
// operations: the nested pair scenario, a forced collection and stats.
func TestHeapServiceRoundTrip(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	id, err := client.CreateSession(ctx, "round-trip")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for _, n := range []int64{1, 2, 3} {
		if _, err := client.PushInt(ctx, id, n); err != nil {
			t.Fatalf("PushInt(%d): %v", n, err)
		}
	}
	if _, err := client.PushPair(ctx, id); err != nil {
		t.Fatalf("PushPair: %v", err)
	}
	resp, err := client.PushPair(ctx, id)
	if err != nil {
		t.Fatalf("PushPair: %v", err)
	}
	if resp.Heap.Objects != 5 || resp.Heap.StackDepth != 1 {
		t.Errorf("heap after pairs = %+v, want 5 objects, depth 1", resp.Heap)
	}

	col, err := client.Collect(ctx, id)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if col.Cycle.Reclaimed != 0 || col.Heap.Objects != 5 {
		t.Errorf("collect = %+v, want nothing reclaimed", col)
	}

	pop, err := client.Pop(ctx, id)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if pop.Value != "(1 . (2 . 3))" {
		t.Errorf("Pop value = %q", pop.Value)
	}

	if _, err := client.Collect(ctx, id); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	stats, err := client.Stats(ctx, id)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Heap.Objects != 0 {
		t.Errorf("objects after final collect = %d, want 0", stats.Heap.Objects)
	}
	if stats.Last == nil || stats.Last.Reclaimed != 5 {
		t.Errorf("last cycle = %+v, want 5 reclaimed", stats.Last)
	}
	if stats.Heap.Collections != 2 {
		t.Errorf("collections = %d, want 2", stats.Heap.Collections)
	}

	if err := client.CloseSession(ctx, id); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
}

func TestHeapServiceErrorCodes(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	id, err := client.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{"pop empty", func() error { _, err := client.Pop(ctx, id); return err }, connect.CodeFailedPrecondition},
		{"pair empty", func() error { _, err := client.PushPair(ctx, id); return err }, connect.CodeFailedPrecondition},
		{"unknown session", func() error { _, err := client.Stats(ctx, "nope"); return err }, connect.CodeNotFound},
		{"missing session", func() error { _, err := client.PushInt(ctx, "", 1); return err }, connect.CodeInvalidArgument},
		{"close unknown", func() error { return client.CloseSession(ctx, "nope") }, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := connect.CodeOf(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}

	// The session is still usable after the failed calls.
	if _, err := client.PushInt(ctx, id, 7); err != nil {
		t.Errorf("PushInt after errors: %v", err)
	}
}

// TestHeapServiceSessionsIsolated verifies each session owns its heap.
func TestHeapServiceSessionsIsolated(t *testing.T) {
	srv, client := newTestServer(t, WithVMOptions(vm.WithStrategy(vm.StrategyLinked)))
	ctx := context.Background()

	a, _ := client.CreateSession(ctx, "a")
	b, _ := client.CreateSession(ctx, "b")
	if srv.Sessions().Len() != 2 {
		t.Fatalf("sessions = %d, want 2", srv.Sessions().Len())
	}

	for i := range 10 {
		if _, err := client.PushInt(ctx, a, int64(i)); err != nil {
			t.Fatal(err)
		}
	}
	sa, _ := client.Stats(ctx, a)
	sb, _ := client.Stats(ctx, b)
	if sa.Heap.Objects != 10 || sb.Heap.Objects != 0 {
		t.Errorf("objects a=%d b=%d, want 10 and 0", sa.Heap.Objects, sb.Heap.Objects)
	}
	if sa.Heap.Strategy != "linked" {
		t.Errorf("strategy = %q, want linked", sa.Heap.Strategy)
	}
}

// TestServerRecordsCycles verifies the recorder observes every session's
// collections under its session id.
func TestServerRecordsCycles(t *testing.T) {
	ctx := context.Background()
	rec, err := tracelog.Open(ctx, filepath.Join(t.TempDir(), "cycles.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rec.Close() })

	_, client := newTestServer(t, WithRecorder(rec))
	id, err := client.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Collect(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Collect(ctx, id); err != nil {
		t.Fatal(err)
	}

	cycles, err := rec.Cycles(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 {
		t.Errorf("recorded %d cycles, want 2", len(cycles))
	}
}

func TestServerStopClosesSessions(t *testing.T) {
	srv := New()
	s := srv.Sessions().Create("")
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if srv.Sessions().Len() != 0 {
		t.Errorf("sessions after Stop = %d", srv.Sessions().Len())
	}
	if _, err := s.worker.Do(context.Background(), func(*vm.VM) any { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("worker err = %v, want ErrWorkerStopped", err)
	}
}
