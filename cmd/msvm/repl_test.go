package main

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/marksweep/tracelog"
	"github.com/chazu/marksweep/vm"
)

func newTestShell(opts ...vm.Option) (*shell, *strings.Builder) {
	var out strings.Builder
	return newShell(vm.New(opts...), nil, &out), &out
}

func TestShellScript(t *testing.T) {
	sh, out := newTestShell()
	script := `
# nested pair
int 1
int 2
int 3
pair
pair
pop
gc
`
	if err := sh.runScript(strings.NewReader(script)); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if !strings.Contains(out.String(), "(1 . (2 . 3))\n") {
		t.Errorf("output missing popped pair:\n%s", out)
	}
	if !strings.Contains(out.String(), "5 reclaimed") {
		t.Errorf("output missing gc report:\n%s", out)
	}
	if !sh.vm.IsEmpty() {
		t.Errorf("heap holds %d objects", sh.vm.NumObjects())
	}
}

// TestShellUnderflowIsAnError verifies underflow is reported and the shell
// keeps working.
func TestShellUnderflowIsAnError(t *testing.T) {
	sh, _ := newTestShell()
	for _, cmd := range []string{"pop", "drop", "pair"} {
		if err := sh.exec(cmd); !errors.Is(err, vm.ErrStackUnderflow) {
			t.Errorf("exec(%q) err = %v, want ErrStackUnderflow", cmd, err)
		}
	}
	if err := sh.exec("int 4"); err != nil {
		t.Fatalf("int after underflow: %v", err)
	}
	if sh.vm.StackDepth() != 1 {
		t.Errorf("stack depth = %d, want 1", sh.vm.StackDepth())
	}
}

func TestShellScriptStopsAtError(t *testing.T) {
	sh, _ := newTestShell()
	err := sh.runScript(strings.NewReader("int 1\npair\nint 2\n"))
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name line 2", err)
	}
	if sh.vm.StackDepth() != 1 {
		t.Errorf("stack depth = %d, script continued past the error", sh.vm.StackDepth())
	}
}

func TestShellBadInput(t *testing.T) {
	sh, _ := newTestShell()
	tests := []string{"int", "int x", "save", "load", "frobnicate"}
	for _, line := range tests {
		if err := sh.exec(line); err == nil {
			t.Errorf("exec(%q) succeeded", line)
		}
	}
	if err := sh.exec("quit"); !errors.Is(err, errQuit) {
		t.Errorf("quit err = %v", err)
	}
	if err := sh.exec("   "); err != nil {
		t.Errorf("blank line err = %v", err)
	}
}

func TestShellStackAndStats(t *testing.T) {
	sh, out := newTestShell(vm.WithStrategy(vm.StrategyLinked))
	for _, line := range []string{"int 7", "int 8", "int 9", "pair", "stack", "stats", "verify"} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("exec(%q): %v", line, err)
		}
	}
	got := out.String()
	for _, want := range []string{"  0  (8 . 9)", "  1  7", "strategy:    linked", "objects:     4", "ok"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestShellSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.msvm")
	sh, out := newTestShell(vm.WithStrategy(vm.StrategyLinked))
	for _, line := range []string{"int 1", "int 2", "pair", "int 3", "save " + path} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("exec(%q): %v", line, err)
		}
	}

	other, _ := newTestShell()
	other.out = out
	if err := other.exec("load " + path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if other.vm.Strategy() != vm.StrategyLinked {
		t.Errorf("loaded strategy = %s, want linked", other.vm.Strategy())
	}
	if err := other.exec("pop"); err != nil {
		t.Fatal(err)
	}
	if err := other.exec("pop"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), "3\n(1 . 2)\n") {
		t.Errorf("output after load:\n%s", out)
	}
}

// TestShellLoadStartsNewTraceSession verifies every cycle is recorded when
// a loaded VM restarts its cycle numbering: the restored VM traces under a
// session of its own.
func TestShellLoadStartsNewTraceSession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rec, err := tracelog.Open(ctx, filepath.Join(dir, "trace.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	traceOpts := traceSessions(rec, "run")
	var out strings.Builder
	sh := newShell(vm.New(traceOpts()...), traceOpts, &out)

	path := filepath.Join(dir, "heap.msvm")
	// load closes the first VM, which is its third cycle.
	for _, line := range []string{"int 1", "gc", "save " + path, "gc", "load " + path, "gc", "gc"} {
		if err := sh.exec(line); err != nil {
			t.Fatalf("exec(%q): %v", line, err)
		}
	}

	sessions, err := rec.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sessions, []string{"run", "run.1"}) {
		t.Fatalf("sessions = %v, want [run run.1]", sessions)
	}
	for session, want := range map[string]int{"run": 3, "run.1": 2} {
		cycles, err := rec.Cycles(ctx, session)
		if err != nil {
			t.Fatal(err)
		}
		if len(cycles) != want {
			t.Errorf("session %s recorded %d cycles, want %d", session, len(cycles), want)
		}
	}
}

func TestTraceSessionsWithoutRecorder(t *testing.T) {
	if opts := traceSessions(nil, "run")(); len(opts) != 0 {
		t.Errorf("got %d options without a recorder", len(opts))
	}
}
