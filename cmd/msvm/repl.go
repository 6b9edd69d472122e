package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/chazu/marksweep/vm"
)

// errQuit ends the REPL or a script.
var errQuit = errors.New("quit")

// shell executes msvm commands against one VM.
type shell struct {
	vm  *vm.VM
	out io.Writer

	// loadOpts returns the options for a VM restored by load. It is called
	// once per load so each VM can get its own trace session.
	loadOpts func() []vm.Option
}

func newShell(v *vm.VM, loadOpts func() []vm.Option, out io.Writer) *shell {
	return &shell{vm: v, loadOpts: loadOpts, out: out}
}

// close empties the heap, reporting any objects a final collection could
// not reclaim.
func (sh *shell) close() {
	sh.vm.Close()
	if !sh.vm.IsEmpty() {
		log.Errorf("heap holds %d objects after close", sh.vm.NumObjects())
	}
}

// runREPL starts an interactive read-eval-print loop.
func (sh *shell) runREPL() error {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".msvm_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("msvm[%s]> ", sh.vm.Strategy()),
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(sh.out, "msvm REPL (type 'help' for commands, 'quit' to exit)")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = sh.exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		rl.SetPrompt(fmt.Sprintf("msvm[%s]> ", sh.vm.Strategy()))
	}
}

// runScript executes commands from r one per line, stopping at the first
// error. Blank lines and lines starting with '#' are skipped.
func (sh *shell) runScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		err := sh.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// exec runs a single command line. A stack underflow is returned as an
// error matching vm.ErrStackUnderflow rather than crashing the shell.
func (sh *shell) exec(line string) (err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok || !errors.Is(rerr, vm.ErrStackUnderflow) {
				panic(r)
			}
			err = rerr
		}
	}()

	switch cmd {
	case "int", "push":
		if len(args) != 1 {
			return fmt.Errorf("usage: int N")
		}
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad integer %q", args[0])
		}
		ref := sh.vm.PushInt(n)
		fmt.Fprintf(sh.out, "%s\n", ref)
	case "pair":
		ref := sh.vm.PushPair()
		fmt.Fprintf(sh.out, "%s\n", ref)
	case "pop":
		value, err := sh.vm.Format(sh.vm.Pop())
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, value)
	case "drop":
		sh.vm.Drop()
	case "gc":
		s := sh.vm.GC()
		fmt.Fprintf(sh.out, "cycle %d: %d marked, %d reclaimed, %d live, next at %d (%s)\n",
			s.Cycle, s.Marked, s.Reclaimed, s.LiveAfter, s.Threshold, s.Duration)
	case "stats":
		fmt.Fprintf(sh.out, "strategy:    %s\n", sh.vm.Strategy())
		fmt.Fprintf(sh.out, "objects:     %d\n", sh.vm.NumObjects())
		fmt.Fprintf(sh.out, "threshold:   %d\n", sh.vm.Threshold())
		fmt.Fprintf(sh.out, "stack depth: %d\n", sh.vm.StackDepth())
		fmt.Fprintf(sh.out, "collections: %d\n", sh.vm.Collections())
	case "stack":
		roots := sh.vm.Roots()
		for i := len(roots) - 1; i >= 0; i-- {
			value, err := sh.vm.Format(roots[i])
			if err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "%3d  %s\n", len(roots)-1-i, value)
		}
	case "verify":
		if err := sh.vm.Verify(); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "ok")
	case "save":
		if len(args) != 1 {
			return fmt.Errorf("usage: save FILE")
		}
		if err := sh.vm.SaveSnapshot(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "saved %d objects to %s\n", sh.vm.NumObjects(), args[0])
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("usage: load FILE")
		}
		var opts []vm.Option
		if sh.loadOpts != nil {
			opts = sh.loadOpts()
		}
		loaded, err := vm.LoadSnapshot(args[0], opts...)
		if err != nil {
			return err
		}
		sh.vm.Close()
		sh.vm = loaded
		fmt.Fprintf(sh.out, "loaded %d objects, stack depth %d\n", loaded.NumObjects(), loaded.StackDepth())
	case "help":
		fmt.Fprintln(sh.out, "Commands:")
		fmt.Fprintln(sh.out, "  int N        Push an integer")
		fmt.Fprintln(sh.out, "  pair         Replace the top two values with a pair")
		fmt.Fprintln(sh.out, "  pop          Pop and print the top value")
		fmt.Fprintln(sh.out, "  drop         Pop the top value without printing it")
		fmt.Fprintln(sh.out, "  gc           Force a collection")
		fmt.Fprintln(sh.out, "  stats        Show heap statistics")
		fmt.Fprintln(sh.out, "  stack        Print the stack, top first")
		fmt.Fprintln(sh.out, "  verify       Check heap consistency")
		fmt.Fprintln(sh.out, "  save FILE    Write a snapshot")
		fmt.Fprintln(sh.out, "  load FILE    Replace the VM with a snapshot")
		fmt.Fprintln(sh.out, "  quit, exit   Leave")
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (type help for commands)", cmd)
	}
	return nil
}
