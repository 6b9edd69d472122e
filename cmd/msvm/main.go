// msvm - interactive driver for the mark-and-sweep stack VM
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/marksweep/manifest"
	"github.com/chazu/marksweep/server"
	"github.com/chazu/marksweep/tracelog"
	"github.com/chazu/marksweep/vm"
)

var log = commonlog.GetLogger("marksweep.msvm")

func main() {
	configPath := flag.String("config", "", "Path to msvm.toml (default: search upward from the working directory)")
	strategy := flag.String("strategy", "", "Heap strategy: arena or linked (overrides config)")
	verbose := flag.Int("v", 0, "Log verbosity, -4 to 2 (overrides config)")
	serveMode := flag.Bool("serve", false, "Serve heap sessions over Connect instead of starting the REPL")
	addr := flag.String("addr", "", "Server address (used with -serve, overrides config)")
	tracePath := flag.String("trace", "", "SQLite database recording every collection cycle (overrides config)")
	script := flag.String("f", "", "Run commands from a file instead of the REPL")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: msvm [options]\n\n")
		fmt.Fprintf(os.Stderr, "Drives a stack VM whose heap is managed by a mark-and-sweep collector.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  msvm                          # Start REPL with msvm.toml settings\n")
		fmt.Fprintf(os.Stderr, "  msvm -strategy linked -v 2    # Linked heap, debug logging of every cycle\n")
		fmt.Fprintf(os.Stderr, "  msvm -f prog.msvm             # Run a command script\n")
		fmt.Fprintf(os.Stderr, "  msvm -serve -addr :4568       # Serve sessions over Connect\n")
	}
	flag.Parse()

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *strategy != "" {
		m.Heap.Strategy = *strategy
	}
	if isFlagSet("v") {
		m.Log.Verbosity = *verbose
	}
	if *addr != "" {
		m.Server.Addr = *addr
	}
	if *tracePath != "" {
		m.Trace.Database = *tracePath
	}
	if err := m.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if m.Log.File != "" {
		logFile := m.ResolvePath(m.Log.File)
		commonlog.Configure(m.Log.Verbosity, &logFile)
	} else {
		commonlog.Configure(m.Log.Verbosity, nil)
	}

	if err := run(m, *serveMode, *script); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.FindAndLoad(wd)
}

func run(m *manifest.Manifest, serve bool, script string) error {
	vmOpts, err := m.VMOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var rec *tracelog.Recorder
	if m.Trace.Database != "" {
		rec, err = tracelog.Open(ctx, m.ResolvePath(m.Trace.Database))
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	if serve {
		return runServer(ctx, m.Server.Addr, vmOpts, rec)
	}

	// Snapshots loaded from the REPL keep their own strategy and threshold,
	// so only the recorder carries over to them.
	traceOpts := traceSessions(rec, sessionName(script))
	sh := newShell(vm.New(append(vmOpts, traceOpts()...)...), traceOpts, os.Stdout)
	defer sh.close()

	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return fmt.Errorf("cannot open script: %w", err)
		}
		defer f.Close()
		return sh.runScript(f)
	}
	return sh.runREPL()
}

func runServer(ctx context.Context, addr string, vmOpts []vm.Option, rec *tracelog.Recorder) error {
	opts := []server.ServerOption{server.WithVMOptions(vmOpts...)}
	if rec != nil {
		opts = append(opts, server.WithRecorder(rec))
	}
	srv := server.New(opts...)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Noticef("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// traceSessions returns a function giving each new VM an observer for its
// own tracelog session: base for the first VM, then base.1, base.2 and so
// on for VMs restored by load. Cycle numbers restart with every VM.
func traceSessions(rec *tracelog.Recorder, base string) func() []vm.Option {
	n := 0
	return func() []vm.Option {
		if rec == nil {
			return nil
		}
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		n++
		return []vm.Option{vm.WithObserver(rec.Observer(name))}
	}
}

// sessionName names the tracelog session for a REPL or script run.
func sessionName(script string) string {
	name := "repl"
	if script != "" {
		name = filepath.Base(script)
	}
	return fmt.Sprintf("%s-%s", name, time.Now().UTC().Format("20060102T150405"))
}
