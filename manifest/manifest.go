// Package manifest handles msvm.toml configuration.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/marksweep/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "msvm.toml"

//go:embed schema.cue
var schemaSource string

// Manifest represents an msvm.toml configuration.
type Manifest struct {
	Heap      Heap      `toml:"heap" json:"heap"`
	Collector Collector `toml:"collector" json:"collector"`
	Log       Log       `toml:"log" json:"log"`
	Trace     Trace     `toml:"trace" json:"trace"`
	Server    Server    `toml:"server" json:"server"`

	// Dir is the directory containing the msvm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Heap configures heap storage.
type Heap struct {
	Strategy string `toml:"strategy" json:"strategy"`
	Capacity int    `toml:"capacity" json:"capacity"`
}

// Collector configures collection thresholds.
type Collector struct {
	InitialThreshold int `toml:"initial-threshold" json:"initial-threshold"`
	MinThreshold     int `toml:"min-threshold" json:"min-threshold"`
}

// Log configures commonlog output. An empty File logs to stderr.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Trace configures the collection-cycle database. Empty disables tracing.
type Trace struct {
	Database string `toml:"database" json:"database"`
}

// Server configures the remote heap service.
type Server struct {
	Addr string `toml:"addr" json:"addr"`
}

// Default returns the configuration used when no msvm.toml exists.
func Default() *Manifest {
	return &Manifest{
		Heap: Heap{
			Strategy: vm.StrategyArena.String(),
			Capacity: vm.DefaultHeapCapacity,
		},
		Collector: Collector{
			InitialThreshold: vm.InitialGCThreshold,
			MinThreshold:     vm.DefaultMinThreshold,
		},
		Server: Server{Addr: "localhost:4568"},
	}
}

// Load parses the msvm.toml file in the given directory. Keys missing from
// the file keep their Default values.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses and validates a configuration file at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an msvm.toml file, then loads
// and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (m *Manifest) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest: bad schema: %w", err)
	}
	value := schema.Unify(ctx.Encode(m))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// ResolvePath returns p relative to the manifest directory unless it is
// already absolute or empty.
func (m *Manifest) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// VMOptions converts the heap and collector sections to vm options.
func (m *Manifest) VMOptions() ([]vm.Option, error) {
	strategy, err := vm.ParseStrategy(m.Heap.Strategy)
	if err != nil {
		return nil, err
	}
	return []vm.Option{
		vm.WithStrategy(strategy),
		vm.WithCapacity(m.Heap.Capacity),
		vm.WithInitialThreshold(m.Collector.InitialThreshold),
		vm.WithMinThreshold(m.Collector.MinThreshold),
	}, nil
}
