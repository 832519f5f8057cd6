// Package manifest handles flatvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "flatvm.toml"

// Defaults applied after decoding.
const (
	DefaultArenaReserve = 1 << 20
	DefaultArenaLimit   = 1 << 28
	DefaultImageFormat  = "binary"
	DefaultTraceDB      = ".flatvm/trace.db"
)

// Manifest represents a flatvm.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Machine MachineConfig `toml:"machine"`
	Trace   TraceConfig   `toml:"trace"`
	Log     LogConfig     `toml:"log"`
	Image   ImageConfig   `toml:"image"`

	// Dir is the directory containing the flatvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// MachineConfig sizes the interpreter.
type MachineConfig struct {
	ArenaReserve int    `toml:"arena-reserve"`
	ArenaLimit   uint64 `toml:"arena-limit"` // bytes; growth past it faults FrameFull
	MaxSteps     uint64 `toml:"max-steps"`   // 0 means unlimited
}

// TraceConfig controls the step trace database.
type TraceConfig struct {
	Enabled bool   `toml:"enabled"`
	DB      string `toml:"db"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ImageConfig names the program image and its encoding.
type ImageConfig struct {
	Entry  string `toml:"entry"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no flatvm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Machine.ArenaReserve <= 0 {
		m.Machine.ArenaReserve = DefaultArenaReserve
	}
	if m.Machine.ArenaLimit == 0 {
		m.Machine.ArenaLimit = DefaultArenaLimit
	}
	if m.Image.Format == "" {
		m.Image.Format = DefaultImageFormat
	}
	if m.Trace.DB == "" {
		m.Trace.DB = DefaultTraceDB
	}
}

// Load parses a flatvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path. Relative paths
// inside it resolve against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a flatvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
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
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes m as flatvm.toml in dir, refusing to replace an existing file.
func Write(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return f.Close()
}

// EntryPath returns the absolute path of the configured program image, or
// "" when none is set.
func (m *Manifest) EntryPath() string {
	if m.Image.Entry == "" {
		return ""
	}
	return m.resolve(m.Image.Entry)
}

// TraceDBPath returns the absolute path of the trace database.
func (m *Manifest) TraceDBPath() string {
	return m.resolve(m.Trace.DB)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
