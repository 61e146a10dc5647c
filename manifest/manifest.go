// Package manifest handles javelin.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chazu/javelin/vm"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "javelin.toml"

// Manifest represents a javelin.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Classpath    Classpath             `toml:"classpath"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Runtime      Runtime               `toml:"runtime"`
	Log          Log                   `toml:"log"`

	// Dir is the directory containing the javelin.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Package string `toml:"package"`
	Version string `toml:"version"`
	Main    string `toml:"main"`
}

// Classpath lists class directories and archives, relative to Dir.
type Classpath struct {
	Entries []string `toml:"entries"`
}

// Dependency represents a single project dependency. Its classpath entries
// are appended after the project's own.
type Dependency struct {
	Git     string `toml:"git"`
	Tag     string `toml:"tag"`
	Path    string `toml:"path"`
	Package string `toml:"package"`
}

// Runtime tunes the virtual machine.
type Runtime struct {
	ArenaInitialSlots int    `toml:"arena-initial-slots"`
	ArenaMaxSlots     int    `toml:"arena-max-slots"`
	NativeHeadroom    int    `toml:"native-headroom"`
	WaitTimeout       string `toml:"wait-timeout"`
	MaxArrayLength    int    `toml:"max-array-length"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses a javelin.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Classpath.Entries) == 0 {
		m.Classpath.Entries = []string{"classes"}
	}
	if m.Runtime.WaitTimeout != "" {
		if _, err := time.ParseDuration(m.Runtime.WaitTimeout); err != nil {
			return nil, fmt.Errorf("%s: runtime.wait-timeout: %w", path, err)
		}
	}
	if m.Project.Package != "" && IsReservedPackage(m.Project.Package) {
		return nil, fmt.Errorf("%s: package %q is reserved for bootstrap classes", path, m.Project.Package)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a javelin.toml file,
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

// ClasspathEntries returns absolute paths for the configured entries.
func (m *Manifest) ClasspathEntries() []string {
	var paths []string
	for _, e := range m.Classpath.Entries {
		if filepath.IsAbs(e) {
			paths = append(paths, e)
		} else {
			paths = append(paths, filepath.Join(m.Dir, e))
		}
	}
	return paths
}

// DepsDir returns the path to the .javelin/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".javelin", "deps")
}

// LockFilePath returns the path to .javelin/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".javelin", "lock.toml")
}

// RuntimeConfig converts the [runtime] section to a vm.Config, keeping
// the VM defaults for anything left unset.
func (m *Manifest) RuntimeConfig() vm.Config {
	cfg := vm.DefaultConfig()
	r := m.Runtime
	if r.ArenaInitialSlots > 0 {
		cfg.ArenaInitialSlots = r.ArenaInitialSlots
	}
	if r.ArenaMaxSlots > 0 {
		cfg.ArenaMaxSlots = r.ArenaMaxSlots
	}
	if r.NativeHeadroom > 0 {
		cfg.NativeHeadroom = r.NativeHeadroom
	}
	if d, err := time.ParseDuration(r.WaitTimeout); err == nil && d > 0 {
		cfg.WaitTimeout = d
	}
	if r.MaxArrayLength > 0 {
		cfg.MaxArrayLength = r.MaxArrayLength
	}
	return cfg
}
