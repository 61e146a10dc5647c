// Package classpath locates class definitions by binary name. A Source
// may be a directory of YAML or CBOR files, a SQLite class archive, or a
// chain of other sources searched in order.
package classpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chazu/javelin/classfile"
	"github.com/tliron/commonlog"
)

// ErrNotFound is returned by a Source that has no definition for a name.
var ErrNotFound = errors.New("classpath: class not found")

var log = commonlog.GetLogger("javelin.classpath")

// Source finds class definitions by binary name ("demo/Main").
type Source interface {
	Find(name string) (*classfile.Class, error)
	String() string
}

// ---------------------------------------------------------------------------
// Directory source
// ---------------------------------------------------------------------------

// Dir serves classes from a directory tree. A class a/b/C is looked up as
// a/b/C.cbor and then a/b/C.yaml. YAML files may define several classes; all
// of them are cached once the file is read.
type Dir struct {
	Root string

	mu    sync.Mutex
	cache map[string]*classfile.Class
}

// NewDir returns a directory source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root, cache: make(map[string]*classfile.Class)}
}

func (d *Dir) String() string { return d.Root }

// Find implements Source.
func (d *Dir) Find(name string) (*classfile.Class, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cache[name]; ok {
		return c, nil
	}

	base := filepath.Join(d.Root, filepath.FromSlash(name))
	if data, err := os.ReadFile(base + ".cbor"); err == nil {
		c, err := classfile.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("classpath: %s.cbor: %w", base, err)
		}
		return d.remember(name, c)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("classpath: %w", err)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		classes, err := classfile.LoadYAML(base + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var found *classfile.Class
		for _, c := range classes {
			if _, seen := d.cache[c.Name]; !seen {
				d.cache[c.Name] = c
			}
			if c.Name == name {
				found = c
			}
		}
		if found != nil {
			log.Debugf("loaded %s from %s%s", name, base, ext)
			return found, nil
		}
	}
	return nil, ErrNotFound
}

func (d *Dir) remember(name string, c *classfile.Class) (*classfile.Class, error) {
	if c.Name != name {
		return nil, fmt.Errorf("classpath: %s: file defines %s", name, c.Name)
	}
	d.cache[name] = c
	log.Debugf("loaded %s from %s", name, d.Root)
	return c, nil
}

// Walk returns every class definable from the directory.
func (d *Dir) Walk() ([]*classfile.Class, error) {
	var out []*classfile.Class
	err := filepath.WalkDir(d.Root, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		switch filepath.Ext(path) {
		case ".cbor":
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			c, err := classfile.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out = append(out, c)
		case ".yaml", ".yml":
			classes, err := classfile.LoadYAML(path)
			if err != nil {
				return err
			}
			out = append(out, classes...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classpath: walk %s: %w", d.Root, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Memory source
// ---------------------------------------------------------------------------

// Memory serves classes already parsed, such as those read from YAML files
// named on the command line.
type Memory map[string]*classfile.Class

// OpenBundle reads a CBOR class bundle written by classfile.MarshalBundle.
func OpenBundle(path string) (Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: %w", err)
	}
	classes, err := classfile.UnmarshalBundle(data)
	if err != nil {
		return nil, fmt.Errorf("classpath: %s: %w", path, err)
	}
	log.Debugf("bundle %s: %d classes", path, len(classes))
	return NewMemory(classes...), nil
}

// NewMemory indexes classes by name.
func NewMemory(classes ...*classfile.Class) Memory {
	m := make(Memory, len(classes))
	for _, c := range classes {
		m[c.Name] = c
	}
	return m
}

func (m Memory) String() string { return "memory" }

// Find implements Source.
func (m Memory) Find(name string) (*classfile.Class, error) {
	if c, ok := m[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

// Chain searches its sources in order and returns the first definition.
type Chain []Source

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// Find implements Source.
func (c Chain) Find(name string) (*classfile.Class, error) {
	for _, s := range c {
		cls, err := s.Find(name)
		if err == nil {
			return cls, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Open builds a chain from classpath entries. Entries ending in .db or
// .sqlite are opened as archives, .bundle files are read whole, and
// everything else must be a directory.
func Open(entries []string) (Chain, error) {
	var chain Chain
	for _, e := range entries {
		if e == "" {
			continue
		}
		switch strings.ToLower(filepath.Ext(e)) {
		case ".db", ".sqlite":
			a, err := OpenArchive(e)
			if err != nil {
				chain.Close()
				return nil, err
			}
			chain = append(chain, a)
		case ".bundle":
			m, err := OpenBundle(e)
			if err != nil {
				chain.Close()
				return nil, err
			}
			chain = append(chain, m)
		default:
			info, err := os.Stat(e)
			if err != nil {
				chain.Close()
				return nil, fmt.Errorf("classpath: %w", err)
			}
			if !info.IsDir() {
				chain.Close()
				return nil, fmt.Errorf("classpath: %s is not a directory or archive", e)
			}
			chain = append(chain, NewDir(e))
		}
	}
	return chain, nil
}

// Close releases any archives in the chain.
func (c Chain) Close() error {
	var errs []error
	for _, s := range c {
		if a, ok := s.(*Archive); ok {
			errs = append(errs, a.Close())
		}
	}
	return errors.Join(errs...)
}
