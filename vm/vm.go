// Package vm is the execution core of javelin: the class model and linker,
// per-loader namespaces, class initialization, the frame arena and bytecode
// interpreter, and the exception propagation engine.
package vm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/petermattis/goid"
	"github.com/tliron/commonlog"
)

var vmLog = commonlog.GetLogger("javelin.vm")

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the tunables of a VM. Zero fields take their defaults.
type Config struct {
	// ArenaInitialSlots is the starting size of each env's frame arena.
	ArenaInitialSlots int
	// ArenaMaxSlots bounds arena growth; exceeding it is StackOverflowError.
	ArenaMaxSlots int
	// NativeHeadroom is the scratch stack reserved by non-bytecode frames.
	NativeHeadroom int
	// WaitTimeout bounds each wait on a class being defined or initialized
	// by another env before the state is re-checked.
	WaitTimeout time.Duration
	// MaxArrayLength caps array allocations; larger requests fail with
	// OutOfMemoryError.
	MaxArrayLength int

	Stdout    io.Writer
	Allocator Allocator
	Verifier  Verifier
	// BootSource supplies bootstrap classes beyond the built-in set.
	BootSource ClassSource
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ArenaInitialSlots: 4096,
		ArenaMaxSlots:     1 << 20,
		NativeHeadroom:    16,
		WaitTimeout:       50 * time.Millisecond,
		MaxArrayLength:    1 << 24,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ArenaInitialSlots <= 0 {
		c.ArenaInitialSlots = d.ArenaInitialSlots
	}
	if c.ArenaMaxSlots <= 0 {
		c.ArenaMaxSlots = d.ArenaMaxSlots
	}
	if c.ArenaInitialSlots > c.ArenaMaxSlots {
		c.ArenaInitialSlots = c.ArenaMaxSlots
	}
	if c.NativeHeadroom <= 0 {
		c.NativeHeadroom = d.NativeHeadroom
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.MaxArrayLength <= 0 {
		c.MaxArrayLength = d.MaxArrayLength
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Allocator == nil {
		c.Allocator = HeapAllocator{}
	}
	if c.Verifier == nil {
		c.Verifier = StructuralVerifier{}
	}
	return c
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one runtime instance: its loaders' namespaces, the bootstrap class
// set, interned strings, native registry and the envs attached to it.
type VM struct {
	cfg Config

	Stdout   io.Writer
	Registry *Registry

	// Well-known classes
	ObjectClass        *Class
	StringClass        *Class
	ClassClass         *Class
	ThrowableClass     *Class
	StringBuilderClass *Class
	CloneableClass     *Class
	SerializableClass  *Class

	core       [coreCount]*Class
	primitives map[string]*Class

	throwableMessage *Field
	throwableCause   *Field

	// SysMonitor is the VM-wide monitor available to natives.
	SysMonitor *Monitor

	strings cmap.ConcurrentMap // text -> *Object
	natives *nativeRegistry

	envs sync.Map // goroutine id -> *Env

	// oom is thrown when building a fresh OutOfMemoryError is impossible.
	oom *Object
}

// New creates a VM and loads its bootstrap classes.
func New(cfg Config) (*VM, error) {
	cfg = cfg.withDefaults()
	vm := &VM{
		cfg:        cfg,
		Stdout:     cfg.Stdout,
		Registry:   newRegistry(cfg.WaitTimeout),
		primitives: make(map[string]*Class),
		SysMonitor: NewMonitor(),
		strings:    cmap.New(),
		natives:    newNativeRegistry(),
	}
	env := vm.newEnv()
	if err := vm.bootstrap(env); err != nil {
		return nil, fmt.Errorf("vm: bootstrap: %w", err)
	}
	vmLog.Debugf("vm ready: %d bootstrap classes", len(vm.Registry.boot.Names()))
	return vm, nil
}

// Config returns the effective configuration.
func (vm *VM) Config() Config { return vm.cfg }

func (vm *VM) waitBounded(ch <-chan struct{}) bool {
	return waitBounded(ch, vm.cfg.WaitTimeout)
}

// ---------------------------------------------------------------------------
// Goroutine binding
// ---------------------------------------------------------------------------

// AttachCurrentThread binds an Env to the calling goroutine, returning the
// existing one if it is already attached.
func (vm *VM) AttachCurrentThread() *Env {
	gid := goid.Get()
	if e, ok := vm.envs.Load(gid); ok {
		return e.(*Env)
	}
	e := vm.newEnv()
	e.goroutine = gid
	vm.envs.Store(gid, e)
	vmLog.Debugf("attached env %s to goroutine %d", e.ID, gid)
	return e
}

// DetachCurrentThread unbinds the calling goroutine's Env.
func (vm *VM) DetachCurrentThread() error {
	gid := goid.Get()
	v, ok := vm.envs.LoadAndDelete(gid)
	if !ok {
		return ErrNoEnv
	}
	e := v.(*Env)
	if e.top != 0 {
		vm.envs.Store(gid, e)
		return fmt.Errorf("%w: env %s still has active frames", ErrInvalidRequest, e.ID)
	}
	vmLog.Debugf("detached env %s", e.ID)
	return nil
}

// CurrentEnv returns the Env bound to the calling goroutine.
func (vm *VM) CurrentEnv() (*Env, error) {
	if e, ok := vm.envs.Load(goid.Get()); ok {
		return e.(*Env), nil
	}
	return nil, ErrNoEnv
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// NewString allocates a java/lang/String holding s.
func (vm *VM) NewString(s string) (*Object, error) {
	o, err := vm.newObject(vm.StringClass)
	if err != nil {
		return nil, err
	}
	o.native = s
	return o, nil
}

// Intern returns the canonical String object for s.
func (vm *VM) Intern(s string) (*Object, error) {
	if v, ok := vm.strings.Get(s); ok {
		return v.(*Object), nil
	}
	o, err := vm.NewString(s)
	if err != nil {
		return nil, err
	}
	vm.strings.SetIfAbsent(s, o)
	v, _ := vm.strings.Get(s)
	return v.(*Object), nil
}

// Primitive returns the class of a primitive type by name ("int").
func (vm *VM) Primitive(name string) *Class {
	return vm.primitives[name]
}
