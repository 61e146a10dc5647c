package vm

import (
	"errors"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/tliron/commonlog"
)

var nativeLog = commonlog.GetLogger("javelin.native")

// NativeLibrary resolves native method symbols. Symbols are
// "pkg/Class/method" or, for overloaded methods, the descriptor-qualified
// "pkg/Class/method(I)V".
type NativeLibrary interface {
	Lookup(symbol string) (NativeFunc, bool)
}

// MapLibrary is a NativeLibrary backed by a map.
type MapLibrary map[string]NativeFunc

func (l MapLibrary) Lookup(symbol string) (NativeFunc, bool) {
	fn, ok := l[symbol]
	return fn, ok
}

type nativeRegistry struct {
	symbols cmap.ConcurrentMap // symbol -> NativeFunc

	mu   sync.RWMutex
	libs []NativeLibrary
}

func newNativeRegistry() *nativeRegistry {
	return &nativeRegistry{symbols: cmap.New()}
}

// RegisterNative binds fn to a native method. An empty desc registers the
// short symbol matching every overload.
func (vm *VM) RegisterNative(class, name, desc string, fn NativeFunc) {
	sym := class + "/" + name + desc
	vm.natives.symbols.Set(sym, fn)
	nativeLog.Debugf("registered native %s", sym)
}

// LoadLibrary adds lib to the libraries searched for native symbols, after
// those already loaded.
func (vm *VM) LoadLibrary(lib NativeLibrary) {
	vm.natives.mu.Lock()
	vm.natives.libs = append(vm.natives.libs, lib)
	vm.natives.mu.Unlock()
}

func (r *nativeRegistry) lookup(symbol string) (NativeFunc, bool) {
	if v, ok := r.symbols.Get(symbol); ok {
		return v.(NativeFunc), true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lib := range r.libs {
		if fn, ok := lib.Lookup(symbol); ok {
			return fn, true
		}
	}
	return nil, false
}

// resolve finds the implementation of native method m, trying the short
// symbol first unless m's name is overloaded in its class.
func (r *nativeRegistry) resolve(m *Method) (NativeFunc, error) {
	if fn := m.native.Load(); fn != nil {
		return *fn, nil
	}
	short := m.Class.Name + "/" + m.Name
	long := short + m.Descriptor
	order := []string{short, long}
	if overloaded(m) {
		order = []string{long, short}
	}
	for _, sym := range order {
		if fn, ok := r.lookup(sym); ok {
			m.native.Store(&fn)
			return fn, nil
		}
	}
	nativeLog.Warningf("no native implementation for %s", long)
	return nil, errors.New(javaName(m.Class.Name) + "." + m.Name + m.Descriptor)
}

func overloaded(m *Method) bool {
	for _, other := range m.Class.LocalMethods {
		if other != m && other.Name == m.Name {
			return true
		}
	}
	return false
}
