package vm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var nsLog = commonlog.GetLogger("javelin.namespace")

// ---------------------------------------------------------------------------
// Namespace: name -> class table of one loader
// ---------------------------------------------------------------------------

// nsEntry is either a defined class or a placeholder recording the env that
// is currently defining the name.
type nsEntry struct {
	class   *Class
	definer *Env
}

// Namespace maps internal names to classes for a single loader. Lookups that
// find a name being defined by another env wait for the outcome; the same
// env finding its own placeholder is a circularity.
type Namespace struct {
	mu      sync.Mutex
	entries map[string]*nsEntry
	changed chan struct{}
	wait    time.Duration
}

func newNamespace(wait time.Duration) *Namespace {
	return &Namespace{
		entries: make(map[string]*nsEntry),
		wait:    wait,
	}
}

func (ns *Namespace) broadcastLocked() {
	if ns.changed != nil {
		close(ns.changed)
		ns.changed = nil
	}
}

func (ns *Namespace) waitChanLocked() <-chan struct{} {
	if ns.changed == nil {
		ns.changed = make(chan struct{})
	}
	return ns.changed
}

// RetrieveClass looks name up. It returns ErrClassNotFound when the name is
// absent and ErrClassCircularity when env itself is in the middle of
// defining it. A definition in progress on another env is waited for.
func (ns *Namespace) RetrieveClass(env *Env, name string) (*Class, error) {
	for {
		ns.mu.Lock()
		e, ok := ns.entries[name]
		switch {
		case !ok:
			ns.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		case e.class != nil:
			ns.mu.Unlock()
			return e.class, nil
		case env != nil && e.definer == env:
			ns.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrClassCircularity, name)
		}
		ch := ns.waitChanLocked()
		ns.mu.Unlock()
		if !waitBounded(ch, ns.wait) {
			nsLog.Debugf("retrying lookup of %s", name)
		}
	}
}

// beginDefine reserves name for env. When the name is already defined the
// existing class is returned instead.
func (ns *Namespace) beginDefine(env *Env, name string) (*Class, error) {
	for {
		ns.mu.Lock()
		e, ok := ns.entries[name]
		switch {
		case !ok:
			ns.entries[name] = &nsEntry{definer: env}
			ns.mu.Unlock()
			return nil, nil
		case e.class != nil:
			ns.mu.Unlock()
			return e.class, nil
		case e.definer == env:
			ns.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrClassCircularity, name)
		}
		ch := ns.waitChanLocked()
		ns.mu.Unlock()
		waitBounded(ch, ns.wait)
	}
}

// finishDefine replaces env's placeholder with c.
func (ns *Namespace) finishDefine(env *Env, c *Class) (*Class, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	e, ok := ns.entries[c.Name]
	if ok && e.class != nil {
		return e.class, fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
	}
	if ok && e.definer != env {
		return nil, fmt.Errorf("%w: %s is being defined elsewhere", ErrDuplicateClass, c.Name)
	}
	ns.entries[c.Name] = &nsEntry{class: c}
	ns.broadcastLocked()
	nsLog.Debugf("defined %s", c.Name)
	return c, nil
}

// abortDefine drops env's placeholder after a failed definition.
func (ns *Namespace) abortDefine(env *Env, name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if e, ok := ns.entries[name]; ok && e.class == nil && e.definer == env {
		delete(ns.entries, name)
		ns.broadcastLocked()
	}
}

// NameSpaceStore inserts c. On a name collision the existing class is
// returned when allowDuplicate is set (synthesized array and primitive
// classes), otherwise the collision is ErrDuplicateClass.
func (ns *Namespace) NameSpaceStore(c *Class, allowDuplicate bool) (*Class, error) {
	for {
		ns.mu.Lock()
		e, ok := ns.entries[c.Name]
		if !ok {
			ns.entries[c.Name] = &nsEntry{class: c}
			ns.broadcastLocked()
			ns.mu.Unlock()
			return c, nil
		}
		if e.class != nil {
			ns.mu.Unlock()
			if allowDuplicate {
				return e.class, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
		}
		ch := ns.waitChanLocked()
		ns.mu.Unlock()
		waitBounded(ch, ns.wait)
	}
}

// RegisterClasses stores a batch of mutually referencing classes atomically.
// Names being defined by another env are waited for first, as
// RetrieveClass does. When every name is then already defined the existing
// instances are returned in place of the batch; result[i] == classes[i]
// means the batch was stored. A batch that overlaps the namespace only
// partly is ErrDuplicateClass and stores nothing. The caller must not hold
// a placeholder for any name in the batch.
func (ns *Namespace) RegisterClasses(classes []*Class) ([]*Class, error) {
	for {
		ns.mu.Lock()
		pending, defined := "", 0
		for _, c := range classes {
			e, ok := ns.entries[c.Name]
			switch {
			case !ok:
			case e.class == nil:
				pending = c.Name
			default:
				defined++
			}
			if pending != "" {
				break
			}
		}
		if pending != "" {
			ch := ns.waitChanLocked()
			ns.mu.Unlock()
			if !waitBounded(ch, ns.wait) {
				nsLog.Debugf("batch waiting for %s", pending)
			}
			continue
		}

		switch defined {
		case 0:
			for _, c := range classes {
				ns.entries[c.Name] = &nsEntry{class: c}
			}
			ns.broadcastLocked()
			ns.mu.Unlock()
			return classes, nil
		case len(classes):
			out := make([]*Class, len(classes))
			for i, c := range classes {
				out[i] = ns.entries[c.Name].class
			}
			ns.mu.Unlock()
			return out, nil
		}
		ns.mu.Unlock()
		return nil, fmt.Errorf("%w: batch overlaps %d of %d defined classes", ErrDuplicateClass, defined, len(classes))
	}
}

// Lookup returns a defined class without waiting.
func (ns *Namespace) Lookup(name string) *Class {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if e, ok := ns.entries[name]; ok {
		return e.class
	}
	return nil
}

// Names lists defined class names in order.
func (ns *Namespace) Names() []string {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	names := make([]string, 0, len(ns.entries))
	for name, e := range ns.entries {
		if e.class != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Registry: loader -> namespace
// ---------------------------------------------------------------------------

// Registry owns the namespace of every live loader. The bootstrap loader
// (nil) always has one.
type Registry struct {
	mu       sync.RWMutex
	boot     *Namespace
	byLoader map[*ClassLoader]*Namespace
	wait     time.Duration
}

func newRegistry(wait time.Duration) *Registry {
	return &Registry{
		boot:     newNamespace(wait),
		byLoader: make(map[*ClassLoader]*Namespace),
		wait:     wait,
	}
}

// Namespace returns loader's namespace, creating it on first use.
func (r *Registry) Namespace(loader *ClassLoader) *Namespace {
	if loader == nil {
		return r.boot
	}
	r.mu.RLock()
	ns, ok := r.byLoader[loader]
	r.mu.RUnlock()
	if ok {
		return ns
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns, ok = r.byLoader[loader]; !ok {
		ns = newNamespace(r.wait)
		r.byLoader[loader] = ns
	}
	return ns
}

// RetrieveClass looks name up in loader's namespace.
func (r *Registry) RetrieveClass(env *Env, loader *ClassLoader, name string) (*Class, error) {
	return r.Namespace(loader).RetrieveClass(env, name)
}

// NameSpaceStore inserts c into loader's namespace.
func (r *Registry) NameSpaceStore(loader *ClassLoader, c *Class, allowDuplicate bool) (*Class, error) {
	return r.Namespace(loader).NameSpaceStore(c, allowDuplicate)
}

// RegisterClasses stores a batch into loader's namespace.
func (r *Registry) RegisterClasses(loader *ClassLoader, classes []*Class) ([]*Class, error) {
	return r.Namespace(loader).RegisterClasses(classes)
}

// DiscardLoader releases loader's namespace. Classes it defined stay valid
// for objects that still reference them.
func (r *Registry) DiscardLoader(loader *ClassLoader) {
	if loader == nil {
		return
	}
	r.mu.Lock()
	delete(r.byLoader, loader)
	r.mu.Unlock()
	nsLog.Debugf("discarded loader %s", loader.Name)
}

// waitBounded blocks until ch is closed or d elapses, reporting which.
func waitBounded(ch <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
