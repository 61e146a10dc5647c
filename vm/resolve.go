package vm

import (
	"fmt"
	"sync"

	"github.com/chazu/javelin/classfile"
)

// linkCache memoizes resolved constant pool entries of one class. Entries
// are only added, so a hit never needs revalidation.
type linkCache struct {
	mu      sync.RWMutex
	classes map[uint16]*Class
	fields  map[uint16]*Field
	methods map[uint16]*Method
	strings map[uint16]*Object
}

func (lc *linkCache) class(idx uint16) *Class {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.classes[idx]
}

func (lc *linkCache) field(idx uint16) *Field {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.fields[idx]
}

func (lc *linkCache) method(idx uint16) *Method {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.methods[idx]
}

func (lc *linkCache) str(idx uint16) *Object {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.strings[idx]
}

func (lc *linkCache) put(idx uint16, v any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	switch v := v.(type) {
	case *Class:
		if lc.classes == nil {
			lc.classes = make(map[uint16]*Class)
		}
		lc.classes[idx] = v
	case *Field:
		if lc.fields == nil {
			lc.fields = make(map[uint16]*Field)
		}
		lc.fields[idx] = v
	case *Method:
		if lc.methods == nil {
			lc.methods = make(map[uint16]*Method)
		}
		lc.methods[idx] = v
	case *Object:
		if lc.strings == nil {
			lc.strings = make(map[uint16]*Object)
		}
		lc.strings[idx] = v
	}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func (e *Env) constant(from *Class, idx uint16, tags ...classfile.ConstantTag) (classfile.Constant, error) {
	k, err := from.File.Constant(int(idx))
	if err != nil {
		return k, e.ThrowCore(CoreClassFormatError, err.Error())
	}
	for _, t := range tags {
		if k.Tag == t {
			return k, nil
		}
	}
	return k, e.ThrowCore(CoreClassFormatError, fmt.Sprintf("%s: constant #%d is %s", from.Name, idx, k.Tag))
}

// resolveClass resolves a Class constant of from's pool.
func (e *Env) resolveClass(from *Class, idx uint16) (*Class, error) {
	if c := from.links.class(idx); c != nil {
		return c, nil
	}
	k, err := e.constant(from, idx, classfile.TagClass)
	if err != nil {
		return nil, err
	}
	c, err := e.FindClass(from.Loader, k.Text, true)
	if err != nil {
		return nil, err
	}
	from.links.put(idx, c)
	return c, nil
}

// resolveField resolves a Fieldref constant and checks its static-ness.
func (e *Env) resolveField(from *Class, idx uint16, static bool) (*Field, error) {
	f := from.links.field(idx)
	if f == nil {
		k, err := e.constant(from, idx, classfile.TagFieldref)
		if err != nil {
			return nil, err
		}
		owner, err := e.FindClass(from.Loader, k.Class, true)
		if err != nil {
			return nil, err
		}
		if f = owner.FindField(k.Name, k.Descriptor); f == nil {
			return nil, e.ThrowCore(CoreNoSuchFieldError, owner.JavaName()+"."+k.Name)
		}
		from.links.put(idx, f)
	}
	if f.IsStatic() != static {
		kind := "non-static"
		if static {
			kind = "static"
		}
		return nil, e.ThrowCore(CoreIncompatibleClassChangeError, fmt.Sprintf("Expected %s field %s", kind, f))
	}
	return f, nil
}

// resolveMethod resolves a Methodref or InterfaceMethodref constant.
func (e *Env) resolveMethod(from *Class, idx uint16) (*Method, error) {
	if m := from.links.method(idx); m != nil {
		return m, nil
	}
	k, err := e.constant(from, idx, classfile.TagMethodref, classfile.TagInterfaceMethodref)
	if err != nil {
		return nil, err
	}
	owner, err := e.FindClass(from.Loader, k.Class, true)
	if err != nil {
		return nil, err
	}
	var m *Method
	if k.Tag == classfile.TagInterfaceMethodref {
		if !owner.IsInterface() {
			return nil, e.ThrowCore(CoreIncompatibleClassChangeError, "Found class "+owner.JavaName()+", but interface was expected")
		}
		m = owner.FindInterfaceMethod(k.Name, k.Descriptor)
	} else {
		if owner.IsInterface() {
			return nil, e.ThrowCore(CoreIncompatibleClassChangeError, "Found interface "+owner.JavaName()+", but class was expected")
		}
		m = owner.FindMethod(k.Name, k.Descriptor)
	}
	if m == nil {
		return nil, e.ThrowCore(CoreNoSuchMethodError, owner.JavaName()+"."+k.Name+k.Descriptor)
	}
	from.links.put(idx, m)
	return m, nil
}

// resolveString returns the interned String for a String constant.
func (e *Env) resolveString(from *Class, idx uint16) (*Object, error) {
	if s := from.links.str(idx); s != nil {
		return s, nil
	}
	k, err := e.constant(from, idx, classfile.TagString)
	if err != nil {
		return nil, err
	}
	s, err := e.vm.Intern(k.Text)
	if err != nil {
		return nil, e.raiseAllocFailure(err)
	}
	from.links.put(idx, s)
	return s, nil
}

// Mirror returns the java/lang/Class object representing c.
func (vm *VM) Mirror(c *Class) (*Object, error) {
	c.mirrorMu.Lock()
	defer c.mirrorMu.Unlock()
	if c.mirror != nil {
		return c.mirror, nil
	}
	if vm.ClassClass == nil {
		return nil, fmt.Errorf("%w: mirror of %s requested before java/lang/Class exists", ErrInvalidRequest, c.Name)
	}
	o, err := vm.newObject(vm.ClassClass)
	if err != nil {
		return nil, err
	}
	o.native = c
	c.mirror = o
	return o, nil
}

// ClassOfMirror returns the class a java/lang/Class object represents.
func ClassOfMirror(o *Object) *Class {
	if o == nil {
		return nil
	}
	c, _ := o.native.(*Class)
	return c
}
