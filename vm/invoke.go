package vm

import (
	"fmt"

	"github.com/chazu/javelin/classfile"
)

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// selectVirtual re-resolves m against the receiver's class through its
// primary table.
func (e *Env) selectVirtual(m *Method, rc *Class) (*Method, error) {
	if m.MethodIndex < 0 {
		return m, nil
	}
	if m.Class.IsInterface() {
		return e.selectInterface(m.Class, m.MethodIndex, rc)
	}
	if rc != m.Class && !m.Class.IsAssignableFrom(rc) {
		return nil, e.ThrowCore(CoreIncompatibleClassChangeError,
			fmt.Sprintf("%s is not a subclass of %s", rc.JavaName(), m.Class.JavaName()))
	}
	return rc.VTable[m.MethodIndex], nil
}

// selectInterface finds the implementation of iface's slot for rc: the
// position of iface in rc's AssignList selects the interface map, which
// yields the primary slot.
func (e *Env) selectInterface(iface *Class, slot int, rc *Class) (*Method, error) {
	k := rc.assignIndex(iface)
	if k < 0 || rc.ITables[k] == nil {
		return nil, e.ThrowCore(CoreIncompatibleClassChangeError,
			fmt.Sprintf("Class %s does not implement the requested interface %s", rc.JavaName(), iface.JavaName()))
	}
	itab := rc.ITables[k]
	if slot < 0 || slot >= len(itab) {
		return nil, fmt.Errorf("%w: slot %d outside %s", ErrInvalidRequest, slot, iface.Name)
	}
	target := rc.VTable[itab[slot]]
	if target.IsAbstract() {
		return nil, e.ThrowCore(CoreAbstractMethodError, target.Class.JavaName()+"."+target.Name+target.Descriptor)
	}
	return target, nil
}

// ---------------------------------------------------------------------------
// Entry points for native callers
//
// Arguments, receiver first, must already be pushed on the current frame.
// Each call returns the result, ErrExceptionPending with the fault left on
// the env, or ErrInvalidRequest for misuse.
// ---------------------------------------------------------------------------

func (e *Env) ready() error {
	if e.pending != nil {
		return fmt.Errorf("%w: call with %s pending", ErrInvalidRequest, e.pending.Class.Name)
	}
	if e.frames[e.top].Kind == FrameBytecode {
		return fmt.Errorf("%w: call from a bytecode frame", ErrInvalidRequest)
	}
	return nil
}

func (e *Env) receiver(m *Method) (*Object, error) {
	f := &e.frames[e.top]
	if m.IsStatic() || f.SP-f.StackBase < m.StackConsume {
		return nil, fmt.Errorf("%w: no receiver for %s", ErrInvalidRequest, m)
	}
	recv := e.slots[f.SP-m.StackConsume].Ref
	if recv == nil {
		e.dropArgs(m)
		return nil, e.ThrowCore(CoreNullPointerException, "")
	}
	return recv, nil
}

// CallMethod invokes m the way bytecode would: statics after class
// initialization, constructors and private methods directly, everything
// else through the receiver's dispatch tables.
func (e *Env) CallMethod(m *Method) (Slot, error) {
	switch {
	case m.IsStatic():
		return e.callStatic(m)
	case m.MethodIndex < 0:
		return e.CallNonvirtualMethod(m)
	}
	return e.callVirtual(m)
}

// Call pushes args and invokes m with CallMethod.
func (e *Env) Call(m *Method, args ...Slot) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	for _, a := range args {
		if err := e.Push(a); err != nil {
			return Slot{}, err
		}
	}
	return e.CallMethod(m)
}

func (e *Env) callStatic(m *Method) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	if !m.IsStatic() {
		return Slot{}, fmt.Errorf("%w: %s is not static", ErrInvalidRequest, m)
	}
	if err := e.InitializeClass(m.Class); err != nil {
		e.dropArgs(m)
		return Slot{}, err
	}
	return e.ExecuteMethod(m)
}

func (e *Env) callVirtual(m *Method) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	recv, err := e.receiver(m)
	if err != nil {
		return Slot{}, err
	}
	target, err := e.selectVirtual(m, recv.Class)
	if err != nil {
		e.dropArgs(m)
		return Slot{}, err
	}
	return e.ExecuteMethod(target)
}

// CallNonvirtualMethod invokes instance method m exactly, without dispatch.
func (e *Env) CallNonvirtualMethod(m *Method) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	if _, err := e.receiver(m); err != nil {
		return Slot{}, err
	}
	return e.ExecuteMethod(m)
}

// CallStaticMethod invokes c.LocalMethods[index].
func (e *Env) CallStaticMethod(c *Class, index int) (Slot, error) {
	if index < 0 || index >= len(c.LocalMethods) {
		return Slot{}, fmt.Errorf("%w: %s has no method %d", ErrInvalidRequest, c.Name, index)
	}
	return e.callStatic(c.LocalMethods[index])
}

// CallInstanceMethod invokes primary slot index of c, re-resolved against
// the receiver.
func (e *Env) CallInstanceMethod(c *Class, index int) (Slot, error) {
	if index < 0 || index >= len(c.VTable) {
		return Slot{}, fmt.Errorf("%w: %s has no slot %d", ErrInvalidRequest, c.Name, index)
	}
	return e.callVirtual(c.VTable[index])
}

// CallInterfaceMethod invokes slot index of interface iface on the
// receiver.
func (e *Env) CallInterfaceMethod(iface *Class, index int) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	if !iface.IsInterface() || index < 0 || index >= len(iface.VTable) {
		return Slot{}, fmt.Errorf("%w: %s has no interface slot %d", ErrInvalidRequest, iface.Name, index)
	}
	recv, err := e.receiver(iface.VTable[index])
	if err != nil {
		return Slot{}, err
	}
	target, err := e.selectInterface(iface, index, recv.Class)
	if err != nil {
		e.dropArgs(iface.VTable[index])
		return Slot{}, err
	}
	return e.ExecuteMethod(target)
}

// CallStaticRef invokes the static method named by constant cpIndex of
// from's pool.
func (e *Env) CallStaticRef(from *Class, cpIndex uint16) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	m, err := e.resolveMethod(from, cpIndex)
	if err != nil {
		e.dropRefArgs(from, cpIndex, false)
		return Slot{}, err
	}
	if !m.IsStatic() {
		e.dropRefArgs(from, cpIndex, false)
		return Slot{}, e.ThrowCore(CoreIncompatibleClassChangeError, "Expected static method "+m.String())
	}
	return e.callStatic(m)
}

// CallVirtualRef invokes the instance method named by constant cpIndex.
func (e *Env) CallVirtualRef(from *Class, cpIndex uint16) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	m, err := e.resolveMethod(from, cpIndex)
	if err != nil {
		e.dropRefArgs(from, cpIndex, true)
		return Slot{}, err
	}
	if m.IsStatic() {
		e.dropRefArgs(from, cpIndex, true)
		return Slot{}, e.ThrowCore(CoreIncompatibleClassChangeError, "Expected non-static method "+m.String())
	}
	return e.callVirtual(m)
}

// CallInterfaceRef invokes the interface method named by constant cpIndex.
func (e *Env) CallInterfaceRef(from *Class, cpIndex uint16) (Slot, error) {
	if err := e.ready(); err != nil {
		return Slot{}, err
	}
	m, err := e.resolveMethod(from, cpIndex)
	if err != nil {
		e.dropRefArgs(from, cpIndex, true)
		return Slot{}, err
	}
	if m.IsStatic() {
		e.dropRefArgs(from, cpIndex, true)
		return Slot{}, e.ThrowCore(CoreIncompatibleClassChangeError, "Expected non-static method "+m.String())
	}
	return e.callVirtual(m)
}

// dropRefArgs discards the arguments pushed for a by-reference call that
// failed before a method was selected. The count comes from the reference's
// descriptor since the method itself may not exist.
func (e *Env) dropRefArgs(from *Class, cpIndex uint16, receiver bool) {
	if from.File == nil {
		return
	}
	k, err := from.File.Constant(int(cpIndex))
	if err != nil {
		return
	}
	n, err := classfile.ArgSlots(k.Descriptor)
	if err != nil {
		return
	}
	if receiver {
		n++
	}
	e.dropSlots(n)
}
