package vm

import (
	"fmt"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/pkg/bytecode"
)

// Fields, invocation, allocation, arrays, type checks and monitors.
func registerObjectOps() {
	on(bytecode.OpGetstatic, opGetstatic)
	on(bytecode.OpPutstatic, opPutstatic)
	on(bytecode.OpGetfield, opGetfield)
	on(bytecode.OpPutfield, opPutfield)

	on(bytecode.OpInvokevirtual, opInvokevirtual)
	on(bytecode.OpInvokespecial, opInvokespecial)
	on(bytecode.OpInvokestatic, opInvokestatic)
	on(bytecode.OpInvokeinterface, opInvokevirtual)
	on(bytecode.OpInvokedynamic, func(e *Env, f *Frame) error {
		return e.ThrowCore(CoreIncompatibleClassChangeError, "invokedynamic is not supported")
	})

	on(bytecode.OpNew, opNew)
	on(bytecode.OpNewarray, opNewarray)
	on(bytecode.OpAnewarray, opAnewarray)
	on(bytecode.OpMultianewarray, opMultianewarray)
	on(bytecode.OpArraylength, func(e *Env, f *Frame) error {
		arr := e.peek(f, 0).Ref
		if arr == nil {
			return e.ThrowCore(CoreNullPointerException, "")
		}
		f.SP--
		e.push(f, IntSlot(int32(arr.Len())))
		f.PC++
		return nil
	})
	for op := bytecode.OpIaload; op <= bytecode.OpSaload; op++ {
		on(op, opArrayLoad)
	}
	for op := bytecode.OpIastore; op <= bytecode.OpSastore; op++ {
		on(op, opArrayStore)
	}

	on(bytecode.OpAthrow, func(e *Env, f *Frame) error {
		obj := e.peek(f, 0).Ref
		if obj == nil {
			return e.ThrowCore(CoreNullPointerException, "")
		}
		return e.Throw(obj)
	})
	on(bytecode.OpCheckcast, func(e *Env, f *Frame) error {
		obj := e.peek(f, 0).Ref
		if obj == nil {
			f.PC += 3
			return nil
		}
		c, err := e.resolveClass(f.Method.Class, uint16(u16(f, 1)))
		if err != nil {
			return err
		}
		f = &e.frames[e.top]
		if !c.IsAssignableFrom(obj.Class) {
			return e.ThrowCore(CoreClassCastException,
				fmt.Sprintf("class %s cannot be cast to class %s", obj.Class.JavaName(), c.JavaName()))
		}
		f.PC += 3
		return nil
	})
	on(bytecode.OpInstanceof, func(e *Env, f *Frame) error {
		obj := e.peek(f, 0).Ref
		result := false
		if obj != nil {
			c, err := e.resolveClass(f.Method.Class, uint16(u16(f, 1)))
			if err != nil {
				return err
			}
			f = &e.frames[e.top]
			result = c.IsAssignableFrom(obj.Class)
		}
		f.SP--
		e.push(f, BoolSlot(result))
		f.PC += 3
		return nil
	})

	on(bytecode.OpMonitorenter, func(e *Env, f *Frame) error {
		obj := e.peek(f, 0).Ref
		if obj == nil {
			return e.ThrowCore(CoreNullPointerException, "")
		}
		obj.Monitor().Enter(e)
		f.SP--
		f.PC++
		return nil
	})
	on(bytecode.OpMonitorexit, func(e *Env, f *Frame) error {
		obj := e.peek(f, 0).Ref
		if obj == nil {
			return e.ThrowCore(CoreNullPointerException, "")
		}
		if err := obj.Monitor().Exit(e); err != nil {
			return e.ThrowCore(CoreIllegalMonitorStateException, "")
		}
		f.SP--
		f.PC++
		return nil
	})
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

func opGetstatic(e *Env, f *Frame) error {
	fld, err := e.resolveField(f.Method.Class, uint16(u16(f, 1)), true)
	if err != nil {
		return err
	}
	if err := e.InitializeClass(fld.Class); err != nil {
		return err
	}
	f = &e.frames[e.top]
	e.pushValue(f, fld.GetStatic())
	f.PC += 3
	return nil
}

func opPutstatic(e *Env, f *Frame) error {
	fld, err := e.resolveField(f.Method.Class, uint16(u16(f, 1)), true)
	if err != nil {
		return err
	}
	if err := e.InitializeClass(fld.Class); err != nil {
		return err
	}
	f = &e.frames[e.top]
	fld.SetStatic(e.popValue(f, fld.Descriptor))
	f.PC += 3
	return nil
}

func opGetfield(e *Env, f *Frame) error {
	fld, err := e.resolveField(f.Method.Class, uint16(u16(f, 1)), false)
	if err != nil {
		return err
	}
	f = &e.frames[e.top]
	obj := e.peek(f, 0).Ref
	if obj == nil {
		return e.ThrowCore(CoreNullPointerException, "Cannot read field \""+fld.Name+"\"")
	}
	f.SP--
	e.pushValue(f, obj.GetField(fld))
	f.PC += 3
	return nil
}

func opPutfield(e *Env, f *Frame) error {
	fld, err := e.resolveField(f.Method.Class, uint16(u16(f, 1)), false)
	if err != nil {
		return err
	}
	f = &e.frames[e.top]
	width := classfile.SlotWidth(fld.Descriptor)
	obj := e.peek(f, width).Ref
	if obj == nil {
		return e.ThrowCore(CoreNullPointerException, "Cannot assign field \""+fld.Name+"\"")
	}
	obj.SetField(fld, e.popValue(f, fld.Descriptor))
	f.SP--
	f.PC += 3
	return nil
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// invoke calls the selected target m, whose arguments are on f's stack.
// Bytecode targets get a new frame and the loop continues there; Go
// targets run to completion here.
func (e *Env) invoke(m *Method) error {
	if m.Builtin == nil && !m.IsNative() {
		return e.pushFrame(m, 0)
	}
	v, err := e.callGo(m)
	if err != nil {
		return err
	}
	f := &e.frames[e.top]
	f.PC += invokeLen(f.Method.Code.Bytes, f.PC)
	if m.Return != "V" {
		e.pushValue(f, v)
	}
	return nil
}

func opInvokestatic(e *Env, f *Frame) error {
	m, err := e.resolveMethod(f.Method.Class, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	if !m.IsStatic() {
		return e.ThrowCore(CoreIncompatibleClassChangeError, "Expected static method "+m.String())
	}
	if err := e.InitializeClass(m.Class); err != nil {
		return err
	}
	return e.invoke(m)
}

// opInvokevirtual serves invokevirtual and invokeinterface; the resolved
// method's class decides between primary and interface dispatch.
func opInvokevirtual(e *Env, f *Frame) error {
	m, err := e.resolveMethod(f.Method.Class, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	if m.IsStatic() {
		return e.ThrowCore(CoreIncompatibleClassChangeError, "Expected non-static method "+m.String())
	}
	f = &e.frames[e.top]
	recv := e.peek(f, m.StackConsume-1).Ref
	if recv == nil {
		return e.ThrowCore(CoreNullPointerException, "Cannot invoke \""+m.Class.JavaName()+"."+m.Name+"()\"")
	}
	target, err := e.selectVirtual(m, recv.Class)
	if err != nil {
		return err
	}
	return e.invoke(target)
}

// opInvokespecial calls constructors, private methods and superclass
// methods without receiver dispatch.
func opInvokespecial(e *Env, f *Frame) error {
	from := f.Method.Class
	m, err := e.resolveMethod(from, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	if m.IsStatic() {
		return e.ThrowCore(CoreIncompatibleClassChangeError, "Expected non-static method "+m.String())
	}
	f = &e.frames[e.top]
	if e.peek(f, m.StackConsume-1).Ref == nil {
		return e.ThrowCore(CoreNullPointerException, "")
	}
	target := m
	if !m.IsInitializer() && m.MethodIndex >= 0 && !m.Class.IsInterface() &&
		from.Super != nil && m.Class != from && m.Class.IsAssignableFrom(from.Super) {
		target = from.Super.VTable[m.MethodIndex]
	}
	return e.invoke(target)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func opNew(e *Env, f *Frame) error {
	c, err := e.resolveClass(f.Method.Class, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	if c.IsInterface() || c.IsAbstract() || c.IsArray() || c.IsPrimitive() {
		return e.ThrowCore(CoreInstantiationError, c.JavaName())
	}
	if err := e.InitializeClass(c); err != nil {
		return err
	}
	obj, err := e.vm.newObject(c)
	if err != nil {
		return e.raiseAllocFailure(err)
	}
	f = &e.frames[e.top]
	e.push(f, RefSlot(obj))
	f.PC += 3
	return nil
}

func (e *Env) allocArray(ac *Class, n int32) (*Object, error) {
	if n < 0 {
		return nil, e.ThrowCore(CoreNegativeArraySizeException, fmt.Sprint(n))
	}
	arr, err := e.vm.newArray(ac, int(n))
	if err != nil {
		return nil, e.raiseAllocFailure(err)
	}
	return arr, nil
}

func opNewarray(e *Env, f *Frame) error {
	name := bytecode.ArrayTypeName(byte(u8(f, 1)))
	comp := e.vm.Primitive(name)
	if comp == nil {
		return e.ThrowCore(CoreVerifyError, "bad newarray type "+name)
	}
	ac, err := e.vm.arrayOf(comp)
	if err != nil {
		return e.raiseLinkError(err, "["+comp.Descriptor(), true)
	}
	arr, err := e.allocArray(ac, e.peek(f, 0).Int())
	if err != nil {
		return err
	}
	f.SP--
	e.push(f, RefSlot(arr))
	f.PC += 2
	return nil
}

func opAnewarray(e *Env, f *Frame) error {
	comp, err := e.resolveClass(f.Method.Class, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	ac, err := e.vm.arrayOf(comp)
	if err != nil {
		return e.raiseLinkError(err, "["+comp.Descriptor(), true)
	}
	f = &e.frames[e.top]
	arr, err := e.allocArray(ac, e.peek(f, 0).Int())
	if err != nil {
		return err
	}
	f.SP--
	e.push(f, RefSlot(arr))
	f.PC += 3
	return nil
}

func opMultianewarray(e *Env, f *Frame) error {
	ac, err := e.resolveClass(f.Method.Class, uint16(u16(f, 1)))
	if err != nil {
		return err
	}
	f = &e.frames[e.top]
	dims := u8(f, 3)
	counts := make([]int32, dims)
	for i := 0; i < dims; i++ {
		counts[i] = e.peek(f, dims-1-i).Int()
		if counts[i] < 0 {
			return e.ThrowCore(CoreNegativeArraySizeException, fmt.Sprint(counts[i]))
		}
	}
	arr, err := e.multiArray(ac, counts)
	if err != nil {
		return err
	}
	f = &e.frames[e.top]
	f.SP -= dims
	e.push(f, RefSlot(arr))
	f.PC += 4
	return nil
}

// multiArray allocates nested arrays for the leading counts; dimensions
// past them stay null.
func (e *Env) multiArray(ac *Class, counts []int32) (*Object, error) {
	arr, err := e.allocArray(ac, counts[0])
	if err != nil {
		return nil, err
	}
	if len(counts) == 1 || !ac.Component.IsArray() {
		return arr, nil
	}
	for i := 0; i < int(counts[0]); i++ {
		sub, err := e.multiArray(ac.Component, counts[1:])
		if err != nil {
			return nil, err
		}
		arr.SetElem(i, RefSlot(sub))
	}
	return arr, nil
}

// ---------------------------------------------------------------------------
// Array access
// ---------------------------------------------------------------------------

func (e *Env) checkIndex(arr *Object, i int32) error {
	if arr == nil {
		return e.ThrowCore(CoreNullPointerException, "")
	}
	if i < 0 || int(i) >= arr.Len() {
		return e.ThrowCore(CoreArrayIndexOutOfBoundsException,
			fmt.Sprintf("Index %d out of bounds for length %d", i, arr.Len()))
	}
	return nil
}

func opArrayLoad(e *Env, f *Frame) error {
	i := e.peek(f, 0).Int()
	arr := e.peek(f, 1).Ref
	if err := e.checkIndex(arr, i); err != nil {
		return err
	}
	f.SP -= 2
	e.pushValue(f, arr.ElemSlot(int(i)))
	f.PC++
	return nil
}

func opArrayStore(e *Env, f *Frame) error {
	op := bytecode.Opcode(f.Method.Code.Bytes[f.PC])
	width := 1
	if op == bytecode.OpLastore || op == bytecode.OpDastore {
		width = 2
	}
	v := e.slots[f.SP-width]
	i := e.peek(f, width).Int()
	arr := e.peek(f, width+1).Ref
	if err := e.checkIndex(arr, i); err != nil {
		return err
	}
	if op == bytecode.OpAastore && v.Ref != nil && !arr.Class.Component.IsAssignableFrom(v.Ref.Class) {
		return e.ThrowCore(CoreArrayStoreException, v.Ref.Class.JavaName())
	}
	f.SP -= width + 2
	arr.SetElem(int(i), v)
	f.PC++
	return nil
}
