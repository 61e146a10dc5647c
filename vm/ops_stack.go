package vm

import (
	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/pkg/bytecode"
)

// Constants, local variable access and operand stack shuffles.
func registerStackOps() {
	on(bytecode.OpNop, func(e *Env, f *Frame) error { f.PC++; return nil })
	on(bytecode.OpAconstNull, func(e *Env, f *Frame) error { e.push(f, NullSlot); f.PC++; return nil })
	for op := bytecode.OpIconstM1; op <= bytecode.OpIconst5; op++ {
		v := IntSlot(int32(op) - int32(bytecode.OpIconst0))
		on(op, func(e *Env, f *Frame) error { e.push(f, v); f.PC++; return nil })
	}
	for op, v := range map[bytecode.Opcode]Slot{
		bytecode.OpLconst0: LongSlot(0), bytecode.OpLconst1: LongSlot(1),
		bytecode.OpFconst0: FloatSlot(0), bytecode.OpFconst1: FloatSlot(1), bytecode.OpFconst2: FloatSlot(2),
		bytecode.OpDconst0: DoubleSlot(0), bytecode.OpDconst1: DoubleSlot(1),
	} {
		v := v
		on(op, func(e *Env, f *Frame) error { e.pushValue(f, v); f.PC++; return nil })
	}
	on(bytecode.OpBipush, func(e *Env, f *Frame) error { e.push(f, IntSlot(int32(s8(f, 1)))); f.PC += 2; return nil })
	on(bytecode.OpSipush, func(e *Env, f *Frame) error { e.push(f, IntSlot(int32(s16(f, 1)))); f.PC += 3; return nil })
	on(bytecode.OpLdc, func(e *Env, f *Frame) error { return e.ldc(f, uint16(u8(f, 1)), 2) })
	on(bytecode.OpLdcW, func(e *Env, f *Frame) error { return e.ldc(f, uint16(u16(f, 1)), 3) })
	on(bytecode.OpLdc2W, opLdc2W)

	// Loads and stores with an explicit index. The wide forms are handled by
	// opWide through the same helpers.
	for _, op := range []bytecode.Opcode{bytecode.OpIload, bytecode.OpLload, bytecode.OpFload, bytecode.OpDload, bytecode.OpAload} {
		on(op, func(e *Env, f *Frame) error { e.load(f, u8(f, 1)); f.PC += 2; return nil })
	}
	for _, op := range []bytecode.Opcode{bytecode.OpIstore, bytecode.OpLstore, bytecode.OpFstore, bytecode.OpDstore, bytecode.OpAstore} {
		wide := op == bytecode.OpLstore || op == bytecode.OpDstore
		on(op, func(e *Env, f *Frame) error { e.store(f, u8(f, 1), wide); f.PC += 2; return nil })
	}
	for op := bytecode.OpIload0; op <= bytecode.OpAload3; op++ {
		n := int(op-bytecode.OpIload0) % 4
		on(op, func(e *Env, f *Frame) error { e.load(f, n); f.PC++; return nil })
	}
	for op := bytecode.OpIstore0; op <= bytecode.OpAstore3; op++ {
		n := int(op-bytecode.OpIstore0) % 4
		wide := (op >= bytecode.OpLstore0 && op <= bytecode.OpLstore3) || (op >= bytecode.OpDstore0 && op <= bytecode.OpDstore3)
		on(op, func(e *Env, f *Frame) error { e.store(f, n, wide); f.PC++; return nil })
	}

	on(bytecode.OpPop, func(e *Env, f *Frame) error { f.SP--; f.PC++; return nil })
	on(bytecode.OpPop2, func(e *Env, f *Frame) error { f.SP -= 2; f.PC++; return nil })
	on(bytecode.OpDup, func(e *Env, f *Frame) error { e.push(f, e.peek(f, 0)); f.PC++; return nil })
	on(bytecode.OpDupX1, func(e *Env, f *Frame) error {
		v1, v2 := e.pop(f), e.pop(f)
		e.push(f, v1)
		e.push(f, v2)
		e.push(f, v1)
		f.PC++
		return nil
	})
	on(bytecode.OpDupX2, func(e *Env, f *Frame) error {
		v1, v2, v3 := e.pop(f), e.pop(f), e.pop(f)
		e.push(f, v1)
		e.push(f, v3)
		e.push(f, v2)
		e.push(f, v1)
		f.PC++
		return nil
	})
	on(bytecode.OpDup2, func(e *Env, f *Frame) error {
		v1, v2 := e.peek(f, 0), e.peek(f, 1)
		e.push(f, v2)
		e.push(f, v1)
		f.PC++
		return nil
	})
	on(bytecode.OpDup2X1, func(e *Env, f *Frame) error {
		v1, v2, v3 := e.pop(f), e.pop(f), e.pop(f)
		e.push(f, v2)
		e.push(f, v1)
		e.push(f, v3)
		e.push(f, v2)
		e.push(f, v1)
		f.PC++
		return nil
	})
	on(bytecode.OpDup2X2, func(e *Env, f *Frame) error {
		v1, v2, v3, v4 := e.pop(f), e.pop(f), e.pop(f), e.pop(f)
		e.push(f, v2)
		e.push(f, v1)
		e.push(f, v4)
		e.push(f, v3)
		e.push(f, v2)
		e.push(f, v1)
		f.PC++
		return nil
	})
	on(bytecode.OpSwap, func(e *Env, f *Frame) error {
		v1, v2 := e.pop(f), e.pop(f)
		e.push(f, v1)
		e.push(f, v2)
		f.PC++
		return nil
	})

	on(bytecode.OpWide, opWide)
}

// load pushes local n, both halves for a long or double.
func (e *Env) load(f *Frame, n int) {
	v := e.local(f, n)
	e.push(f, v)
	if v.Wide() {
		e.push(f, topSlot)
	}
}

func (e *Env) store(f *Frame, n int, wide bool) {
	if wide {
		e.setLocal(f, n, e.popWide(f))
		return
	}
	e.slots[f.Locals+n] = e.pop(f)
}

func (e *Env) ldc(f *Frame, idx uint16, size int) error {
	from := f.Method.Class
	k, err := e.constant(from, idx, classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass)
	if err != nil {
		return err
	}
	var v Slot
	switch k.Tag {
	case classfile.TagInteger:
		v = IntSlot(int32(k.Int))
	case classfile.TagFloat:
		v = FloatSlot(float32(k.Float))
	case classfile.TagString:
		s, err := e.resolveString(from, idx)
		if err != nil {
			return err
		}
		v = RefSlot(s)
	case classfile.TagClass:
		c, err := e.resolveClass(from, idx)
		if err != nil {
			return err
		}
		mirror, err := e.vm.Mirror(c)
		if err != nil {
			return e.raiseAllocFailure(err)
		}
		v = RefSlot(mirror)
	}
	f = &e.frames[e.top]
	e.push(f, v)
	f.PC += size
	return nil
}

func opLdc2W(e *Env, f *Frame) error {
	k, err := e.constant(f.Method.Class, uint16(u16(f, 1)), classfile.TagLong, classfile.TagDouble)
	if err != nil {
		return err
	}
	if k.Tag == classfile.TagLong {
		e.pushValue(f, LongSlot(k.Int))
	} else {
		e.pushValue(f, DoubleSlot(k.Float))
	}
	f.PC += 3
	return nil
}

// opWide executes the 16-bit index form of a load, store, ret or iinc.
func opWide(e *Env, f *Frame) error {
	op := bytecode.Opcode(u8(f, 1))
	n := u16(f, 2)
	switch op {
	case bytecode.OpIload, bytecode.OpLload, bytecode.OpFload, bytecode.OpDload, bytecode.OpAload:
		e.load(f, n)
	case bytecode.OpIstore, bytecode.OpFstore, bytecode.OpAstore:
		e.store(f, n, false)
	case bytecode.OpLstore, bytecode.OpDstore:
		e.store(f, n, true)
	case bytecode.OpRet:
		f.PC = int(e.local(f, n).Bits)
		return nil
	case bytecode.OpIinc:
		v := e.local(f, n).Int() + int32(s16(f, 4))
		e.slots[f.Locals+n] = IntSlot(v)
		f.PC += 6
		return nil
	default:
		return opIllegal(e, f)
	}
	f.PC += 4
	return nil
}
