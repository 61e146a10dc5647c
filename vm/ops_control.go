package vm

import "github.com/chazu/javelin/pkg/bytecode"

// Branches, subroutines, switches and returns.
func registerControlOps() {
	branch := func(op bytecode.Opcode, taken func(e *Env, f *Frame) bool) {
		on(op, func(e *Env, f *Frame) error {
			if taken(e, f) {
				f.PC += s16(f, 1)
			} else {
				f.PC += 3
			}
			return nil
		})
	}
	ifz := func(op bytecode.Opcode, test func(v int32) bool) {
		branch(op, func(e *Env, f *Frame) bool { return test(e.popInt(f)) })
	}
	ifcmp := func(op bytecode.Opcode, test func(a, b int32) bool) {
		branch(op, func(e *Env, f *Frame) bool {
			b, a := e.popInt(f), e.popInt(f)
			return test(a, b)
		})
	}

	ifz(bytecode.OpIfeq, func(v int32) bool { return v == 0 })
	ifz(bytecode.OpIfne, func(v int32) bool { return v != 0 })
	ifz(bytecode.OpIflt, func(v int32) bool { return v < 0 })
	ifz(bytecode.OpIfge, func(v int32) bool { return v >= 0 })
	ifz(bytecode.OpIfgt, func(v int32) bool { return v > 0 })
	ifz(bytecode.OpIfle, func(v int32) bool { return v <= 0 })
	ifcmp(bytecode.OpIfIcmpeq, func(a, b int32) bool { return a == b })
	ifcmp(bytecode.OpIfIcmpne, func(a, b int32) bool { return a != b })
	ifcmp(bytecode.OpIfIcmplt, func(a, b int32) bool { return a < b })
	ifcmp(bytecode.OpIfIcmpge, func(a, b int32) bool { return a >= b })
	ifcmp(bytecode.OpIfIcmpgt, func(a, b int32) bool { return a > b })
	ifcmp(bytecode.OpIfIcmple, func(a, b int32) bool { return a <= b })
	branch(bytecode.OpIfAcmpeq, func(e *Env, f *Frame) bool { return e.pop(f).Ref == e.pop(f).Ref })
	branch(bytecode.OpIfAcmpne, func(e *Env, f *Frame) bool { return e.pop(f).Ref != e.pop(f).Ref })
	branch(bytecode.OpIfnull, func(e *Env, f *Frame) bool { return e.pop(f).Ref == nil })
	branch(bytecode.OpIfnonnull, func(e *Env, f *Frame) bool { return e.pop(f).Ref != nil })
	branch(bytecode.OpGoto, func(e *Env, f *Frame) bool { return true })

	on(bytecode.OpGotoW, func(e *Env, f *Frame) error { f.PC += s32(f, 1); return nil })
	on(bytecode.OpJsr, func(e *Env, f *Frame) error {
		e.push(f, retAddrSlot(f.PC+3))
		f.PC += s16(f, 1)
		return nil
	})
	on(bytecode.OpJsrW, func(e *Env, f *Frame) error {
		e.push(f, retAddrSlot(f.PC+5))
		f.PC += s32(f, 1)
		return nil
	})
	on(bytecode.OpRet, func(e *Env, f *Frame) error {
		v := e.local(f, u8(f, 1))
		if v.Kind != KindRetAddr {
			return e.ThrowCore(CoreVerifyError, "ret through a non-address local in "+f.Method.String())
		}
		f.PC = int(v.Bits)
		return nil
	})

	on(bytecode.OpTableswitch, func(e *Env, f *Frame) error {
		key := e.popInt(f)
		base := bytecode.SwitchBase(f.PC) - f.PC
		lo, hi := int32(s32(f, base+4)), int32(s32(f, base+8))
		off := s32(f, base)
		if key >= lo && key <= hi {
			off = s32(f, base+12+4*int(key-lo))
		}
		f.PC += off
		return nil
	})
	on(bytecode.OpLookupswitch, func(e *Env, f *Frame) error {
		key := e.popInt(f)
		base := bytecode.SwitchBase(f.PC) - f.PC
		off := s32(f, base)
		// Keys are sorted, which the verifier checks.
		lo, hi := 0, s32(f, base+4)-1
		for lo <= hi {
			mid := (lo + hi) / 2
			k := int32(s32(f, base+8+8*mid))
			switch {
			case k < key:
				lo = mid + 1
			case k > key:
				hi = mid - 1
			default:
				off = s32(f, base+12+8*mid)
				lo = hi + 1
			}
		}
		f.PC += off
		return nil
	})

	on(bytecode.OpIreturn, func(e *Env, f *Frame) error {
		v := e.popInt(f)
		// Narrow to the declared type.
		switch f.Method.Return {
		case "Z":
			v &= 1
		case "B":
			v = int32(int8(v))
		case "C":
			v = int32(uint16(v))
		case "S":
			v = int32(int16(v))
		}
		e.finishReturn(IntSlot(v), true)
		return nil
	})
	on(bytecode.OpFreturn, func(e *Env, f *Frame) error { e.finishReturn(e.pop(f), true); return nil })
	on(bytecode.OpAreturn, func(e *Env, f *Frame) error { e.finishReturn(e.pop(f), true); return nil })
	on(bytecode.OpLreturn, func(e *Env, f *Frame) error { e.finishReturn(e.popWide(f), true); return nil })
	on(bytecode.OpDreturn, func(e *Env, f *Frame) error { e.finishReturn(e.popWide(f), true); return nil })
	on(bytecode.OpReturn, func(e *Env, f *Frame) error { e.finishReturn(Slot{}, false); return nil })
}
