package vm

import (
	"math"

	"github.com/chazu/javelin/pkg/bytecode"
)

// Arithmetic, conversions and comparisons.
func registerMathOps() {
	intOp := func(op bytecode.Opcode, fn func(a, b int32) int32) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.popInt(f), e.popInt(f)
			e.push(f, IntSlot(fn(a, b)))
			f.PC++
			return nil
		})
	}
	longOp := func(op bytecode.Opcode, fn func(a, b int64) int64) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.popWide(f).Long(), e.popWide(f).Long()
			e.pushValue(f, LongSlot(fn(a, b)))
			f.PC++
			return nil
		})
	}
	floatOp := func(op bytecode.Opcode, fn func(a, b float32) float32) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.pop(f).Float(), e.pop(f).Float()
			e.push(f, FloatSlot(fn(a, b)))
			f.PC++
			return nil
		})
	}
	doubleOp := func(op bytecode.Opcode, fn func(a, b float64) float64) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.popWide(f).Double(), e.popWide(f).Double()
			e.pushValue(f, DoubleSlot(fn(a, b)))
			f.PC++
			return nil
		})
	}

	intOp(bytecode.OpIadd, func(a, b int32) int32 { return a + b })
	intOp(bytecode.OpIsub, func(a, b int32) int32 { return a - b })
	intOp(bytecode.OpImul, func(a, b int32) int32 { return a * b })
	intOp(bytecode.OpIand, func(a, b int32) int32 { return a & b })
	intOp(bytecode.OpIor, func(a, b int32) int32 { return a | b })
	intOp(bytecode.OpIxor, func(a, b int32) int32 { return a ^ b })
	intOp(bytecode.OpIshl, func(a, b int32) int32 { return a << (b & 31) })
	intOp(bytecode.OpIshr, func(a, b int32) int32 { return a >> (b & 31) })
	intOp(bytecode.OpIushr, func(a, b int32) int32 { return int32(uint32(a) >> (b & 31)) })

	longOp(bytecode.OpLadd, func(a, b int64) int64 { return a + b })
	longOp(bytecode.OpLsub, func(a, b int64) int64 { return a - b })
	longOp(bytecode.OpLmul, func(a, b int64) int64 { return a * b })
	longOp(bytecode.OpLand, func(a, b int64) int64 { return a & b })
	longOp(bytecode.OpLor, func(a, b int64) int64 { return a | b })
	longOp(bytecode.OpLxor, func(a, b int64) int64 { return a ^ b })

	floatOp(bytecode.OpFadd, func(a, b float32) float32 { return a + b })
	floatOp(bytecode.OpFsub, func(a, b float32) float32 { return a - b })
	floatOp(bytecode.OpFmul, func(a, b float32) float32 { return a * b })
	floatOp(bytecode.OpFdiv, func(a, b float32) float32 { return a / b })
	floatOp(bytecode.OpFrem, func(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) })

	doubleOp(bytecode.OpDadd, func(a, b float64) float64 { return a + b })
	doubleOp(bytecode.OpDsub, func(a, b float64) float64 { return a - b })
	doubleOp(bytecode.OpDmul, func(a, b float64) float64 { return a * b })
	doubleOp(bytecode.OpDdiv, func(a, b float64) float64 { return a / b })
	doubleOp(bytecode.OpDrem, math.Mod)

	// Long shifts take an int shift count.
	longShift := func(op bytecode.Opcode, fn func(a int64, n uint) int64) {
		on(op, func(e *Env, f *Frame) error {
			n := uint(e.popInt(f) & 63)
			a := e.popWide(f).Long()
			e.pushValue(f, LongSlot(fn(a, n)))
			f.PC++
			return nil
		})
	}
	longShift(bytecode.OpLshl, func(a int64, n uint) int64 { return a << n })
	longShift(bytecode.OpLshr, func(a int64, n uint) int64 { return a >> n })
	longShift(bytecode.OpLushr, func(a int64, n uint) int64 { return int64(uint64(a) >> n) })

	on(bytecode.OpIdiv, func(e *Env, f *Frame) error {
		b, a := e.peek(f, 0).Int(), e.peek(f, 1).Int()
		if b == 0 {
			return e.ThrowCore(CoreArithmeticException, "/ by zero")
		}
		f.SP -= 2
		if a == math.MinInt32 && b == -1 {
			e.push(f, IntSlot(a))
		} else {
			e.push(f, IntSlot(a/b))
		}
		f.PC++
		return nil
	})
	on(bytecode.OpIrem, func(e *Env, f *Frame) error {
		b, a := e.peek(f, 0).Int(), e.peek(f, 1).Int()
		if b == 0 {
			return e.ThrowCore(CoreArithmeticException, "/ by zero")
		}
		f.SP -= 2
		if b == -1 {
			e.push(f, IntSlot(0))
		} else {
			e.push(f, IntSlot(a%b))
		}
		f.PC++
		return nil
	})
	on(bytecode.OpLdiv, func(e *Env, f *Frame) error {
		b, a := e.peek(f, 1).Long(), e.peek(f, 3).Long()
		if b == 0 {
			return e.ThrowCore(CoreArithmeticException, "/ by zero")
		}
		f.SP -= 4
		if a == math.MinInt64 && b == -1 {
			e.pushValue(f, LongSlot(a))
		} else {
			e.pushValue(f, LongSlot(a/b))
		}
		f.PC++
		return nil
	})
	on(bytecode.OpLrem, func(e *Env, f *Frame) error {
		b, a := e.peek(f, 1).Long(), e.peek(f, 3).Long()
		if b == 0 {
			return e.ThrowCore(CoreArithmeticException, "/ by zero")
		}
		f.SP -= 4
		if b == -1 {
			e.pushValue(f, LongSlot(0))
		} else {
			e.pushValue(f, LongSlot(a%b))
		}
		f.PC++
		return nil
	})

	on(bytecode.OpIneg, func(e *Env, f *Frame) error { e.push(f, IntSlot(-e.popInt(f))); f.PC++; return nil })
	on(bytecode.OpLneg, func(e *Env, f *Frame) error { e.pushValue(f, LongSlot(-e.popWide(f).Long())); f.PC++; return nil })
	on(bytecode.OpFneg, func(e *Env, f *Frame) error { e.push(f, FloatSlot(-e.pop(f).Float())); f.PC++; return nil })
	on(bytecode.OpDneg, func(e *Env, f *Frame) error { e.pushValue(f, DoubleSlot(-e.popWide(f).Double())); f.PC++; return nil })

	on(bytecode.OpIinc, func(e *Env, f *Frame) error {
		n := u8(f, 1)
		e.slots[f.Locals+n] = IntSlot(e.local(f, n).Int() + int32(s8(f, 2)))
		f.PC += 3
		return nil
	})

	// Conversions
	conv := func(op bytecode.Opcode, fn func(v Slot) Slot, wideIn bool) {
		on(op, func(e *Env, f *Frame) error {
			var v Slot
			if wideIn {
				v = e.popWide(f)
			} else {
				v = e.pop(f)
			}
			e.pushValue(f, fn(v))
			f.PC++
			return nil
		})
	}
	conv(bytecode.OpI2l, func(v Slot) Slot { return LongSlot(int64(v.Int())) }, false)
	conv(bytecode.OpI2f, func(v Slot) Slot { return FloatSlot(float32(v.Int())) }, false)
	conv(bytecode.OpI2d, func(v Slot) Slot { return DoubleSlot(float64(v.Int())) }, false)
	conv(bytecode.OpL2i, func(v Slot) Slot { return IntSlot(int32(v.Long())) }, true)
	conv(bytecode.OpL2f, func(v Slot) Slot { return FloatSlot(float32(v.Long())) }, true)
	conv(bytecode.OpL2d, func(v Slot) Slot { return DoubleSlot(float64(v.Long())) }, true)
	conv(bytecode.OpF2i, func(v Slot) Slot { return IntSlot(int32(toInt(float64(v.Float()), math.MinInt32, math.MaxInt32))) }, false)
	conv(bytecode.OpF2l, func(v Slot) Slot { return LongSlot(toInt(float64(v.Float()), math.MinInt64, math.MaxInt64)) }, false)
	conv(bytecode.OpF2d, func(v Slot) Slot { return DoubleSlot(float64(v.Float())) }, false)
	conv(bytecode.OpD2i, func(v Slot) Slot { return IntSlot(int32(toInt(v.Double(), math.MinInt32, math.MaxInt32))) }, true)
	conv(bytecode.OpD2l, func(v Slot) Slot { return LongSlot(toInt(v.Double(), math.MinInt64, math.MaxInt64)) }, true)
	conv(bytecode.OpD2f, func(v Slot) Slot { return FloatSlot(float32(v.Double())) }, true)
	conv(bytecode.OpI2b, func(v Slot) Slot { return IntSlot(int32(int8(v.Int()))) }, false)
	conv(bytecode.OpI2c, func(v Slot) Slot { return IntSlot(int32(uint16(v.Int()))) }, false)
	conv(bytecode.OpI2s, func(v Slot) Slot { return IntSlot(int32(int16(v.Int()))) }, false)

	// Comparisons
	on(bytecode.OpLcmp, func(e *Env, f *Frame) error {
		b, a := e.popWide(f).Long(), e.popWide(f).Long()
		e.push(f, IntSlot(cmp3(a < b, a > b)))
		f.PC++
		return nil
	})
	fcmp := func(op bytecode.Opcode, nan int32) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.pop(f).Float(), e.pop(f).Float()
			e.push(f, IntSlot(fcmp3(float64(a), float64(b), nan)))
			f.PC++
			return nil
		})
	}
	dcmp := func(op bytecode.Opcode, nan int32) {
		on(op, func(e *Env, f *Frame) error {
			b, a := e.popWide(f).Double(), e.popWide(f).Double()
			e.push(f, IntSlot(fcmp3(a, b, nan)))
			f.PC++
			return nil
		})
	}
	fcmp(bytecode.OpFcmpl, -1)
	fcmp(bytecode.OpFcmpg, 1)
	dcmp(bytecode.OpDcmpl, -1)
	dcmp(bytecode.OpDcmpg, 1)
}

// toInt converts a floating value to an integer in [lo, hi], saturating at
// the bounds; NaN converts to zero.
func toInt(v float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func cmp3(less, greater bool) int32 {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// fcmp3 compares a and b, yielding nan when either is NaN.
func fcmp3(a, b float64, nan int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nan
	}
	return cmp3(a < b, a > b)
}
