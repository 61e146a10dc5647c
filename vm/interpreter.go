package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/javelin/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var interpLog = commonlog.GetLogger("javelin.interp")

// ---------------------------------------------------------------------------
// Dispatch table
// ---------------------------------------------------------------------------

// opFunc executes the instruction at f.PC. On success it leaves f.PC at the
// next instruction; on a fault f.PC still addresses the faulting
// instruction, which is what handler lookup matches against. Handlers that
// may run nested code (class initialization, builtin calls) must re-fetch
// the frame afterwards, since the frame stack may have been reallocated.
type opFunc func(e *Env, f *Frame) error

var dispatch [256]opFunc

func init() {
	for i := range dispatch {
		dispatch[i] = opIllegal
	}
	registerStackOps()
	registerMathOps()
	registerControlOps()
	registerObjectOps()
}

func opIllegal(e *Env, f *Frame) error {
	op := f.Method.Code.Bytes[f.PC]
	return e.ThrowCore(CoreVerifyError, fmt.Sprintf("illegal opcode 0x%02x (%s) at %s:%d", op, bytecode.Opcode(op), f.Method, f.PC))
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// run interprets until the frame at index entry returns. A fault that no
// frame at or above entry handles stops the loop with ErrExceptionPending.
func (e *Env) run(entry int) error {
	for {
		done, err := e.interpret(entry)
		if done {
			return err
		}
	}
}

// interpret is one stretch of the loop. A Go panic inside an instruction is
// raised as InternalError at the faulting frame, and the loop is restarted
// when a handler takes it.
func (e *Env) interpret(entry int) (done bool, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		for e.top >= entry && e.frames[e.top].Kind != FrameBytecode {
			e.discardFrame()
		}
		if e.top < entry {
			done, err = true, fmt.Errorf("vm: internal error: %v", r)
			return
		}
		interpLog.Errorf("env %s: internal error in %s at %d: %v", e.ID, e.frames[e.top].Method, e.frames[e.top].PC, r)
		e.pending = nil
		raised := e.ThrowCore(CoreInternalError, fmt.Sprint(r))
		switch {
		case !errors.Is(raised, ErrExceptionPending):
			e.truncate(entry - 1)
			done, err = true, raised
		case e.unwind():
			done = false
		default:
			done, err = true, ErrExceptionPending
		}
	}()

	for e.top >= entry {
		f := &e.frames[e.top]
		code := f.Method.Code.Bytes
		if f.PC >= len(code) {
			err = e.ThrowCore(CoreVerifyError, "falling off the end of "+f.Method.String())
		} else {
			err = dispatch[code[f.PC]](e, f)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrExceptionPending) {
			e.truncate(entry - 1)
			return true, err
		}
		if e.pending == nil || !e.unwind() {
			if p := e.pending; p != nil {
				interpLog.Debugf("env %s: %s propagating out of %s", e.ID, p.Class.Name, e.frames[e.top].Kind)
			}
			return true, ErrExceptionPending
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Operand stack helpers
// ---------------------------------------------------------------------------

func (e *Env) push(f *Frame, v Slot) {
	e.slots[f.SP] = v
	f.SP++
}

// pushValue pushes v with a filler slot when it is a long or double.
func (e *Env) pushValue(f *Frame, v Slot) {
	e.slots[f.SP] = v
	f.SP++
	if v.Wide() {
		e.slots[f.SP] = topSlot
		f.SP++
	}
}

func (e *Env) pop(f *Frame) Slot {
	f.SP--
	return e.slots[f.SP]
}

func (e *Env) popWide(f *Frame) Slot {
	f.SP -= 2
	return e.slots[f.SP]
}

// popValue pops a value of the given field descriptor.
func (e *Env) popValue(f *Frame, desc string) Slot {
	if desc == "J" || desc == "D" {
		return e.popWide(f)
	}
	return e.pop(f)
}

func (e *Env) popInt(f *Frame) int32 { return e.pop(f).Int() }

func (e *Env) peek(f *Frame, depth int) Slot { return e.slots[f.SP-1-depth] }

func (e *Env) local(f *Frame, n int) Slot { return e.slots[f.Locals+n] }

func (e *Env) setLocal(f *Frame, n int, v Slot) {
	e.slots[f.Locals+n] = v
	if v.Wide() {
		e.slots[f.Locals+n+1] = topSlot
	}
}

func u8(f *Frame, off int) int  { return int(f.Method.Code.Bytes[f.PC+off]) }
func s8(f *Frame, off int) int  { return int(int8(f.Method.Code.Bytes[f.PC+off])) }
func u16(f *Frame, off int) int { return int(bytecode.ReadU16(f.Method.Code.Bytes, f.PC+off)) }
func s16(f *Frame, off int) int { return int(int16(bytecode.ReadU16(f.Method.Code.Bytes, f.PC+off))) }
func s32(f *Frame, off int) int { return int(int32(bytecode.ReadU32(f.Method.Code.Bytes, f.PC+off))) }

func on(op bytecode.Opcode, fn opFunc) { dispatch[op] = fn }
