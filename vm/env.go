package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// Env is the per-thread execution environment: the frame arena, the frame
// stack and the pending-fault slot. An Env is used by one goroutine at a
// time; AttachCurrentThread binds it.
type Env struct {
	ID uuid.UUID

	vm        *VM
	goroutine int64

	slots  []Slot
	frames []Frame
	top    int

	pending      *Object
	nativeReturn Slot
}

func (vm *VM) newEnv() *Env {
	size := vm.cfg.ArenaInitialSlots
	if size < vm.cfg.NativeHeadroom {
		size = vm.cfg.NativeHeadroom
	}
	e := &Env{
		ID:     uuid.New(),
		vm:     vm,
		slots:  make([]Slot, size),
		frames: make([]Frame, 1, 64),
	}
	e.frames[0] = Frame{Kind: FrameRoot, Prev: -1, Limit: vm.cfg.NativeHeadroom}
	return e
}

// NewEnv returns an env that is not bound to any goroutine. It suits
// callers that manage their own threading.
func (vm *VM) NewEnv() *Env { return vm.newEnv() }

// VM returns the owning VM.
func (e *Env) VM() *VM { return e.vm }

// Depth returns the number of frames above the root.
func (e *Env) Depth() int { return e.top }

// CurrentFrame returns the top frame. The pointer is valid until the next
// push or pop.
func (e *Env) CurrentFrame() *Frame { return &e.frames[e.top] }

// FrameAt returns frame i, 0 being the root.
func (e *Env) FrameAt(i int) *Frame { return &e.frames[i] }

// Local returns local variable i of the top frame.
func (e *Env) Local(i int) Slot {
	f := &e.frames[e.top]
	return e.slots[f.Locals+i]
}

// ---------------------------------------------------------------------------
// Operand stack access for native callers
// ---------------------------------------------------------------------------

// Push places v on the current frame's operand stack. Long and double
// values take a second filler slot. Only root, native and builtin frames
// accept pushes this way.
func (e *Env) Push(v Slot) error {
	f := &e.frames[e.top]
	if f.Kind == FrameBytecode {
		return fmt.Errorf("%w: push onto a bytecode frame", ErrInvalidRequest)
	}
	need := 1
	if v.Wide() {
		need = 2
	}
	if f.SP+need > f.Limit {
		if err := e.ensure(f.SP + need); err != nil {
			return e.ThrowCore(CoreStackOverflowError, "")
		}
		f = &e.frames[e.top]
		f.Limit = f.SP + need
	}
	e.slots[f.SP] = v
	f.SP++
	if need == 2 {
		e.slots[f.SP] = topSlot
		f.SP++
	}
	return nil
}

func (e *Env) PushInt(v int32) error     { return e.Push(IntSlot(v)) }
func (e *Env) PushLong(v int64) error    { return e.Push(LongSlot(v)) }
func (e *Env) PushFloat(v float32) error { return e.Push(FloatSlot(v)) }
func (e *Env) PushDouble(v float64) error {
	return e.Push(DoubleSlot(v))
}
func (e *Env) PushRef(o *Object) error { return e.Push(RefSlot(o)) }

// StackSize returns the operand count of the current frame.
func (e *Env) StackSize() int {
	f := &e.frames[e.top]
	return f.SP - f.StackBase
}

// dropArgs removes the arguments of m from the current frame after a call
// that never started.
func (e *Env) dropArgs(m *Method) {
	e.dropSlots(m.StackConsume)
}

func (e *Env) dropSlots(n int) {
	f := &e.frames[e.top]
	f.SP -= n
	if f.SP < f.StackBase {
		f.SP = f.StackBase
	}
}
