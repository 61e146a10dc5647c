package vm

import (
	"errors"
	"fmt"
)

var errArenaExhausted = errors.New("vm: frame arena exhausted")

// FrameKind selects how a frame's method runs.
type FrameKind uint8

const (
	FrameRoot     FrameKind = iota // bottom of every env
	FrameNative                    // native method resolved through the registry
	FrameBuiltin                   // Go implementation supplied by the runtime
	FrameBytecode                  // interpreted
)

func (k FrameKind) String() string {
	switch k {
	case FrameRoot:
		return "root"
	case FrameNative:
		return "native"
	case FrameBuiltin:
		return "builtin"
	case FrameBytecode:
		return "bytecode"
	}
	return "unknown"
}

// FrameFlags mark frames with special unwinding behavior.
type FrameFlags uint8

const (
	// FrameCapture stops unwinding and stores the fault in Frame.Captured.
	FrameCapture FrameFlags = 1 << iota
	// FrameEntry marks the first frame of a nested interpreter run.
	FrameEntry
)

// Frame is one activation record. Its locals and operand stack live in the
// env's arena: locals at [Locals, StackBase), operands at [StackBase, SP).
type Frame struct {
	Kind   FrameKind
	Prev   int
	Method *Method
	PC     int

	Locals    int
	StackBase int
	SP        int
	Limit     int

	Depth int
	Flags FrameFlags

	Captured *Object
	// Monitor is the object locked on entry to a synchronized method.
	Monitor *Object
}

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

// ensure grows the arena to at least n slots, doubling each time.
func (e *Env) ensure(n int) error {
	if n <= len(e.slots) {
		return nil
	}
	max := e.vm.cfg.ArenaMaxSlots
	if n > max {
		return errArenaExhausted
	}
	size := len(e.slots) * 2
	for size < n {
		size *= 2
	}
	if size > max {
		size = max
	}
	grown := make([]Slot, size)
	copy(grown, e.slots)
	e.slots = grown
	return nil
}

// ---------------------------------------------------------------------------
// Push / pop
// ---------------------------------------------------------------------------

// PushFrame pushes a frame for m. Its arguments, receiver first, must be
// the top StackConsume slots of the current frame; they become the new
// frame's first locals without copying.
func (e *Env) PushFrame(m *Method) error {
	return e.pushFrame(m, 0)
}

func (e *Env) pushFrame(m *Method, flags FrameFlags) error {
	if m.IsAbstract() {
		return e.ThrowCore(CoreAbstractMethodError, m.String())
	}
	caller := &e.frames[e.top]
	if caller.SP-caller.StackBase < m.StackConsume {
		return fmt.Errorf("%w: %s needs %d argument slots, %d on stack",
			ErrInvalidRequest, m, m.StackConsume, caller.SP-caller.StackBase)
	}

	f := Frame{
		Prev:   e.top,
		Method: m,
		Locals: caller.SP - m.StackConsume,
		Depth:  caller.Depth + 1,
		Flags:  flags,
	}
	switch {
	case m.Builtin != nil:
		f.Kind = FrameBuiltin
	case m.IsNative():
		f.Kind = FrameNative
	case m.Code == nil:
		return fmt.Errorf("%w: %s has no code", ErrInvalidRequest, m)
	default:
		f.Kind = FrameBytecode
	}
	if f.Kind == FrameBytecode {
		f.StackBase = f.Locals + int(m.Code.MaxLocals)
		f.Limit = f.StackBase + int(m.Code.MaxStack)
	} else {
		f.StackBase = caller.SP
		f.Limit = caller.SP + e.vm.cfg.NativeHeadroom
	}
	f.SP = f.StackBase

	if err := e.ensure(f.Limit); err != nil {
		return e.ThrowCore(CoreStackOverflowError, "")
	}
	for i := caller.SP; i < f.StackBase; i++ {
		e.slots[i] = topSlot
	}

	if m.IsSynchronized() {
		var lock *Object
		if m.IsStatic() {
			mirror, err := e.vm.Mirror(m.Class)
			if err != nil {
				return e.raiseAllocFailure(err)
			}
			lock = mirror
		} else {
			lock = e.slots[f.Locals].Ref
		}
		if lock == nil {
			return e.ThrowCore(CoreNullPointerException, "")
		}
		lock.Monitor().Enter(e)
		f.Monitor = lock
	}

	e.frames = append(e.frames[:e.top+1], f)
	e.top++
	return nil
}

// PopFrame removes the top frame and consumes its arguments from the
// caller's operand stack.
func (e *Env) PopFrame() error {
	if e.top == 0 {
		return fmt.Errorf("%w: pop of root frame", ErrInvalidRequest)
	}
	e.discardFrame()
	return nil
}

func (e *Env) discardFrame() {
	f := &e.frames[e.top]
	if f.Monitor != nil {
		if err := f.Monitor.Monitor().Exit(e); err != nil {
			interpLog.Warningf("env %s: leaving %s: %v", e.ID, f.Method, err)
		}
	}
	consume := f.Method.StackConsume
	e.frames[e.top] = Frame{}
	e.top--
	e.frames = e.frames[:e.top+1]
	e.frames[e.top].SP -= consume
}

// truncate pops frames until the top frame is at index to.
func (e *Env) truncate(to int) {
	for e.top > to {
		e.discardFrame()
	}
}

// finishReturn pops the returning frame and delivers v to the caller: onto
// its operand stack for a bytecode caller, which then continues after the
// call instruction, or into the native return slot otherwise.
func (e *Env) finishReturn(v Slot, hasValue bool) {
	e.discardFrame()
	caller := &e.frames[e.top]
	if caller.Kind != FrameBytecode {
		e.nativeReturn = v
		return
	}
	caller.PC += invokeLen(caller.Method.Code.Bytes, caller.PC)
	if hasValue {
		e.slots[caller.SP] = v
		caller.SP++
		if v.Wide() {
			e.slots[caller.SP] = topSlot
			caller.SP++
		}
	}
}

// ExecuteMethod runs m to completion with its arguments already pushed on
// the current (non-bytecode) frame. No dispatch or class initialization
// happens here; see the Call entry points for those.
func (e *Env) ExecuteMethod(m *Method) (Slot, error) {
	if e.frames[e.top].Kind == FrameBytecode {
		return Slot{}, fmt.Errorf("%w: ExecuteMethod from a bytecode frame", ErrInvalidRequest)
	}
	if e.pending != nil {
		return Slot{}, fmt.Errorf("%w: call with %s pending", ErrInvalidRequest, e.pending.Class.Name)
	}
	if m.Builtin != nil || m.IsNative() {
		return e.callGo(m)
	}
	if err := e.pushFrame(m, FrameEntry); err != nil {
		if !errors.Is(err, ErrInvalidRequest) {
			e.dropArgs(m)
		}
		return Slot{}, err
	}
	if err := e.run(e.top); err != nil {
		return Slot{}, err
	}
	v := e.nativeReturn
	e.nativeReturn = Slot{}
	return v, nil
}

// callGo runs a builtin or native method in its own frame.
func (e *Env) callGo(m *Method) (Slot, error) {
	fn := m.Builtin
	if fn == nil {
		var err error
		if fn, err = e.vm.natives.resolve(m); err != nil {
			e.dropArgs(m)
			return Slot{}, e.ThrowCore(CoreUnsatisfiedLinkError, err.Error())
		}
	}
	if err := e.pushFrame(m, 0); err != nil {
		if !errors.Is(err, ErrInvalidRequest) {
			e.dropArgs(m)
		}
		return Slot{}, err
	}
	self := e.top
	f := &e.frames[self]
	args := make([]Slot, m.StackConsume)
	copy(args, e.slots[f.Locals:f.Locals+m.StackConsume])

	v, err := fn(e, args)
	e.truncate(self)
	e.discardFrame()

	switch {
	case err == nil && e.pending != nil:
		return Slot{}, ErrExceptionPending
	case err == nil:
		return v, nil
	case errors.Is(err, ErrExceptionPending), errors.Is(err, ErrInvalidRequest):
		return Slot{}, err
	case errors.Is(err, ErrOutOfMemory):
		return Slot{}, e.raiseAllocFailure(err)
	}
	return Slot{}, e.ThrowCore(CoreInternalError, err.Error())
}

// invokeCaptured runs m (arguments already pushed) under a capture frame
// and returns the fault it raised, if any, instead of leaving it pending.
func (e *Env) invokeCaptured(m *Method) (*Object, error) {
	capture := &Method{Name: "<capture>", Class: m.Class}
	f := Frame{
		Kind:      FrameNative,
		Prev:      e.top,
		Method:    capture,
		Locals:    e.frames[e.top].SP,
		StackBase: e.frames[e.top].SP,
		SP:        e.frames[e.top].SP,
		Limit:     e.frames[e.top].SP + e.vm.cfg.NativeHeadroom,
		Depth:     e.frames[e.top].Depth + 1,
		Flags:     FrameCapture,
	}
	if err := e.ensure(f.Limit); err != nil {
		return nil, e.ThrowCore(CoreStackOverflowError, "")
	}
	e.frames = append(e.frames[:e.top+1], f)
	e.top++
	self := e.top

	_, err := e.ExecuteMethod(m)
	fault := e.frames[self].Captured
	if fault == nil && errors.Is(err, ErrExceptionPending) {
		// Raised before any frame of m existed.
		fault = e.ClearException()
	}
	e.truncate(self)
	e.discardFrame()

	if fault != nil {
		return fault, nil
	}
	return nil, err
}
