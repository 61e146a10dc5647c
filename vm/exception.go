package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/javelin/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Core exceptions
// ---------------------------------------------------------------------------

// CoreException indexes the exception classes the runtime raises itself.
type CoreException int

const (
	CoreThrowable CoreException = iota
	CoreBaseException
	CoreRuntimeException
	CoreError
	CoreNullPointerException
	CoreArithmeticException
	CoreIndexOutOfBoundsException
	CoreArrayIndexOutOfBoundsException
	CoreStringIndexOutOfBoundsException
	CoreNegativeArraySizeException
	CoreClassCastException
	CoreArrayStoreException
	CoreIllegalMonitorStateException
	CoreIllegalArgumentException
	CoreCloneNotSupportedException
	CoreClassNotFoundException
	CoreInterruptedException
	CoreSecurityException
	CoreUnsupportedOperationException
	CoreLinkageError
	CoreNoClassDefFoundError
	CoreClassCircularityError
	CoreClassFormatError
	CoreIncompatibleClassChangeError
	CoreAbstractMethodError
	CoreNoSuchFieldError
	CoreNoSuchMethodError
	CoreIllegalAccessError
	CoreInstantiationError
	CoreVerifyError
	CoreUnsatisfiedLinkError
	CoreExceptionInInitializerError
	CoreVirtualMachineError
	CoreInternalError
	CoreOutOfMemoryError
	CoreStackOverflowError

	coreCount
)

// coreHierarchy lists each core class with its superclass, supers first.
var coreHierarchy = [coreCount]struct {
	name  string
	super CoreException
}{
	CoreThrowable:                       {"java/lang/Throwable", -1},
	CoreBaseException:                   {"java/lang/Exception", CoreThrowable},
	CoreRuntimeException:                {"java/lang/RuntimeException", CoreBaseException},
	CoreError:                           {"java/lang/Error", CoreThrowable},
	CoreNullPointerException:            {"java/lang/NullPointerException", CoreRuntimeException},
	CoreArithmeticException:             {"java/lang/ArithmeticException", CoreRuntimeException},
	CoreIndexOutOfBoundsException:       {"java/lang/IndexOutOfBoundsException", CoreRuntimeException},
	CoreArrayIndexOutOfBoundsException:  {"java/lang/ArrayIndexOutOfBoundsException", CoreIndexOutOfBoundsException},
	CoreStringIndexOutOfBoundsException: {"java/lang/StringIndexOutOfBoundsException", CoreIndexOutOfBoundsException},
	CoreNegativeArraySizeException:      {"java/lang/NegativeArraySizeException", CoreRuntimeException},
	CoreClassCastException:              {"java/lang/ClassCastException", CoreRuntimeException},
	CoreArrayStoreException:             {"java/lang/ArrayStoreException", CoreRuntimeException},
	CoreIllegalMonitorStateException:    {"java/lang/IllegalMonitorStateException", CoreRuntimeException},
	CoreIllegalArgumentException:        {"java/lang/IllegalArgumentException", CoreRuntimeException},
	CoreCloneNotSupportedException:      {"java/lang/CloneNotSupportedException", CoreBaseException},
	CoreClassNotFoundException:          {"java/lang/ClassNotFoundException", CoreBaseException},
	CoreInterruptedException:            {"java/lang/InterruptedException", CoreBaseException},
	CoreSecurityException:               {"java/lang/SecurityException", CoreRuntimeException},
	CoreUnsupportedOperationException:   {"java/lang/UnsupportedOperationException", CoreRuntimeException},
	CoreLinkageError:                    {"java/lang/LinkageError", CoreError},
	CoreNoClassDefFoundError:            {"java/lang/NoClassDefFoundError", CoreLinkageError},
	CoreClassCircularityError:           {"java/lang/ClassCircularityError", CoreLinkageError},
	CoreClassFormatError:                {"java/lang/ClassFormatError", CoreLinkageError},
	CoreIncompatibleClassChangeError:    {"java/lang/IncompatibleClassChangeError", CoreLinkageError},
	CoreAbstractMethodError:             {"java/lang/AbstractMethodError", CoreIncompatibleClassChangeError},
	CoreNoSuchFieldError:                {"java/lang/NoSuchFieldError", CoreIncompatibleClassChangeError},
	CoreNoSuchMethodError:               {"java/lang/NoSuchMethodError", CoreIncompatibleClassChangeError},
	CoreIllegalAccessError:              {"java/lang/IllegalAccessError", CoreIncompatibleClassChangeError},
	CoreInstantiationError:              {"java/lang/InstantiationError", CoreIncompatibleClassChangeError},
	CoreVerifyError:                     {"java/lang/VerifyError", CoreLinkageError},
	CoreUnsatisfiedLinkError:            {"java/lang/UnsatisfiedLinkError", CoreLinkageError},
	CoreExceptionInInitializerError:     {"java/lang/ExceptionInInitializerError", CoreLinkageError},
	CoreVirtualMachineError:             {"java/lang/VirtualMachineError", CoreError},
	CoreInternalError:                   {"java/lang/InternalError", CoreVirtualMachineError},
	CoreOutOfMemoryError:                {"java/lang/OutOfMemoryError", CoreVirtualMachineError},
	CoreStackOverflowError:              {"java/lang/StackOverflowError", CoreVirtualMachineError},
}

// ClassName returns the internal name of the core exception class.
func (c CoreException) ClassName() string {
	if c < 0 || c >= coreCount {
		return ""
	}
	return coreHierarchy[c].name
}

func (vm *VM) coreClass(c CoreException) *Class { return vm.core[c] }

// CoreClass returns the loaded class of a core exception.
func (vm *VM) CoreClass(c CoreException) *Class { return vm.core[c] }

// ---------------------------------------------------------------------------
// Stack traces
// ---------------------------------------------------------------------------

// TraceElement is one line of a Throwable's stack trace.
type TraceElement struct {
	Class  string
	Method string
	File   string
	PC     int
	Line   int // -1 unknown, -2 native
}

func (t TraceElement) String() string {
	loc := "Unknown Source"
	switch {
	case t.Line == -2:
		loc = "Native Method"
	case t.File != "" && t.Line >= 0:
		loc = fmt.Sprintf("%s:%d", t.File, t.Line)
	case t.File != "":
		loc = t.File
	}
	return fmt.Sprintf("%s.%s(%s)", javaName(t.Class), t.Method, loc)
}

// throwableData is the native payload of every Throwable.
type throwableData struct {
	trace []TraceElement
}

func traceOf(o *Object) *throwableData {
	if td, ok := o.native.(*throwableData); ok {
		return td
	}
	td := &throwableData{}
	o.native = td
	return td
}

// StackTrace returns the recorded trace of a Throwable.
func StackTrace(o *Object) []TraceElement {
	if td, ok := o.native.(*throwableData); ok {
		return td.trace
	}
	return nil
}

const maxTraceDepth = 1024

// captureTrace records the active frames, innermost first, skipping the
// constructor and fillInStackTrace frames of the throwable itself.
func (e *Env) captureTrace(self *Object) []TraceElement {
	var out []TraceElement
	skipping := self != nil
	for i := e.top; i > 0; i-- {
		f := &e.frames[i]
		m := f.Method
		if f.Flags&FrameCapture != 0 {
			continue
		}
		if len(out) == maxTraceDepth {
			break
		}
		if skipping && m != nil && (m.Name == "fillInStackTrace" || m.Name == "<init>") &&
			m.Class.IsAssignableFrom(self.Class) {
			continue
		}
		skipping = false
		el := TraceElement{Class: m.Class.Name, Method: m.Name, File: m.Class.SourceFile, PC: f.PC, Line: -1}
		switch {
		case f.Kind != FrameBytecode:
			el.Line = -2
		case m.Code != nil:
			el.Line = m.Code.LineFor(f.PC)
		}
		out = append(out, el)
	}
	return out
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// PendingException returns the env's pending fault, or nil.
func (e *Env) PendingException() *Object { return e.pending }

// ExceptionCheck reports whether a fault is pending.
func (e *Env) ExceptionCheck() bool { return e.pending != nil }

// ClearException removes and returns the pending fault.
func (e *Env) ClearException() *Object {
	p := e.pending
	e.pending = nil
	return p
}

// Throw makes obj the pending fault. It returns ErrExceptionPending, or
// ErrInvalidRequest if a fault is already pending.
func (e *Env) Throw(obj *Object) error {
	if e.pending != nil {
		return fmt.Errorf("%w: raising %s while %s is pending", ErrInvalidRequest, obj, e.pending.Class.Name)
	}
	if obj == nil {
		return e.ThrowCore(CoreNullPointerException, "throw null")
	}
	if e.vm.ThrowableClass != nil && !e.vm.ThrowableClass.IsAssignableFrom(obj.Class) {
		return fmt.Errorf("%w: %s is not a Throwable", ErrInvalidRequest, obj.Class.Name)
	}
	if td := traceOf(obj); td.trace == nil {
		td.trace = e.captureTrace(nil)
	}
	e.pending = obj
	return ErrExceptionPending
}

// ThrowCore raises a fresh instance of a core exception.
func (e *Env) ThrowCore(c CoreException, msg string) error {
	if e.pending != nil {
		return fmt.Errorf("%w: raising %s while %s is pending", ErrInvalidRequest, c.ClassName(), e.pending.Class.Name)
	}
	cls := e.vm.coreClass(c)
	if cls == nil {
		// Still bootstrapping.
		return fmt.Errorf("vm: %s: %s", c.ClassName(), msg)
	}
	obj, err := e.NewThrowable(cls, msg, nil)
	if err != nil {
		return e.raiseAllocFailure(err)
	}
	return e.Throw(obj)
}

// ThrowByName looks the class up through loader and raises an instance.
func (e *Env) ThrowByName(loader *ClassLoader, name, msg string) error {
	if e.pending != nil {
		return fmt.Errorf("%w: raising %s while %s is pending", ErrInvalidRequest, name, e.pending.Class.Name)
	}
	c, err := e.FindClass(loader, name, false)
	if err != nil {
		return err
	}
	return e.ThrowClass(c, msg)
}

// ThrowClass raises a new instance of c. Classes declaring a
// <init>(Ljava/lang/String;)V constructor are built by running it.
func (e *Env) ThrowClass(c *Class, msg string) error {
	if e.pending != nil {
		return fmt.Errorf("%w: raising %s while %s is pending", ErrInvalidRequest, c.Name, e.pending.Class.Name)
	}
	if !e.vm.ThrowableClass.IsAssignableFrom(c) {
		return fmt.Errorf("%w: %s is not a Throwable", ErrInvalidRequest, c.Name)
	}
	ctor := c.DeclaredMethod("<init>", "(Ljava/lang/String;)V")
	if c.Flags&FlagPredefined != 0 || ctor == nil {
		obj, err := e.NewThrowable(c, msg, nil)
		if err != nil {
			return e.raiseAllocFailure(err)
		}
		return e.Throw(obj)
	}

	if err := e.InitializeClass(c); err != nil {
		return err
	}
	obj, err := e.vm.newObject(c)
	if err != nil {
		return e.raiseAllocFailure(err)
	}
	var arg Slot = NullSlot
	if msg != "" {
		s, err := e.vm.NewString(msg)
		if err != nil {
			return e.raiseAllocFailure(err)
		}
		arg = RefSlot(s)
	}
	if err := e.Push(RefSlot(obj)); err != nil {
		return err
	}
	if err := e.Push(arg); err != nil {
		return err
	}
	if _, err := e.ExecuteMethod(ctor); err != nil {
		return err
	}
	return e.Throw(obj)
}

// NewThrowable builds an instance of c without running a constructor.
func (e *Env) NewThrowable(c *Class, msg string, cause *Object) (*Object, error) {
	obj, err := e.vm.newObject(c)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		s, err := e.vm.NewString(msg)
		if err != nil {
			return nil, err
		}
		obj.SetField(e.vm.throwableMessage, RefSlot(s))
	}
	if cause != nil {
		obj.SetField(e.vm.throwableCause, RefSlot(cause))
	}
	traceOf(obj).trace = e.captureTrace(obj)
	return obj, nil
}

// raiseAllocFailure turns an allocation error into the preallocated
// OutOfMemoryError. Other errors are returned unchanged.
func (e *Env) raiseAllocFailure(err error) error {
	if !errors.Is(err, ErrOutOfMemory) || e.vm.oom == nil {
		return err
	}
	if e.pending != nil {
		return ErrExceptionPending
	}
	e.pending = e.vm.oom
	return ErrExceptionPending
}

// ThrowableMessage returns the detail message of a Throwable, or "".
func (vm *VM) ThrowableMessage(o *Object) string {
	s := o.GetField(vm.throwableMessage).Ref
	if s == nil {
		return ""
	}
	return s.GoString()
}

// ThrowableCause returns the cause of a Throwable, or nil.
func (vm *VM) ThrowableCause(o *Object) *Object {
	return o.GetField(vm.throwableCause).Ref
}

// FormatException renders a Throwable with its trace and causes.
func (vm *VM) FormatException(o *Object) string {
	var sb strings.Builder
	seen := map[*Object]bool{}
	for first := true; o != nil && !seen[o]; first = false {
		seen[o] = true
		if !first {
			sb.WriteString("Caused by: ")
		}
		sb.WriteString(o.Class.JavaName())
		if msg := vm.ThrowableMessage(o); msg != "" {
			sb.WriteString(": ")
			sb.WriteString(msg)
		}
		sb.WriteByte('\n')
		for _, el := range StackTrace(o) {
			sb.WriteString("\tat ")
			sb.WriteString(el.String())
			sb.WriteByte('\n')
		}
		o = vm.ThrowableCause(o)
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Propagation
// ---------------------------------------------------------------------------

// unwind searches for a handler for the pending fault, starting at the top
// frame. It returns true when a bytecode handler was found and execution can
// resume at the top frame. Otherwise unwinding stopped at a capture frame
// (the fault is moved into Frame.Captured) or at a root, native or builtin
// frame with the fault still pending.
func (e *Env) unwind() bool {
	fault := e.pending
	for {
		f := &e.frames[e.top]
		if f.Flags&FrameCapture != 0 {
			f.Captured = fault
			e.pending = nil
			return false
		}
		if f.Kind != FrameBytecode {
			return false
		}
		if pc, ok := e.findHandler(f, fault); ok {
			f.SP = f.StackBase
			e.slots[f.SP] = RefSlot(fault)
			f.SP++
			f.PC = pc
			e.pending = nil
			interpLog.Debugf("env %s: %s caught in %s at %d", e.ID, fault.Class.Name, f.Method, pc)
			return true
		}
		e.discardFrame()
	}
}

// findHandler scans f's exception table for an entry covering f.PC whose
// catch type is the fault's class or one of its ancestors.
func (e *Env) findHandler(f *Frame, fault *Object) (int, bool) {
	m := f.Method
	for _, ex := range m.Code.Exceptions {
		if f.PC < int(ex.StartPC) || f.PC >= int(ex.EndPC) {
			continue
		}
		if ex.CatchType == 0 {
			return int(ex.HandlerPC), true
		}
		ct, ok := e.catchClass(m.Class, ex.CatchType)
		if ok && ct.IsAssignableFrom(fault.Class) {
			return int(ex.HandlerPC), true
		}
	}
	return 0, false
}

// catchClass resolves a handler's catch type while a fault is pending. A
// catch type that cannot be resolved matches nothing.
func (e *Env) catchClass(from *Class, idx uint16) (*Class, bool) {
	if c := from.links.class(idx); c != nil {
		return c, true
	}
	saved := e.pending
	e.pending = nil
	c, err := e.resolveClass(from, idx)
	if err != nil {
		interpLog.Warningf("env %s: unresolvable catch type #%d in %s", e.ID, idx, from.Name)
		e.pending = nil
	}
	e.pending = saved
	return c, err == nil
}

// invokeLen returns the length of the call instruction at pc, which the
// caller skips once the callee returns.
func invokeLen(code []byte, pc int) int {
	switch bytecode.Opcode(code[pc]) {
	case bytecode.OpInvokeinterface, bytecode.OpInvokedynamic:
		return 5
	}
	return 3
}
