package vm

import (
	"errors"
	"strings"
	"testing"
)

const throwSrc = `
name: demo/Thrower
source: Thrower.java
fields:
  - {name: cleanups, descriptor: I, flags: [static]}
methods:
  - name: boom
    descriptor: (I)I
    flags: [public, static]
    code: |
      .line 10
      bipush 100
      iload_0
      .line 11
      idiv
      ireturn
  - name: local
    descriptor: (I)I
    flags: [public, static]
    code: |
      Try:
      iload_0
      iconst_0
      idiv
      ireturn
      End:
      astore_1
      bipush 99
      ireturn
      .catch java/lang/ArithmeticException Try End End
  - name: outer
    descriptor: (I)I
    flags: [public, static]
    code: |
      Try:
      .line 20
      iload_0
      invokestatic demo/Thrower.boom(I)I
      ireturn
      End:
      pop
      bipush 7
      ireturn
      .catch java/lang/RuntimeException Try End End
  - name: mismatch
    descriptor: (I)I
    flags: [public, static]
    code: |
      Try:
      .line 30
      iload_0
      invokestatic demo/Thrower.boom(I)I
      ireturn
      End:
      pop
      iconst_0
      ireturn
      .catch java/lang/NullPointerException Try End End
  - name: cleanup
    descriptor: (I)I
    flags: [public, static]
    code: |
      Try:
      iload_0
      invokestatic demo/Thrower.boom(I)I
      istore_1
      getstatic demo/Thrower.cleanups I
      iconst_1
      iadd
      putstatic demo/Thrower.cleanups I
      iload_1
      ireturn
      End:
      astore_2
      getstatic demo/Thrower.cleanups I
      iconst_1
      iadd
      putstatic demo/Thrower.cleanups I
      aload_2
      athrow
      .catch any Try End End
  - name: cleanups
    descriptor: ()I
    flags: [public, static]
    code: |
      getstatic demo/Thrower.cleanups I
      ireturn
  - name: custom
    descriptor: (Ljava/lang/String;)V
    flags: [public, static]
    code: |
      .line 40
      new demo/AppError
      dup
      aload_0
      invokespecial demo/AppError.<init>(Ljava/lang/String;)V
      .line 41
      athrow
  - name: catchCustom
    descriptor: ()Ljava/lang/String;
    flags: [public, static]
    code: |
      Try:
      ldc "caught"
      invokestatic demo/Thrower.custom(Ljava/lang/String;)V
      aconst_null
      areturn
      End:
      invokevirtual java/lang/Throwable.getMessage()Ljava/lang/String;
      areturn
      .catch demo/AppError Try End End
  - name: wrapped
    descriptor: ()V
    flags: [public, static]
    code: |
      Try:
      iconst_0
      invokestatic demo/Thrower.boom(I)I
      pop
      return
      End:
      astore_0
      new java/lang/UnsupportedOperationException
      dup
      ldc "wrapper"
      aload_0
      invokespecial java/lang/UnsupportedOperationException.<init>(Ljava/lang/String;Ljava/lang/Throwable;)V
      athrow
      .catch java/lang/ArithmeticException Try End End
  - name: throwNull
    descriptor: ()V
    flags: [public, static]
    code: |
      aconst_null
      athrow
  - name: nested
    descriptor: ()I
    flags: [public, static]
    code: |
      Outer:
      Inner:
      iconst_0
      invokestatic demo/Thrower.boom(I)I
      ireturn
      InnerEnd:
      pop
      iconst_1
      ireturn
      OuterEnd:
      pop
      iconst_2
      ireturn
      .catch java/lang/ArithmeticException Inner InnerEnd InnerEnd
      .catch java/lang/Throwable Outer InnerEnd OuterEnd
  - name: badCatch
    descriptor: ()I
    flags: [public, static]
    code: |
      Try:
      iconst_0
      invokestatic demo/Thrower.boom(I)I
      ireturn
      End:
      pop
      iconst_3
      ireturn
      .catch demo/Missing Try End End
---
name: demo/AppError
super: java/lang/RuntimeException
source: AppError.java
methods:
  - name: <init>
    descriptor: (Ljava/lang/String;)V
    flags: [public]
    code: |
      aload_0
      aload_1
      invokespecial java/lang/RuntimeException.<init>(Ljava/lang/String;)V
      return
`

func TestHandlers(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	tests := []struct {
		method, desc string
		args         []Slot
		want         int32
	}{
		{"local", "(I)I", []Slot{IntSlot(1)}, 99},
		{"outer", "(I)I", []Slot{IntSlot(0)}, 7},
		{"outer", "(I)I", []Slot{IntSlot(4)}, 25},
		{"nested", "()I", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := tv.mustCall(t, "demo/Thrower", tt.method, tt.desc, tt.args...)
			if got.Int() != tt.want {
				t.Errorf("%s%v = %d, want %d", tt.method, tt.args, got.Int(), tt.want)
			}
		})
	}
}

func TestUncaughtTrace(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	fault := tv.fault(t, "demo/Thrower", "mismatch", "(I)I", IntSlot(0))
	if fault.Class.Name != "java/lang/ArithmeticException" {
		t.Fatalf("fault = %s, want ArithmeticException", fault.Class.Name)
	}
	trace := StackTrace(fault)
	if len(trace) != 2 {
		t.Fatalf("trace = %v, want 2 elements", trace)
	}
	want := []string{
		"demo.Thrower.boom(Thrower.java:11)",
		"demo.Thrower.mismatch(Thrower.java:30)",
	}
	for i, el := range trace {
		if el.String() != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, el.String(), want[i])
		}
	}
	if tv.env.Depth() != 0 || tv.env.StackSize() != 0 {
		t.Errorf("env left at depth %d with %d operands", tv.env.Depth(), tv.env.StackSize())
	}
}

func TestCatchAnyRethrows(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	if got := tv.mustCall(t, "demo/Thrower", "cleanup", "(I)I", IntSlot(3)); got.Int() != 33 {
		t.Errorf("cleanup(3) = %d, want 33", got.Int())
	}
	fault := tv.fault(t, "demo/Thrower", "cleanup", "(I)I", IntSlot(0))
	if fault.Class.Name != "java/lang/ArithmeticException" {
		t.Errorf("fault = %s, want ArithmeticException", fault.Class.Name)
	}
	if got := tv.mustCall(t, "demo/Thrower", "cleanups", "()I"); got.Int() != 2 {
		t.Errorf("cleanups() = %d, want 2", got.Int())
	}
}

func TestCustomException(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	if got := tv.mustCall(t, "demo/Thrower", "catchCustom", "()Ljava/lang/String;"); got.Ref.GoString() != "caught" {
		t.Errorf("catchCustom() = %v, want \"caught\"", got)
	}

	fault := tv.fault(t, "demo/Thrower", "custom", "(Ljava/lang/String;)V", str(t, tv.VM, "bad input"))
	if fault.Class.Name != "demo/AppError" {
		t.Fatalf("fault = %s, want demo/AppError", fault.Class.Name)
	}
	trace := StackTrace(fault)
	if len(trace) == 0 || trace[0].Method != "custom" || trace[0].Line != 40 {
		t.Errorf("trace = %v, want it to start at custom line 40", trace)
	}
	report := tv.FormatException(fault)
	if !strings.HasPrefix(report, "demo.AppError: bad input\n\tat demo.Thrower.custom(Thrower.java:40)") {
		t.Errorf("FormatException() = %q", report)
	}
}

func TestCauseChain(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	fault := tv.fault(t, "demo/Thrower", "wrapped", "()V")
	if fault.Class.Name != "java/lang/UnsupportedOperationException" {
		t.Fatalf("fault = %s, want UnsupportedOperationException", fault.Class.Name)
	}
	cause := tv.ThrowableCause(fault)
	if cause == nil || cause.Class.Name != "java/lang/ArithmeticException" {
		t.Fatalf("cause = %v, want ArithmeticException", cause)
	}
	report := tv.FormatException(fault)
	for _, want := range []string{
		"java.lang.UnsupportedOperationException: wrapper\n",
		"Caused by: java.lang.ArithmeticException: / by zero\n",
		"\tat demo.Thrower.boom(Thrower.java:11)\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("FormatException() = %q, want it to contain %q", report, want)
		}
	}
}

func TestThrowNull(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	fault := tv.fault(t, "demo/Thrower", "throwNull", "()V")
	if fault.Class.Name != "java/lang/NullPointerException" {
		t.Errorf("fault = %s, want NullPointerException", fault.Class.Name)
	}
}

func TestUnresolvableCatchTypeMatchesNothing(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	fault := tv.fault(t, "demo/Thrower", "badCatch", "()I")
	if fault.Class.Name != "java/lang/ArithmeticException" {
		t.Errorf("fault = %s, want ArithmeticException", fault.Class.Name)
	}
}

func TestThrowAPI(t *testing.T) {
	tv := newTestVM(t, throwSrc)
	env := tv.env

	err := env.ThrowCore(CoreIllegalArgumentException, "first")
	if !env.ExceptionCheck() || !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("ThrowCore() = %v, pending %v", err, env.ExceptionCheck())
	}
	if err := env.ThrowCore(CoreIllegalArgumentException, "second"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("ThrowCore() with a pending fault = %v, want an invalid request", err)
	}
	if msg := tv.ThrowableMessage(env.ClearException()); msg != "first" {
		t.Errorf("pending message = %q, want \"first\"", msg)
	}

	tv.class(t, "demo/AppError")
	if err := env.ThrowByName(tv.loader, "demo/AppError", "by name"); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("ThrowByName() = %v, want ErrExceptionPending", err)
	}
	p := env.ClearException()
	if p.Class.Name != "demo/AppError" || tv.ThrowableMessage(p) != "by name" {
		t.Errorf("ThrowByName raised %s %q", p.Class.Name, tv.ThrowableMessage(p))
	}

	obj := tv.mustCall(t, "demo/Thrower", "catchCustom", "()Ljava/lang/String;").Ref
	if err := env.Throw(obj); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Throw(string) = %v, want an invalid request", err)
	}
}
