package vm

import (
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"
)

const initSrc = `
name: demo/Counter
fields:
  - {name: runs, descriptor: I, flags: [static]}
  - {name: LIMIT, descriptor: I, flags: [static, final], value: 2000}
  - {name: PI, descriptor: D, flags: [static, final], value: 3.5}
methods:
  - name: <clinit>
    descriptor: ()V
    flags: [static]
    code: |
      getstatic demo/Counter.runs I
      iconst_1
      iadd
      putstatic demo/Counter.runs I
      iconst_0
      istore_0
      Loop:
      iload_0
      getstatic demo/Counter.LIMIT I
      if_icmpge Done
      iinc 0 1
      goto Loop
      Done:
      invokestatic demo/Counter.runs()I
      pop
      return
  - {name: runs, descriptor: ()I, flags: [public, static], code: "getstatic demo/Counter.runs I\nireturn"}
  - {name: pi, descriptor: ()D, flags: [public, static], code: "getstatic demo/Counter.PI D\ndreturn"}
---
name: demo/Parent
fields:
  - {name: x, descriptor: I, flags: [static]}
methods:
  - {name: <clinit>, descriptor: ()V, flags: [static], code: "iconst_5\nputstatic demo/Parent.x I\nreturn"}
---
name: demo/Child
super: demo/Parent
fields:
  - {name: y, descriptor: I, flags: [static]}
methods:
  - name: <clinit>
    descriptor: ()V
    flags: [static]
    code: |
      getstatic demo/Parent.x I
      iconst_1
      iadd
      putstatic demo/Child.y I
      return
  - {name: y, descriptor: ()I, flags: [public, static], code: "getstatic demo/Child.y I\nireturn"}
---
name: demo/BadInit
source: BadInit.java
methods:
  - name: <clinit>
    descriptor: ()V
    flags: [static]
    code: |
      .line 3
      iconst_1
      iconst_0
      idiv
      pop
      return
  - {name: touch, descriptor: ()V, flags: [public, static], code: "return"}
---
name: demo/ErrorInit
methods:
  - name: <clinit>
    descriptor: ()V
    flags: [static]
    code: |
      new java/lang/Error
      dup
      ldc "fatal"
      invokespecial java/lang/Error.<init>(Ljava/lang/String;)V
      athrow
  - {name: touch, descriptor: ()V, flags: [public, static], code: "return"}
`

func TestInitializeOnce(t *testing.T) {
	tv := newTestVM(t, initSrc)
	c := tv.class(t, "demo/Counter")
	if c.InitState() != Uninitialized {
		t.Fatalf("InitState() = %v before first use", c.InitState())
	}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		env := tv.NewEnv()
		g.Go(func() error {
			return env.InitializeClass(c)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("InitializeClass() error = %v", err)
	}
	if c.InitState() != InitComplete {
		t.Errorf("InitState() = %v, want %v", c.InitState(), InitComplete)
	}
	if got := tv.mustCall(t, "demo/Counter", "runs", "()I"); got.Int() != 1 {
		t.Errorf("<clinit> ran %d times, want 1", got.Int())
	}
	if got := tv.mustCall(t, "demo/Counter", "pi", "()D"); got.Double() != 3.5 {
		t.Errorf("PI = %v, want 3.5", got.Double())
	}
}

func TestSuperclassInitializedFirst(t *testing.T) {
	tv := newTestVM(t, initSrc)
	if got := tv.mustCall(t, "demo/Child", "y", "()I"); got.Int() != 6 {
		t.Errorf("Child.y = %d, want 6", got.Int())
	}
	if s := tv.class(t, "demo/Parent").InitState(); s != InitComplete {
		t.Errorf("Parent state = %v, want %v", s, InitComplete)
	}
}

func TestInitializerFailure(t *testing.T) {
	tv := newTestVM(t, initSrc)
	fault := tv.fault(t, "demo/BadInit", "touch", "()V")
	if fault.Class.Name != "java/lang/ExceptionInInitializerError" {
		t.Fatalf("first fault = %s, want ExceptionInInitializerError", fault.Class.Name)
	}
	cause := tv.ThrowableCause(fault)
	if cause == nil || cause.Class.Name != "java/lang/ArithmeticException" {
		t.Fatalf("cause = %v, want ArithmeticException", cause)
	}
	if tr := StackTrace(cause); len(tr) == 0 || tr[0].Method != "<clinit>" || tr[0].Line != 3 {
		t.Errorf("cause trace = %v, want it to start in <clinit> line 3", tr)
	}
	if s := tv.class(t, "demo/BadInit").InitState(); s != InitFailed {
		t.Errorf("InitState() = %v, want %v", s, InitFailed)
	}

	fault = tv.fault(t, "demo/BadInit", "touch", "()V")
	if fault.Class.Name != "java/lang/NoClassDefFoundError" {
		t.Errorf("second fault = %s, want NoClassDefFoundError", fault.Class.Name)
	}
	if msg := tv.ThrowableMessage(fault); !strings.Contains(msg, "demo.BadInit") {
		t.Errorf("message = %q, want it to name demo.BadInit", msg)
	}
}

func TestInitializerErrorNotWrapped(t *testing.T) {
	tv := newTestVM(t, initSrc)
	fault := tv.fault(t, "demo/ErrorInit", "touch", "()V")
	if fault.Class.Name != "java/lang/Error" || tv.ThrowableMessage(fault) != "fatal" {
		t.Errorf("fault = %s %q, want java/lang/Error \"fatal\"", fault.Class.Name, tv.ThrowableMessage(fault))
	}
}

func TestConcurrentInitFailure(t *testing.T) {
	tv := newTestVM(t, initSrc)
	c := tv.class(t, "demo/BadInit")

	var g errgroup.Group
	raised := make([]string, 6)
	for i := range raised {
		env := tv.NewEnv()
		g.Go(func() error {
			if err := env.InitializeClass(c); err == nil {
				return nil
			}
			if p := env.ClearException(); p != nil {
				raised[i] = p.Class.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	eiie := 0
	for i, name := range raised {
		switch name {
		case "java/lang/ExceptionInInitializerError":
			eiie++
		case "java/lang/NoClassDefFoundError":
		default:
			t.Errorf("env %d raised %q", i, name)
		}
	}
	if eiie != 1 {
		t.Errorf("%d envs saw ExceptionInInitializerError, want 1", eiie)
	}
}
