package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chazu/javelin/classfile"
)

const invokeSrc = `
name: demo/Greeter
interfaces: [demo/Speaker]
methods:
  - {name: <init>, descriptor: ()V, flags: [public], code: "aload_0\ninvokespecial java/lang/Object.<init>()V\nreturn"}
  - name: speak
    descriptor: (I)Ljava/lang/String;
    flags: [public]
    code: |
      iload_1
      ifeq Quiet
      ldc "HELLO"
      areturn
      Quiet:
      ldc "hello"
      areturn
  - {name: add, descriptor: (JI)J, flags: [public, static], code: "lload_0\niload_2\ni2l\nladd\nlreturn"}
  - {name: make, descriptor: ()Ldemo/Greeter;, flags: [public, static], code: "new demo/Greeter\ndup\ninvokespecial demo/Greeter.<init>()V\nareturn"}
  - name: refs
    descriptor: ()V
    flags: [public, static]
    code: |
      ldc2_w 1L
      iconst_1
      invokestatic demo/Greeter.add(JI)J
      pop2
      invokestatic demo/Greeter.make()Ldemo/Greeter;
      iconst_0
      invokevirtual demo/Greeter.speak(I)Ljava/lang/String;
      pop
      aconst_null
      iconst_0
      invokeinterface demo/Speaker.speak(I)Ljava/lang/String;
      pop
      return
---
name: demo/Loud
super: demo/Greeter
methods:
  - {name: <init>, descriptor: ()V, flags: [public], code: "aload_0\ninvokespecial demo/Greeter.<init>()V\nreturn"}
  - {name: speak, descriptor: (I)Ljava/lang/String;, flags: [public], code: "ldc \"LOUD\"\nareturn"}
---
name: demo/Speaker
flags: [public, interface, abstract]
methods:
  - {name: speak, descriptor: (I)Ljava/lang/String;, flags: [public, abstract]}
---
name: demo/Dangling
methods:
  - name: refs
    descriptor: ()V
    flags: [public, static]
    code: |
      ldc2_w 1L
      iconst_1
      invokestatic demo/Greeter.gone(JI)V
      aconst_null
      iconst_1
      invokevirtual demo/Greeter.vanish(I)V
      return
`

// poolIndex finds the member reference constant for name in c's pool.
func poolIndex(t *testing.T, c *Class, name, desc string) uint16 {
	t.Helper()
	for i, k := range c.File.Pool {
		switch k.Tag {
		case classfile.TagMethodref, classfile.TagInterfaceMethodref:
			if k.Name == name && k.Descriptor == desc {
				return uint16(i)
			}
		}
	}
	t.Fatalf("%s has no reference to %s%s", c.Name, name, desc)
	return 0
}

func TestCallEntryPoints(t *testing.T) {
	tv := newTestVM(t, invokeSrc)
	env := tv.env
	greeter := tv.class(t, "demo/Greeter")
	speaker := tv.class(t, "demo/Speaker")
	loud, err := tv.newObject(tv.class(t, "demo/Loud"))
	if err != nil {
		t.Fatal(err)
	}
	plain := tv.mustCall(t, "demo/Greeter", "make", "()Ldemo/Greeter;").Ref

	speak := greeter.DeclaredMethod("speak", "(I)Ljava/lang/String;")
	add := greeter.DeclaredMethod("add", "(JI)J")
	addIndex := -1
	for i, m := range greeter.LocalMethods {
		if m == add {
			addIndex = i
		}
	}

	type call struct {
		name string
		push []Slot
		run  func() (Slot, error)
		want string
	}
	tests := []call{
		{"CallStaticMethod", []Slot{LongSlot(40), IntSlot(2)},
			func() (Slot, error) { return env.CallStaticMethod(greeter, addIndex) }, "42"},
		{"CallInstanceMethod", []Slot{RefSlot(loud), IntSlot(0)},
			func() (Slot, error) { return env.CallInstanceMethod(greeter, speak.MethodIndex) }, "LOUD"},
		{"CallInterfaceMethod", []Slot{RefSlot(plain), IntSlot(1)},
			func() (Slot, error) { return env.CallInterfaceMethod(speaker, 0) }, "HELLO"},
		{"CallNonvirtualMethod", []Slot{RefSlot(loud), IntSlot(0)},
			func() (Slot, error) { return env.CallNonvirtualMethod(speak) }, "hello"},
		{"CallStaticRef", []Slot{LongSlot(1), IntSlot(1)},
			func() (Slot, error) { return env.CallStaticRef(greeter, poolIndex(t, greeter, "add", "(JI)J")) }, "2"},
		{"CallVirtualRef", []Slot{RefSlot(loud), IntSlot(1)},
			func() (Slot, error) {
				return env.CallVirtualRef(greeter, poolIndex(t, greeter, "speak", "(I)Ljava/lang/String;"))
			}, "LOUD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, a := range tt.push {
				if err := env.Push(a); err != nil {
					t.Fatal(err)
				}
			}
			got, err := tt.run()
			if err != nil {
				t.Fatalf("%s error = %v%s", tt.name, err, tv.pendingReport())
			}
			var s string
			switch got.Kind {
			case KindRef:
				s = got.Ref.GoString()
			case KindLong:
				s = fmt.Sprint(got.Long())
			default:
				s = fmt.Sprint(got.Int())
			}
			if s != tt.want {
				t.Errorf("%s = %s, want %s", tt.name, s, tt.want)
			}
			if n := env.StackSize(); n != 0 {
				t.Errorf("%d operands left after %s", n, tt.name)
			}
		})
	}
}

func TestCallErrors(t *testing.T) {
	tv := newTestVM(t, invokeSrc)
	env := tv.env
	greeter := tv.class(t, "demo/Greeter")
	speaker := tv.class(t, "demo/Speaker")
	speak := greeter.DeclaredMethod("speak", "(I)Ljava/lang/String;")

	// Null receiver.
	env.Push(NullSlot)
	env.Push(IntSlot(0))
	if _, err := env.CallInterfaceMethod(speaker, 0); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("null receiver error = %v", err)
	}
	if p := env.ClearException(); p.Class.Name != "java/lang/NullPointerException" {
		t.Errorf("null receiver raised %s", p.Class.Name)
	}
	if env.StackSize() != 0 {
		t.Errorf("arguments left on the stack after a failed call")
	}

	// A receiver that does not implement the interface.
	obj, _ := tv.newObject(tv.ObjectClass)
	env.Push(RefSlot(obj))
	env.Push(IntSlot(0))
	if _, err := env.CallInterfaceMethod(speaker, 0); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("non-implementing receiver error = %v", err)
	}
	if p := env.ClearException(); p.Class.Name != "java/lang/IncompatibleClassChangeError" {
		t.Errorf("non-implementing receiver raised %s", p.Class.Name)
	}

	// Misuse is reported without raising.
	if _, err := env.CallStaticMethod(greeter, 99); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad index error = %v, want ErrInvalidRequest", err)
	}
	if _, err := env.CallInterfaceMethod(greeter, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("class as interface error = %v, want ErrInvalidRequest", err)
	}
	if _, err := env.CallNonvirtualMethod(speak); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing receiver error = %v, want ErrInvalidRequest", err)
	}
	env.ThrowCore(CoreIllegalArgumentException, "pending")
	if _, err := env.Call(greeter.DeclaredMethod("make", "()Ldemo/Greeter;")); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("call with a pending fault error = %v, want ErrInvalidRequest", err)
	}
	env.ClearException()

	env.Push(IntSlot(0))
	if _, err := env.CallStaticRef(greeter, poolIndex(t, greeter, "speak", "(I)Ljava/lang/String;")); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("CallStaticRef(instance method) error = %v", err)
	}
	if p := env.ClearException(); p.Class.Name != "java/lang/IncompatibleClassChangeError" {
		t.Errorf("CallStaticRef(instance method) raised %s", p.Class.Name)
	}
	if n := env.StackSize(); n != 0 {
		t.Errorf("StackSize() after CallStaticRef(instance method) = %d, want 0", n)
	}

	// Unresolvable references drop exactly the arguments they were given.
	dangling := tv.class(t, "demo/Dangling")
	env.Push(IntSlot(42))
	env.Push(LongSlot(1))
	env.Push(IntSlot(1))
	if _, err := env.CallStaticRef(dangling, poolIndex(t, dangling, "gone", "(JI)V")); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("CallStaticRef(missing method) error = %v", err)
	}
	if p := env.ClearException(); p.Class.Name != "java/lang/NoSuchMethodError" {
		t.Errorf("CallStaticRef(missing method) raised %s", p.Class.Name)
	}
	if n := env.StackSize(); n != 1 {
		t.Errorf("StackSize() after CallStaticRef(missing method) = %d, want 1", n)
	}
	env.Push(NullSlot)
	env.Push(IntSlot(1))
	if _, err := env.CallVirtualRef(dangling, poolIndex(t, dangling, "vanish", "(I)V")); !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("CallVirtualRef(missing method) error = %v", err)
	}
	env.ClearException()
	if n := env.StackSize(); n != 1 {
		t.Errorf("StackSize() after CallVirtualRef(missing method) = %d, want 1", n)
	}
	if v := env.slots[env.CurrentFrame().StackBase]; v.Int() != 42 {
		t.Errorf("stack bottom = %v, want the value pushed before the calls", v)
	}
	env.dropSlots(1)
}
