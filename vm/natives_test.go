package vm

import (
	"errors"
	"strings"
	"testing"
)

const nativeSrc = `
name: demo/Native
methods:
  - {name: twice, descriptor: (I)I, flags: [public, static, native]}
  - {name: greet, descriptor: (Ljava/lang/String;)Ljava/lang/String;, flags: [public, static, native]}
  - {name: over, descriptor: (I)I, flags: [public, static, native]}
  - {name: over, descriptor: (J)J, flags: [public, static, native]}
  - {name: missing, descriptor: ()V, flags: [public, static, native]}
  - {name: fails, descriptor: ()V, flags: [public, static, native]}
  - {name: raise, descriptor: (Ljava/lang/String;)V, flags: [public, static, native]}
  - {name: callback, descriptor: (I)I, flags: [public, static, native]}
  - {name: <init>, descriptor: ()V, flags: [public], code: "aload_0\ninvokespecial java/lang/Object.<init>()V\nreturn"}
  - {name: self, descriptor: ()Ldemo/Native;, flags: [public, native]}
  - {name: square, descriptor: (I)I, flags: [public, static], code: "iload_0\niload_0\nimul\nireturn"}
  - name: callTwice
    descriptor: (I)I
    flags: [public, static]
    code: |
      iload_0
      invokestatic demo/Native.twice(I)I
      bipush 100
      iadd
      ireturn
  - name: callOver
    descriptor: ()J
    flags: [public, static]
    code: |
      iconst_3
      invokestatic demo/Native.over(I)I
      i2l
      ldc2_w 10L
      invokestatic demo/Native.over(J)J
      ladd
      lreturn
  - name: guarded
    descriptor: ()I
    flags: [public, static]
    code: |
      Try:
      ldc "nope"
      invokestatic demo/Native.raise(Ljava/lang/String;)V
      iconst_0
      ireturn
      End:
      pop
      iconst_1
      ireturn
      .catch java/lang/IllegalArgumentException Try End End
  - name: selfOf
    descriptor: ()Z
    flags: [public, static]
    code: |
      new demo/Native
      dup
      invokespecial demo/Native.<init>()V
      dup
      invokevirtual demo/Native.self()Ldemo/Native;
      if_acmpne No
      iconst_1
      ireturn
      No:
      iconst_0
      ireturn
`

func TestNatives(t *testing.T) {
	tv := newTestVM(t, nativeSrc)
	tv.RegisterNative("demo/Native", "twice", "", func(env *Env, args []Slot) (Slot, error) {
		return IntSlot(args[0].Int() * 2), nil
	})
	tv.RegisterNative("demo/Native", "over", "(I)I", func(env *Env, args []Slot) (Slot, error) {
		return IntSlot(args[0].Int() + 1), nil
	})
	tv.RegisterNative("demo/Native", "over", "(J)J", func(env *Env, args []Slot) (Slot, error) {
		return LongSlot(args[0].Long() * 10), nil
	})
	tv.RegisterNative("demo/Native", "raise", "", func(env *Env, args []Slot) (Slot, error) {
		return Slot{}, env.ThrowCore(CoreIllegalArgumentException, args[0].Ref.GoString())
	})
	tv.RegisterNative("demo/Native", "self", "", func(env *Env, args []Slot) (Slot, error) {
		return args[0], nil
	})
	tv.LoadLibrary(MapLibrary{
		"demo/Native/greet": func(env *Env, args []Slot) (Slot, error) {
			return env.stringSlot("hi " + args[0].Ref.GoString())
		},
	})

	c := tv.class(t, "demo/Native")
	square := c.DeclaredMethod("square", "(I)I")
	tv.RegisterNative("demo/Native", "callback", "", func(env *Env, args []Slot) (Slot, error) {
		v, err := env.Call(square, args[0])
		if err != nil {
			return Slot{}, err
		}
		return IntSlot(v.Int() + 1), nil
	})

	tests := []struct {
		name, desc string
		args       []Slot
		want       int64
	}{
		{"twice", "(I)I", []Slot{IntSlot(21)}, 42},
		{"callTwice", "(I)I", []Slot{IntSlot(4)}, 108},
		{"callOver", "()J", nil, 104},
		{"callback", "(I)I", []Slot{IntSlot(7)}, 50},
		{"guarded", "()I", nil, 1},
		{"selfOf", "()Z", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tv.mustCall(t, "demo/Native", tt.name, tt.desc, tt.args...)
			v := int64(got.Int())
			if got.Kind == KindLong {
				v = got.Long()
			}
			if v != tt.want {
				t.Errorf("%s%v = %d, want %d", tt.name, tt.args, v, tt.want)
			}
		})
	}

	greet := tv.mustCall(t, "demo/Native", "greet", "(Ljava/lang/String;)Ljava/lang/String;", str(t, tv.VM, "there"))
	if greet.Ref.GoString() != "hi there" {
		t.Errorf("greet() = %v, want \"hi there\"", greet)
	}
	if tv.env.Depth() != 0 {
		t.Errorf("Depth() = %d after native calls, want 0", tv.env.Depth())
	}
}

func TestNativeFailures(t *testing.T) {
	tv := newTestVM(t, nativeSrc)
	tv.RegisterNative("demo/Native", "fails", "", func(env *Env, args []Slot) (Slot, error) {
		return Slot{}, errors.New("disk on fire")
	})
	tv.RegisterNative("demo/Native", "raise", "", func(env *Env, args []Slot) (Slot, error) {
		return Slot{}, env.ThrowCore(CoreIllegalArgumentException, args[0].Ref.GoString())
	})

	tests := []struct {
		name, desc string
		args       []Slot
		want, msg  string
	}{
		{"missing", "()V", nil, "java/lang/UnsatisfiedLinkError", "demo.Native.missing()V"},
		{"fails", "()V", nil, "java/lang/InternalError", "disk on fire"},
		{"raise", "(Ljava/lang/String;)V", []Slot{str(t, tv.VM, "bad")}, "java/lang/IllegalArgumentException", "bad"},
	}
	for _, tt := range tests {
		fault := tv.fault(t, "demo/Native", tt.name, tt.desc, tt.args...)
		if fault.Class.Name != tt.want {
			t.Errorf("%s() fault = %s, want %s", tt.name, fault.Class.Name, tt.want)
		}
		if msg := tv.ThrowableMessage(fault); !strings.Contains(msg, tt.msg) {
			t.Errorf("%s() message = %q, want it to contain %q", tt.name, msg, tt.msg)
		}
	}

	fault := tv.fault(t, "demo/Native", "raise", "(Ljava/lang/String;)V", str(t, tv.VM, "x"))
	trace := StackTrace(fault)
	if len(trace) == 0 || trace[0].Method != "raise" || trace[0].Line != -2 {
		t.Fatalf("trace = %v, want it to start in the native frame", trace)
	}
	if !strings.Contains(trace[0].String(), "Native Method") {
		t.Errorf("trace[0] = %q, want a native location", trace[0].String())
	}
}
