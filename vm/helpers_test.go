package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
)

// testVM bundles a VM with an application loader over YAML classes.
type testVM struct {
	*VM
	env    *Env
	loader *ClassLoader
	out    *bytes.Buffer
}

func newTestVM(t *testing.T, src string) *testVM {
	t.Helper()
	return newTestVMConfig(t, Config{}, src)
}

func newTestVMConfig(t *testing.T, cfg Config, src string) *testVM {
	t.Helper()
	out := &bytes.Buffer{}
	cfg.Stdout = out
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var classes []*classfile.Class
	if src != "" {
		classes, err = classfile.ParseYAML(src)
		if err != nil {
			t.Fatalf("ParseYAML() error = %v", err)
		}
	}
	loader := v.NewClassLoader("app", nil, classpath.NewMemory(classes...))
	return &testVM{VM: v, env: v.NewEnv(), loader: loader, out: out}
}

func (tv *testVM) class(t *testing.T, name string) *Class {
	t.Helper()
	c, err := tv.env.LocateClass(tv.loader, name)
	if err != nil {
		t.Fatalf("LocateClass(%s) error = %v", name, err)
	}
	return c
}

// call invokes a static method of the app loader's class by name.
func (tv *testVM) call(t *testing.T, class, name, desc string, args ...Slot) (Slot, error) {
	t.Helper()
	c := tv.class(t, class)
	m := c.DeclaredMethod(name, desc)
	if m == nil {
		t.Fatalf("%s.%s%s not found", class, name, desc)
	}
	return tv.env.Call(m, args...)
}

// mustCall is call with any error failing the test.
func (tv *testVM) mustCall(t *testing.T, class, name, desc string, args ...Slot) Slot {
	t.Helper()
	v, err := tv.call(t, class, name, desc, args...)
	if err != nil {
		t.Fatalf("%s.%s%s error = %v%s", class, name, desc, err, tv.pendingReport())
	}
	return v
}

// fault invokes the method expecting an uncaught fault, which it clears
// and returns.
func (tv *testVM) fault(t *testing.T, class, name, desc string, args ...Slot) *Object {
	t.Helper()
	_, err := tv.call(t, class, name, desc, args...)
	if !errors.Is(err, ErrExceptionPending) {
		t.Fatalf("%s.%s%s error = %v, want ErrExceptionPending", class, name, desc, err)
	}
	return tv.env.ClearException()
}

func (tv *testVM) pendingReport() string {
	if p := tv.env.PendingException(); p != nil {
		return "\n" + tv.FormatException(p)
	}
	return ""
}

func str(t *testing.T, v *VM, s string) Slot {
	t.Helper()
	o, err := v.NewString(s)
	if err != nil {
		t.Fatal(err)
	}
	return RefSlot(o)
}
