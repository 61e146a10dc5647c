package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
	"github.com/chazu/javelin/vm"
)

const helloSrc = `
name: demo/Hello
source: Hello.java
methods:
  - name: main
    descriptor: ([Ljava/lang/String;)V
    flags: [public, static]
    code: |
      aload_0
      arraylength
      invokestatic javelin/Console.println(I)V
      aload_0
      iconst_0
      aaload
      invokestatic javelin/Console.println(Ljava/lang/String;)V
      return
---
name: demo/Status
methods:
  - {name: main, descriptor: ()I, flags: [public, static], code: "bipush 3\nireturn"}
---
name: demo/Crash
source: Crash.java
methods:
  - name: main
    descriptor: ()V
    flags: [public, static]
    code: |
      .line 7
      iconst_1
      iconst_0
      idiv
      pop
      return
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newMachine(t *testing.T) (*vm.VM, *vm.Env, *vm.ClassLoader, *bytes.Buffer) {
	t.Helper()
	classes, err := classfile.ParseYAML(helloSrc)
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	cfg := vm.DefaultConfig()
	cfg.Stdout = out
	machine, err := vm.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	loader := machine.NewClassLoader("app", nil, classpath.NewMemory(classes...))
	return machine, machine.NewEnv(), loader, out
}

func TestRunMain(t *testing.T) {
	_, env, loader, out := newMachine(t)
	status, err := runMain(env, loader, "demo/Hello", []string{"first", "second"})
	if err != nil || status != 0 {
		t.Fatalf("runMain() = %d, %v", status, err)
	}
	if got, want := out.String(), "2\nfirst\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	status, err = runMain(env, loader, "demo/Status", nil)
	if err != nil || status != 3 {
		t.Errorf("runMain(Status) = %d, %v, want 3", status, err)
	}
}

func TestRunMainFault(t *testing.T) {
	machine, env, loader, _ := newMachine(t)
	_, err := runMain(env, loader, "demo/Crash", nil)
	if !errors.Is(err, vm.ErrExceptionPending) {
		t.Fatalf("runMain(Crash) error = %v, want a pending fault", err)
	}
	var buf bytes.Buffer
	reportFault(&buf, machine, env.ClearException())
	for _, want := range []string{
		"Exception in thread \"main\" java.lang.ArithmeticException: / by zero",
		"at demo.Crash.main(Crash.java:7)",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report missing %q:\n%s", want, buf.String())
		}
	}

	if _, err := runMain(env, loader, "demo/Missing", nil); !errors.Is(err, vm.ErrExceptionPending) {
		t.Errorf("runMain(Missing) error = %v", err)
	}
	if p := env.ClearException(); p == nil || p.Class.Name != "java/lang/ClassNotFoundException" {
		t.Errorf("missing main class raised %v", p)
	}
}

func TestCollectClasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes", "demo", "Hello.yaml"), helloSrc)
	writeFile(t, filepath.Join(dir, "extra.yaml"), "name: demo/Extra\n")

	classes, err := collectClasses([]string{filepath.Join(dir, "classes"), filepath.Join(dir, "extra.yaml")})
	if err != nil {
		t.Fatalf("collectClasses() error = %v", err)
	}
	var names []string
	for _, c := range classes {
		names = append(names, c.Name)
	}
	if got, want := strings.Join(names, " "), "demo/Crash demo/Extra demo/Hello demo/Status"; got != want {
		t.Errorf("classes = %s, want %s", got, want)
	}

	writeFile(t, filepath.Join(dir, "dup.yaml"), "name: demo/Extra\n")
	if _, err := collectClasses([]string{filepath.Join(dir, "extra.yaml"), filepath.Join(dir, "dup.yaml")}); err == nil {
		t.Error("collectClasses() accepted a class defined twice")
	}
	if _, err := collectClasses(nil); err == nil {
		t.Error("collectClasses(nil) succeeded")
	}
}

func TestArchiveAndBundleCommands(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.yaml")
	writeFile(t, src, helloSrc)

	db := filepath.Join(dir, "app.db")
	if err := handleArchiveCommand([]string{"-o", db, src}); err != nil {
		t.Fatalf("archive error = %v", err)
	}
	bundle := filepath.Join(dir, "app.bundle")
	if err := handleBundleCommand([]string{"-o", bundle, src}); err != nil {
		t.Fatalf("bundle error = %v", err)
	}

	for _, entry := range []string{db, bundle} {
		p := &project{classpathFlag: entry}
		chain, err := p.openSource(nil)
		if err != nil {
			t.Fatalf("openSource(%s) error = %v", entry, err)
		}
		if _, err := chain.Find("demo/Status"); err != nil {
			t.Errorf("%s: Find(demo/Status) error = %v", entry, err)
		}
		chain.Close()
	}
}

func TestWriteClass(t *testing.T) {
	classes, err := classfile.ParseYAML(helloSrc)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	writeClass(&buf, classes[0], "main")
	for _, want := range []string{
		"class demo/Hello extends java/lang/Object",
		"method main([Ljava/lang/String;)V",
		"arraylength",
		"invokestatic",
		"javelin/Console.println",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("disassembly missing %q:\n%s", want, buf.String())
		}
	}
}
