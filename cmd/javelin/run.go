package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/vm"
)

// handleRunCommand processes the `javelin run` subcommand.
// Usage:
//
//	javelin run demo.Main a b c
//	javelin run -load hello.yaml,util.yaml demo/Hello
func handleRunCommand(p *project, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	load := fs.String("load", "", "Comma-separated YAML class files searched before the classpath")
	fs.Parse(args)

	var loose []*classfile.Class
	if *load != "" {
		for _, path := range strings.Split(*load, ",") {
			classes, err := classfile.LoadYAML(strings.TrimSpace(path))
			if err != nil {
				return err
			}
			loose = append(loose, classes...)
		}
	}

	rest := fs.Args()
	mainClass := p.mainClass()
	if len(rest) > 0 {
		mainClass, rest = rest[0], rest[1:]
	}
	if mainClass == "" {
		return errors.New("no main class given and none configured in javelin.toml")
	}

	src, err := p.openSource(loose)
	if err != nil {
		return err
	}
	defer src.Close()

	machine, err := vm.New(p.config())
	if err != nil {
		return err
	}
	loader := machine.NewClassLoader("app", nil, src)
	env := machine.AttachCurrentThread()
	defer machine.DetachCurrentThread()

	status, err := runMain(env, loader, strings.ReplaceAll(mainClass, ".", "/"), rest)
	if errors.Is(err, vm.ErrExceptionPending) {
		fault := env.ClearException()
		log.Errorf("uncaught %s in env %s", fault.Class.Name, env.ID)
		reportFault(os.Stderr, machine, fault)
		return exitError{1}
	}
	if err != nil {
		return err
	}
	if status != 0 {
		return exitError{status}
	}
	return nil
}

// runMain calls name's static main method, preferring main(String[]) over
// main(). An int-returning main() supplies the exit status.
func runMain(env *vm.Env, loader *vm.ClassLoader, name string, args []string) (int, error) {
	c, err := env.FindClass(loader, name, false)
	if err != nil {
		return 0, err
	}
	candidates := []string{"([Ljava/lang/String;)V", "()V", "()I"}
	var main *vm.Method
	for _, desc := range candidates {
		if m := c.DeclaredMethod("main", desc); m != nil && m.IsStatic() {
			main = m
			break
		}
	}
	if main == nil {
		return 0, fmt.Errorf("%s has no static main method", c.JavaName())
	}

	var argv []vm.Slot
	if main.Descriptor == candidates[0] {
		arr, err := stringArray(env.VM(), args)
		if err != nil {
			return 0, err
		}
		argv = append(argv, vm.RefSlot(arr))
	}
	log.Infof("running %s.main%s", c.JavaName(), main.Descriptor)
	v, err := env.Call(main, argv...)
	if err != nil {
		return 0, err
	}
	if main.Descriptor == "()I" {
		return int(v.Int()), nil
	}
	return 0, nil
}

func stringArray(machine *vm.VM, args []string) (*vm.Object, error) {
	ac, err := machine.ArrayOf(machine.StringClass)
	if err != nil {
		return nil, err
	}
	arr, err := machine.NewArray(ac, len(args))
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		s, err := machine.NewString(a)
		if err != nil {
			return nil, err
		}
		arr.SetElem(i, vm.RefSlot(s))
	}
	return arr, nil
}

// reportFault prints an uncaught fault with its trace, highlighting the
// first line when w is a terminal.
func reportFault(w io.Writer, machine *vm.VM, fault *vm.Object) {
	text := machine.FormatException(fault)
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		head, rest, _ := strings.Cut(text, "\n")
		fmt.Fprintf(w, "\x1b[1;31mException in thread \"main\" %s\x1b[0m\n%s", head, rest)
		return
	}
	fmt.Fprintf(w, "Exception in thread \"main\" %s", text)
}
