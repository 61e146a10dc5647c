package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/pkg/bytecode"
)

// handleDisasmCommand processes the `javelin disasm` subcommand.
// Usage:
//
//	javelin disasm demo.Main         # every method
//	javelin disasm demo.Main main    # methods named main
func handleDisasmCommand(p *project, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: javelin disasm <class> [method]")
	}
	src, err := p.openSource(nil)
	if err != nil {
		return err
	}
	defer src.Close()

	c, err := src.Find(strings.ReplaceAll(args[0], ".", "/"))
	if err != nil {
		return err
	}
	only := ""
	if len(args) > 1 {
		only = args[1]
	}
	writeClass(os.Stdout, c, only)
	return nil
}

func writeClass(w io.Writer, c *classfile.Class, only string) {
	fmt.Fprintf(w, "class %s", c.Name)
	if c.Super != "" {
		fmt.Fprintf(w, " extends %s", c.Super)
	}
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(w, " implements %s", strings.Join(c.Interfaces, ", "))
	}
	fmt.Fprintf(w, "  [flags 0x%04x]\n", uint16(c.Access))
	if c.SourceFile != "" {
		fmt.Fprintf(w, "  source %s\n", c.SourceFile)
	}
	for _, f := range c.Fields {
		fmt.Fprintf(w, "  field %s %s [flags 0x%04x]\n", f.Name, f.Descriptor, uint16(f.Access))
	}

	names := func(index uint16) string {
		k, err := c.Constant(int(index))
		if err != nil {
			return "?"
		}
		return k.String()
	}
	for _, m := range c.Methods {
		if only != "" && m.Name != only {
			continue
		}
		fmt.Fprintf(w, "\n  method %s%s [flags 0x%04x]\n", m.Name, m.Descriptor, uint16(m.Access))
		if m.Code == nil {
			continue
		}
		fmt.Fprintf(w, "    max stack %d, max locals %d\n", m.Code.MaxStack, m.Code.MaxLocals)
		for _, line := range strings.Split(strings.TrimRight(bytecode.Disassemble(m.Code.Bytes, names), "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		for _, ex := range m.Code.Exceptions {
			catch := "any"
			if ex.CatchType != 0 {
				catch = names(ex.CatchType)
			}
			fmt.Fprintf(w, "    catch %s from %d to %d using %d\n", catch, ex.StartPC, ex.EndPC, ex.HandlerPC)
		}
		for _, ln := range m.Code.Lines {
			fmt.Fprintf(w, "    line %d: %d\n", ln.Line, ln.StartPC)
		}
	}
}

// handleClasspathCommand prints the resolved classpath, one entry per line.
func handleClasspathCommand(p *project) error {
	entries, err := p.classpathEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Println(e)
	}
	return nil
}
