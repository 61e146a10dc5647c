// javelin CLI - runs and packages classes for the javelin virtual machine
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/javelin/manifest"
)

var log = commonlog.GetLogger("javelin.cli")

// exitError carries a process exit status up to main.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	verbose := flag.Int("v", -1, "Log verbosity: 0 errors, 1 warnings, 2 info, 3 debug (default from javelin.toml)")
	logFile := flag.String("log", "", "Write log output to this file")
	cp := flag.String("cp", "", "Classpath entries separated by "+string(os.PathListSeparator)+" (overrides javelin.toml)")
	projectDir := flag.String("C", ".", "Directory to search upward from for javelin.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: javelin [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run [-load a.yaml,b.yaml] [class] [args...]  Run a class's static main method\n")
		fmt.Fprintf(os.Stderr, "  archive -o out.db <dir|file.yaml>...         Store classes in a SQLite archive\n")
		fmt.Fprintf(os.Stderr, "  bundle -o out.bundle <dir|file.yaml>...      Write classes to a CBOR bundle\n")
		fmt.Fprintf(os.Stderr, "  disasm <class> [method]                      Disassemble a class from the classpath\n")
		fmt.Fprintf(os.Stderr, "  classpath                                    Print the resolved classpath\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  javelin run demo.Main              # main class from the classpath\n")
		fmt.Fprintf(os.Stderr, "  javelin -cp classes run demo/Main  # explicit classpath\n")
		fmt.Fprintf(os.Stderr, "  javelin run -load hello.yaml       # loose YAML, main class from javelin.toml\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(*projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	configureLogging(m, *verbose, *logFile)

	proj := &project{manifest: m, classpathFlag: *cp}
	switch args[0] {
	case "run":
		err = handleRunCommand(proj, args[1:])
	case "archive":
		err = handleArchiveCommand(args[1:])
	case "bundle":
		err = handleBundleCommand(args[1:])
	case "disasm":
		err = handleDisasmCommand(proj, args[1:])
	case "classpath":
		err = handleClasspathCommand(proj)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	var exit exitError
	switch {
	case err == nil:
	case errors.As(err, &exit):
		os.Exit(exit.code)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging applies the -v and -log flags, falling back to the
// manifest's [log] section.
func configureLogging(m *manifest.Manifest, verbosity int, path string) {
	if m != nil {
		if verbosity < 0 {
			verbosity = m.Log.Verbosity
		}
		if path == "" && m.Log.File != "" {
			path = m.Log.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(m.Dir, path)
			}
		}
	}
	if verbosity < 0 {
		verbosity = 0
	}
	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
}
