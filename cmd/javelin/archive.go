package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
)

// handleArchiveCommand processes the `javelin archive` subcommand.
// Usage:
//
//	javelin archive -o app.db classes/ extra.yaml
func handleArchiveCommand(args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	out := fs.String("o", "classes.db", "Archive to create or update")
	fs.Parse(args)

	classes, err := collectClasses(fs.Args())
	if err != nil {
		return err
	}
	a, err := classpath.OpenArchive(*out)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Put(classes...); err != nil {
		return err
	}
	fmt.Printf("Archived %d classes in %s\n", len(classes), *out)
	return nil
}

// handleBundleCommand processes the `javelin bundle` subcommand.
// Usage:
//
//	javelin bundle -o app.bundle classes/
func handleBundleCommand(args []string) error {
	fs := flag.NewFlagSet("bundle", flag.ExitOnError)
	out := fs.String("o", "classes.bundle", "Bundle file to write")
	fs.Parse(args)

	classes, err := collectClasses(fs.Args())
	if err != nil {
		return err
	}
	data, err := classfile.MarshalBundle(classes)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Bundled %d classes in %s (%d bytes)\n", len(classes), *out, len(data))
	return nil
}

// collectClasses reads every input in parallel. Directories are walked
// for YAML and CBOR class files; anything else is read as YAML. The result
// is sorted by name and a class defined twice is an error.
func collectClasses(inputs []string) ([]*classfile.Class, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs given")
	}
	var (
		mu     sync.Mutex
		byName = make(map[string]string) // class -> input
		all    []*classfile.Class
	)
	var g errgroup.Group
	for _, in := range inputs {
		g.Go(func() error {
			var classes []*classfile.Class
			info, err := os.Stat(in)
			if err != nil {
				return err
			}
			if info.IsDir() {
				classes, err = classpath.NewDir(in).Walk()
			} else {
				classes, err = classfile.LoadYAML(in)
			}
			if err != nil {
				return err
			}
			log.Debugf("%s: %d classes", in, len(classes))

			mu.Lock()
			defer mu.Unlock()
			for _, c := range classes {
				if prev, dup := byName[c.Name]; dup {
					return fmt.Errorf("%s defined in both %s and %s", c.Name, prev, filepath.Clean(in))
				}
				byName[c.Name] = filepath.Clean(in)
				all = append(all, c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}
