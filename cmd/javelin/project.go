package main

import (
	"fmt"
	"path/filepath"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
	"github.com/chazu/javelin/manifest"
	"github.com/chazu/javelin/vm"
)

// project is the classpath and runtime configuration a command runs with.
type project struct {
	manifest      *manifest.Manifest // nil outside a project
	classpathFlag string
}

// classpathEntries returns -cp when given, otherwise the manifest's
// entries followed by those of its resolved dependencies, otherwise ".".
func (p *project) classpathEntries() ([]string, error) {
	if p.classpathFlag != "" {
		return filepath.SplitList(p.classpathFlag), nil
	}
	if p.manifest == nil {
		return []string{"."}, nil
	}
	entries, err := manifest.NewResolver(p.manifest).Classpath()
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}
	return entries, nil
}

// openSource opens the classpath with any loose classes searched first.
// The returned chain must be closed.
func (p *project) openSource(loose []*classfile.Class) (classpath.Chain, error) {
	entries, err := p.classpathEntries()
	if err != nil {
		return nil, err
	}
	chain, err := classpath.Open(entries)
	if err != nil {
		return nil, err
	}
	if len(loose) > 0 {
		chain = append(classpath.Chain{classpath.NewMemory(loose...)}, chain...)
	}
	log.Debugf("classpath: %s", chain)
	return chain, nil
}

func (p *project) config() vm.Config {
	if p.manifest == nil {
		return vm.DefaultConfig()
	}
	return p.manifest.RuntimeConfig()
}

func (p *project) mainClass() string {
	if p.manifest == nil {
		return ""
	}
	return p.manifest.Project.Main
}
