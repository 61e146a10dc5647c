package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("javelin.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Package   string    // package root the dependency's classes live under
	Commit    string    // checked out commit of a git dependency
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return order, nil
}

// Classpath returns the project's classpath followed by each resolved
// dependency's entries, in load order.
func (r *Resolver) Classpath() ([]string, error) {
	deps, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	entries := r.manifest.ClasspathEntries()
	for _, d := range deps {
		if d.Manifest != nil {
			entries = append(entries, d.Manifest.ClasspathEntries()...)
		} else {
			entries = append(entries, filepath.Join(d.LocalPath, "classes"))
		}
	}
	return entries, nil
}

// resolveAll resolves a set of dependencies recursively.
// Returns dependencies in topological order (deps before dependents).
func (r *Resolver) resolveAll(deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	var order []ResolvedDep

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}

		rd, err := r.resolveOne(name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		order = append(order, *rd)
	}

	return order, nil
}

// resolvePackage determines the package root for a dependency:
//  1. Consumer override (dep.Package from TOML)
//  2. Producer manifest (depManifest.Project.Package)
//  3. ToPackagePath(name)
func resolvePackage(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var pkg string
	switch {
	case dep.Package != "":
		pkg = dep.Package
	case depManifest != nil && depManifest.Project.Package != "":
		pkg = depManifest.Project.Package
	default:
		pkg = ToPackagePath(name)
	}

	if IsReservedPackage(pkg) {
		return "", fmt.Errorf("dependency %q resolves to reserved package %q; add package = \"...\" in [dependencies]", name, pkg)
	}
	return pkg, nil
}

// resolveOne resolves a single dependency.
func (r *Resolver) resolveOne(name string, dep Dependency) (*ResolvedDep, error) {
	var localPath, commit string

	switch {
	case dep.Path != "":
		localPath = dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(r.manifest.Dir, localPath)
		}
		var err error
		localPath, err = filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}

	case dep.Git != "":
		localPath = filepath.Join(r.manifest.DepsDir(), name)
		if err := os.MkdirAll(r.manifest.DepsDir(), 0o755); err != nil {
			return nil, fmt.Errorf("creating deps dir: %w", err)
		}
		log.Infof("checking out %s from %s", name, dep.Git)
		var err error
		commit, err = checkoutDependency(dep.Git, localPath, dep.Tag, r.lock.FindLockedDep(name))
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	depManifest, _ := Load(localPath)
	pkg, err := resolvePackage(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Package:   pkg,
		Commit:    commit,
		Manifest:  depManifest,
	}, nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}

	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}
		dep, direct := r.manifest.Dependencies[rd.Name]
		switch {
		case direct && dep.Git != "":
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			ld.Commit = rd.Commit
		case direct && dep.Path != "":
			ld.Path = dep.Path
		default:
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0o755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
