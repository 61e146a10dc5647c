package manifest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePackage(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		want        string
		wantErr     bool
	}{
		{
			name:        "consumer override wins",
			depName:     "util",
			dep:         Dependency{Path: "../u", Package: "custom/util"},
			depManifest: &Manifest{Project: Project{Package: "acme/util"}},
			want:        "custom/util",
		},
		{
			name:        "producer package when no override",
			depName:     "util",
			dep:         Dependency{Path: "../u"},
			depManifest: &Manifest{Project: Project{Package: "acme/util"}},
			want:        "acme/util",
		},
		{
			name:    "name fallback",
			depName: "my-lib",
			dep:     Dependency{Path: "../my-lib"},
			want:    "my_lib",
		},
		{
			name:    "reserved override rejected",
			depName: "lang",
			dep:     Dependency{Path: "../lang", Package: "java/lang"},
			wantErr: true,
		},
		{
			name:    "reserved via fallback",
			depName: "javelin",
			dep:     Dependency{Path: "../javelin"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pkg, err := resolvePackage(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got package %q", pkg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pkg != tc.want {
				t.Errorf("package = %q, want %q", pkg, tc.want)
			}
		})
	}
}

func TestResolverClasspathWithPathDependency(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	helper := filepath.Join(root, "helper")
	for _, d := range []string{app, helper} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, app, "[project]\nname = \"app\"\n\n[dependencies]\nhelper = { path = \"../helper\" }\n")
	writeManifest(t, helper, "[project]\nname = \"helper\"\npackage = \"acme/helper\"\n\n[classpath]\nentries = [\"out\"]\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(m)
	entries, err := r.Classpath()
	if err != nil {
		t.Fatalf("Classpath error: %v", err)
	}
	want := []string{filepath.Join(app, "classes"), filepath.Join(helper, "out")}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if d := lf.FindLockedDep("helper"); d == nil || d.Path != "../helper" {
		t.Errorf("lock entry = %v, want path ../helper", d)
	}
}

func TestResolverMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\nghost = { path = \"../ghost\" }\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("Resolve succeeded for a missing path dependency")
	}
}

// git runs a git command for test setup, failing the test on error.
func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=javelin", "GIT_AUTHOR_EMAIL=javelin@example.com",
		"GIT_COMMITTER_NAME=javelin", "GIT_COMMITTER_EMAIL=javelin@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func TestResolverGitDependency(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	work := filepath.Join(root, "util")
	bare := filepath.Join(root, "util.git")
	app := filepath.Join(root, "app")
	for _, d := range []string{work, app} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	git(t, work, "init", "--quiet")
	writeManifest(t, work, "[project]\nname = \"util\"\npackage = \"acme/util\"\n\n[classpath]\nentries = [\"out\"]\n")
	git(t, work, "add", FileName)
	git(t, work, "-c", "commit.gpgsign=false", "commit", "--quiet", "-m", "first")
	git(t, work, "tag", "v1")
	first := git(t, work, "rev-parse", "HEAD")
	git(t, root, "clone", "--quiet", "--bare", work, bare)

	writeManifest(t, app, "[project]\nname = \"app\"\n\n[dependencies]\nutil = { git = \""+filepath.ToSlash(bare)+"\", tag = \"v1\" }\n")
	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := NewResolver(m).Classpath()
	if err != nil {
		t.Fatalf("Classpath error: %v", err)
	}
	clone := filepath.Join(m.DepsDir(), "util")
	want := []string{filepath.Join(app, "classes"), filepath.Join(clone, "out")}
	if strings.Join(entries, "|") != strings.Join(want, "|") {
		t.Errorf("entries = %v, want %v", entries, want)
	}
	lockedCommit := func() string {
		t.Helper()
		lf, err := ReadLock(m.LockFilePath())
		if err != nil {
			t.Fatal(err)
		}
		d := lf.FindLockedDep("util")
		if d == nil {
			t.Fatal("no lock entry for util")
		}
		return d.Commit
	}
	if got := lockedCommit(); got != first {
		t.Errorf("locked commit = %s, want %s", got, first)
	}

	// Move the tag upstream. The lock keeps the dependency on its commit.
	if err := os.WriteFile(filepath.Join(work, "README"), []byte("second\n"), 0644); err != nil {
		t.Fatal(err)
	}
	git(t, work, "add", "README")
	git(t, work, "-c", "commit.gpgsign=false", "commit", "--quiet", "-m", "second")
	git(t, work, "tag", "-f", "v1")
	second := git(t, work, "rev-parse", "HEAD")
	git(t, work, "push", "--quiet", "--force", bare, "refs/tags/v1")

	if _, err := NewResolver(m).Resolve(); err != nil {
		t.Fatalf("Resolve with lock error: %v", err)
	}
	if got := git(t, clone, "rev-parse", "HEAD"); got != first {
		t.Errorf("HEAD with lock = %s, want the locked %s", got, first)
	}

	// Without the lock the moved tag is fetched.
	if err := os.Remove(m.LockFilePath()); err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err != nil {
		t.Fatalf("Resolve without lock error: %v", err)
	}
	if got := git(t, clone, "rev-parse", "HEAD"); got != second {
		t.Errorf("HEAD without lock = %s, want %s", got, second)
	}
	if got := lockedCommit(); got != second {
		t.Errorf("relocked commit = %s, want %s", got, second)
	}

	// A modified clone is left alone.
	if err := os.WriteFile(filepath.Join(clone, "README"), []byte("local edit\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil || !strings.Contains(err.Error(), "local modifications") {
		t.Errorf("Resolve over a modified clone error = %v, want local modifications", err)
	}
}
