package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// runGit runs git in dir and returns its trimmed standard output. A failure
// carries git's own diagnostic.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	log.Debugf("git %s in %q", strings.Join(args, " "), dir)
	return strings.TrimSpace(string(out)), nil
}

// checkoutDependency brings the clone at dest to the revision a git
// dependency asks for and returns the commit it ended on.
//
// A lock entry for the same url and tag pins the exact commit recorded
// earlier, so a moved tag does not change the classpath silently. Without
// one the tag is checked out, or the remote's default branch when there is
// no tag. An existing clone with local modifications is never touched.
func checkoutDependency(url, dest, tag string, locked *LockedDep) (string, error) {
	pinned := locked != nil && locked.Git == url && locked.Tag == tag && locked.Commit != ""

	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		if _, err := runGit("", "clone", "--quiet", url, dest); err != nil {
			return "", err
		}
	} else {
		status, err := runGit(dest, "status", "--porcelain")
		if err != nil {
			return "", err
		}
		if status != "" {
			return "", fmt.Errorf("%s has local modifications; commit or remove them", dest)
		}
		if !pinned || !hasCommit(dest, locked.Commit) {
			if _, err := runGit(dest, "fetch", "--quiet", "--force", "--tags", "origin"); err != nil {
				return "", err
			}
		}
	}

	ref := tag
	if pinned {
		ref = locked.Commit
	}
	if ref != "" {
		if _, err := runGit(dest, "checkout", "--quiet", ref); err != nil {
			return "", err
		}
	}
	return runGit(dest, "rev-parse", "HEAD")
}

// hasCommit reports whether the clone at dir already contains commit.
func hasCommit(dir, commit string) bool {
	_, err := runGit(dir, "cat-file", "-e", commit+"^{commit}")
	return err == nil
}
