// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// HasGit tells if a git binary is available
func HasGit() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Git runs a git command in dir and fails the test on error
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...) // #nosec
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=vibe-git tests",
		"GIT_AUTHOR_EMAIL=tests@vibe-git.invalid",
		"GIT_COMMITTER_NAME=vibe-git tests",
		"GIT_COMMITTER_EMAIL=tests@vibe-git.invalid",
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, out)
	}

	return strings.TrimSpace(string(out))
}

// WriteFile writes content to a file relative to dir, creating parents
func WriteFile(t testing.TB, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s parent: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// NewRepo creates a repository on branch "main" holding one commit.
// Identity is set in the repository config so commits made by the code
// under test succeed too.
func NewRepo(t testing.TB) string {
	t.Helper()

	dir := t.TempDir()
	dir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}

	Git(t, dir, "init", "-q")
	Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, dir, "config", "user.name", "vibe-git tests")
	Git(t, dir, "config", "user.email", "tests@vibe-git.invalid")
	Git(t, dir, "config", "commit.gpgsign", "false")
	WriteFile(t, dir, "README.md", "hello\n")
	Git(t, dir, "add", ".")
	Git(t, dir, "commit", "-q", "-m", "initial commit")

	return dir
}

// NewRepoWithRemote creates a repository like NewRepo, plus a bare
// repository registered as its "origin" remote, with main pushed.
func NewRepoWithRemote(t testing.TB) (dir string, remote string) {
	t.Helper()

	dir = NewRepo(t)

	remote = t.TempDir()
	Git(t, remote, "init", "-q", "--bare")
	Git(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")

	Git(t, dir, "remote", "add", "origin", remote)
	Git(t, dir, "push", "-q", "-u", "origin", "main")

	return dir, remote
}
