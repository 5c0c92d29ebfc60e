// Package repo locates the git repository enclosing a directory.
package repo

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Marker is the entry identifying a repository root. Matched exactly,
// case included: ".GIT" is not a repository on case sensitive filesystems
// and we don't pretend otherwise on the others.
const Marker = ".git"

// ErrNotARepository is returned when no repository encloses the start dir
var ErrNotARepository = errors.New("not in a git repository")

// gitdirPrefix starts the content of a ".git" file
const gitdirPrefix = "gitdir:"

var appFs = afero.NewOsFs()

// FindRoot walks up from startDir to the first directory holding a ".git"
// entry (directory, or file for worktrees and submodules).
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("can't find %s absolute path (broken cwd?): %v", startDir, err)
	}

	for {
		if hasMarker(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (searched from %s)", ErrNotARepository, startDir)
		}
		dir = parent
	}
}

// hasMarker lists the directory instead of stat'ing dir/.git, so a case
// insensitive filesystem can't make ".GIT" pass for the marker.
func hasMarker(dir string) bool {
	entries, err := afero.ReadDir(appFs, dir)
	if err != nil {
		return false
	}

	for _, entry := range entries {
		if entry.Name() == Marker {
			return true
		}
	}

	return false
}

// GitDir returns the git directory of the repository rooted at root: root's
// ".git" directory, or the directory a ".git" file points to (linked
// worktrees and submodules).
func GitDir(root string) (string, error) {
	path := filepath.Join(root, Marker)

	info, err := appFs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotARepository, err)
	}
	if info.IsDir() {
		return path, nil
	}

	data, err := afero.ReadFile(appFs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v", path, err)
	}

	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if !strings.HasPrefix(line, gitdirPrefix) {
		return "", fmt.Errorf("%w: %s isn't a gitdir file", ErrNotARepository, path)
	}

	dir := strings.TrimSpace(strings.TrimPrefix(line, gitdirPrefix))
	if dir == "" {
		return "", fmt.Errorf("%w: %s points nowhere", ErrNotARepository, path)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	return filepath.Clean(dir), nil
}
