// Package lock keeps a single vibe-git server per repository.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file, under the repository's git directory
const FileName = "vibe-git.lock"

// ErrLocked is returned when another process holds the lock
var ErrLocked = errors.New("another vibe-git server is running on this repository")

// Lock is an advisory lock on a repository
type Lock struct {
	Path string
	fl   *flock.Flock
}

// Acquire takes the repository lock without waiting. gitDir is the
// repository's git directory, as returned by repo.GitDir.
func Acquire(gitDir string) (*Lock, error) {
	path := filepath.Join(gitDir, FileName)
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}

	return &Lock{Path: path, fl: fl}, nil
}

// Release drops the lock
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
