package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bpineau/vibegit/pkg/event"
)

// GitDir is the path component whose content never triggers commits
const GitDir = ".git"

// IgnoreChecker tells if a path, relative to the repository root, is
// ignored by the repository ignore rules.
type IgnoreChecker interface {
	IsIgnored(ctx context.Context, path string) bool
}

// Filter decides, per file system event, whether a commit is needed, and
// rate limits the resulting signals.
type Filter struct {
	Root     string
	Ignore   IgnoreChecker
	Debounce time.Duration

	now  func() time.Time
	mu   sync.Mutex
	last time.Time
}

// NewFilter returns a Filter for the repository at root
func NewFilter(root string, checker IgnoreChecker, debounce time.Duration) *Filter {
	return &Filter{
		Root:     root,
		Ignore:   checker,
		Debounce: debounce,
		now:      time.Now,
	}
}

// Relative returns path relative to the root, and false when the path
// lies outside of it.
func (f *Filter) Relative(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), true
	}

	rel, err := filepath.Rel(f.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return rel, true
}

// ShouldIgnore tells if a path must not trigger a commit: anything outside
// the root, anything under a .git directory, and anything git ignores.
func (f *Filter) ShouldIgnore(ctx context.Context, path string) bool {
	rel, ok := f.Relative(path)
	if !ok || rel == "." {
		return true
	}

	if InGitDir(rel) {
		return true
	}

	if f.Ignore == nil {
		return false
	}

	return f.Ignore.IsIgnored(ctx, rel)
}

// Handle processes a file event and raises sig when a commit is needed and
// the debounce window since the last raised signal has elapsed. It reports
// whether the signal was raised.
func (f *Filter) Handle(ctx context.Context, path string, isDir bool, sig *event.Signal) bool {
	if isDir {
		return false
	}

	if f.ShouldIgnore(ctx, path) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if !f.last.IsZero() && now.Sub(f.last) < f.Debounce {
		return false
	}

	f.last = now
	sig.Set()

	return true
}

// InGitDir tells if one of the (relative) path components is exactly ".git"
func InGitDir(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == GitDir {
			return true
		}
	}
	return false
}
