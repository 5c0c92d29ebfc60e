// Package watcher observes a repository working tree and raises the commit
// signal when files change.
//
// fsnotify isn't recursive: every directory of the tree is registered at
// start, except .git and the directories git ignores, and directories
// created later are registered as their creation events arrive.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bpineau/vibegit/pkg/event"
)

// ErrShutdownTimeout is returned by Stop when the event loop didn't exit
// in time. It is never fatal: the loop is left behind.
var ErrShutdownTimeout = errors.New("watcher shutdown timed out")

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Watcher feeds file events from a working tree through a Filter
type Watcher struct {
	Logger logger
	Root   string
	Filter *Filter
	Signal *event.Signal

	fsw    *fsnotify.Watcher
	stopch chan struct{}
	donech chan struct{}
}

// New instantiate a Watcher for the repository at root
func New(log logger, root string, checker IgnoreChecker, debounce time.Duration, sig *event.Signal) *Watcher {
	return &Watcher{
		Logger: log,
		Root:   root,
		Filter: NewFilter(root, checker, debounce),
		Signal: sig,
	}
}

// Start registers the tree and processes events in a detached goroutine
func (w *Watcher) Start() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create a file watcher: %v", err)
	}

	stopch := make(chan struct{})
	w.fsw = fsw
	w.stopch = stopch
	w.donech = make(chan struct{})

	if err = w.addTree(w.Root); err != nil {
		_ = fsw.Close()
		w.stopch = nil
		return nil, fmt.Errorf("failed to watch %s: %v", w.Root, err)
	}

	w.Logger.Infof("Watching %s for changes", w.Root)

	go func() {
		defer close(w.donech)

		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				w.process(ev)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.Logger.Warnf("file watcher error: %v", err)
			case <-stopch:
				return
			}
		}
	}()

	return w, nil
}

// Stop halts the event loop, waiting at most timeout for it to exit
func (w *Watcher) Stop(timeout time.Duration) error {
	if w.stopch == nil {
		return nil
	}

	w.Logger.Infof("Stopping file watcher on %s", w.Root)

	close(w.stopch)
	w.stopch = nil

	if err := w.fsw.Close(); err != nil {
		w.Logger.Warnf("failed to close the file watcher: %v", err)
	}

	select {
	case <-w.donech:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (w *Watcher) process(ev fsnotify.Event) {
	// attribute changes don't change content
	if ev.Op == fsnotify.Chmod {
		return
	}

	isDir := false
	if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
		isDir = true
		if ev.Op.Has(fsnotify.Create) && !w.Filter.ShouldIgnore(context.Background(), ev.Name) {
			if err := w.addTree(ev.Name); err != nil {
				w.Logger.Warnf("failed to watch new directory %s: %v", ev.Name, err)
			}
		}
	}

	if w.Filter.Handle(context.Background(), ev.Name, isDir, w.Signal) {
		w.Logger.Debugf("commit needed after %s on %s", ev.Op, ev.Name)
	}
}

// addTree registers dir and its subdirectories, skipping .git and ignored ones
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished while walking
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if d.Name() == GitDir {
			return filepath.SkipDir
		}

		if path != w.Root && w.Filter.ShouldIgnore(context.Background(), path) {
			return filepath.SkipDir
		}

		return w.fsw.Add(path)
	})
}
