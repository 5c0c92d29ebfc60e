// Package committer implements the auto-commit worker bound to a vibe
// session: whenever the commit signal is raised, it stages and commits
// every pending change of the working tree.
package committer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bpineau/vibegit/pkg/event"
)

var (
	// PollInterval is the default bounded wait on the commit signal,
	// between two liveness checks.
	PollInterval = time.Second

	// MsgPrefix prefixes the auto-generated commit messages
	MsgPrefix = "Auto-commit"

	// ErrShutdownTimeout is returned by Stop when the loop didn't exit in time
	ErrShutdownTimeout = errors.New("auto-commit worker shutdown timed out")
)

type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Repository is the subset of git operations the worker needs
type Repository interface {
	Status(ctx context.Context) (changed bool, summary string, err error)
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, msg string, noVerify bool) error
}

// Worker commits pending changes when signaled
type Worker struct {
	Logger   logger
	Repo     Repository
	Signal   *event.Signal
	Poll     time.Duration
	OnCommit func(msg string, at time.Time)

	now    func() time.Time
	stopch chan struct{}
	donech chan struct{}

	busy    sync.Mutex
	paused  bool
	skipped bool
}

// New instantiate a Worker. onCommit (optional) is called after every commit.
func New(log logger, repo Repository, sig *event.Signal, poll time.Duration, onCommit func(string, time.Time)) *Worker {
	if poll <= 0 {
		poll = PollInterval
	}

	return &Worker{
		Logger:   log,
		Repo:     repo,
		Signal:   sig,
		Poll:     poll,
		OnCommit: onCommit,
		now:      time.Now,
	}
}

// Start runs the commit loop in a detached goroutine
func (w *Worker) Start() *Worker {
	stopch := make(chan struct{})
	w.stopch = stopch
	w.donech = make(chan struct{})

	go func() {
		defer close(w.donech)

		for {
			// bounded wait, so a stop request is always seen promptly
			if !w.Signal.Wait(stopch, w.Poll) {
				select {
				case <-stopch:
					return
				default:
					continue
				}
			}

			// stop requests win over a pending signal
			select {
			case <-stopch:
				return
			default:
			}

			if _, err := w.CommitPending(context.Background()); err != nil {
				w.Logger.Errorf("auto-commit failed, will retry on next change: %v", err)
			}
		}
	}()

	return w
}

// Stop wakes the loop and asks it to exit, waiting at most timeout for it
func (w *Worker) Stop(timeout time.Duration) error {
	if w.stopch == nil {
		return nil
	}

	close(w.stopch)
	w.stopch = nil

	select {
	case <-w.donech:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Pause waits for an in-flight commit, then suspends commits until Resume
func (w *Worker) Pause() {
	w.busy.Lock()
	w.paused = true
	w.busy.Unlock()
}

// Resume re-enables commits. A signal received while paused is replayed.
func (w *Worker) Resume() {
	w.busy.Lock()
	replay := w.skipped
	w.paused, w.skipped = false, false
	w.busy.Unlock()

	if replay {
		w.Signal.Set()
	}
}

// CommitPending stages and commits pending changes, bypassing hooks.
// It does nothing (and returns false) on a clean working tree, or while
// the worker is paused.
func (w *Worker) CommitPending(ctx context.Context) (bool, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	if w.paused {
		w.skipped = true
		return false, nil
	}

	changed, _, err := w.Repo.Status(ctx)
	if err != nil {
		return false, err
	}

	if !changed {
		return false, nil
	}

	if err = w.Repo.AddAll(ctx); err != nil {
		return false, fmt.Errorf("failed to stage changes: %v", err)
	}

	at := w.now()
	msg := Message(at)
	if err = w.Repo.Commit(ctx, msg, true); err != nil {
		return false, fmt.Errorf("failed to commit: %v", err)
	}

	w.Logger.Infof("%s", msg)

	if w.OnCommit != nil {
		w.OnCommit(msg, at)
	}

	return true, nil
}

// Message returns the auto-commit message for a given time
func Message(at time.Time) string {
	return fmt.Sprintf("%s %d", MsgPrefix, at.Unix())
}
