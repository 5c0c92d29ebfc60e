// Package vibe implements the vibe session workflows: starting a session
// on a fresh branch, auto-committing while it runs, and squashing,
// rebasing and publishing it on stop.
//
// Operations are serialized, never panic, and report through a Result.
package vibe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bpineau/vibegit/config"
	"github.com/bpineau/vibegit/pkg/command"
	"github.com/bpineau/vibegit/pkg/committer"
	"github.com/bpineau/vibegit/pkg/event"
	"github.com/bpineau/vibegit/pkg/forge"
	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/persist"
	"github.com/bpineau/vibegit/pkg/repo"
	"github.com/bpineau/vibegit/pkg/session"
	"github.com/bpineau/vibegit/pkg/watcher"
)

const (
	// BranchPrefix tags the branches created by vibe sessions
	BranchPrefix = "vibe-"

	// StashLabel names the stash made by StashAndVibe
	StashLabel = "Pre-vibe stash"

	// WIPMessage is the commit message used by CommitAndVibe
	WIPMessage = "WIP: Pre-vibe commit"

	amendAttempts = 2
)

// PullRequester opens pull requests
type PullRequester interface {
	Create(ctx context.Context, dir, title, body string) (string, error)
}

// watchFunc starts the background resources of a session
type watchFunc func(root string, g *git.Repo, sig *event.Signal, onCommit func(string, time.Time)) (session.Handle, error)

// Orchestrator runs the workflow operations against the repository
// enclosing the configured directory.
type Orchestrator struct {
	Machine *session.Machine

	conf   *config.VgConfig
	log    *logrus.Logger
	runner command.Runner
	forge  PullRequester

	opmu  sync.Mutex
	repos map[string]*git.Repo

	now   func() time.Time
	sleep func(time.Duration)
	watch watchFunc
}

// New returns an Orchestrator in the Idle state. runner and pr may be nil,
// in which case the git/gh binaries from the configuration are used.
func New(conf *config.VgConfig, runner command.Runner, pr PullRequester) *Orchestrator {
	if runner == nil {
		runner = command.New(conf.Logger, conf.CommandTimeout)
	}
	if pr == nil {
		pr = forge.New(runner, conf.GhBinary)
	}

	o := &Orchestrator{
		Machine: session.New(conf.Logger, conf.ShutdownTimeout),
		conf:    conf,
		log:     conf.Logger,
		runner:  runner,
		forge:   pr,
		repos:   make(map[string]*git.Repo),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	o.watch = o.startWatch

	return o
}

// IsVibeBranch tells whether a branch name was made by a vibe session
func IsVibeBranch(name string) bool {
	digits := strings.TrimPrefix(name, BranchPrefix)
	if digits == name || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	ts, err := strconv.ParseInt(digits, 10, 64)
	return err == nil && ts > 0
}

// Shutdown stops any running session and forces the Idle state. It does
// not wait for a running operation, which then fails with session.ErrReset
// (cancel its context to abort its git calls).
func (o *Orchestrator) Shutdown() {
	o.Machine.Reset()
}

// open locates the repository and returns its (shared) git handle
func (o *Orchestrator) open() (string, *git.Repo, error) {
	root, err := repo.FindRoot(o.conf.RepoDir)
	if err != nil {
		return "", nil, err
	}

	g, ok := o.repos[root]
	if !ok {
		g = git.New(o.runner, root)
		g.Binary = o.conf.GitBinary
		o.repos[root] = g
	}

	return root, g, nil
}

// mirror returns the session mirror of the repository at root, or nil when
// disabled or when the git directory can't be resolved
func (o *Orchestrator) mirror(root string) *persist.Mirror {
	if o.conf.NoMirror {
		return nil
	}

	gitDir, err := repo.GitDir(root)
	if err != nil {
		o.log.Warnf("session mirror disabled: %v", err)
		return nil
	}

	return persist.New(gitDir)
}

// protect converts a panic into a failed result. Stops also force Idle.
func (o *Orchestrator) protect(res *Result, label string, reset bool) {
	r := recover()
	if r == nil {
		return
	}

	o.log.Errorf("unexpected failure while %s: %v", label, r)
	if reset {
		o.Machine.Reset()
	}
	*res = failure(fmt.Errorf("%v", r), "Error %s: %v", label, r)
}

// newBranchName returns an unused vibe-<unix timestamp> branch name
func (o *Orchestrator) newBranchName(ctx context.Context, g *git.Repo) string {
	ts := o.now().Unix()
	for g.BranchExists(ctx, fmt.Sprintf("%s%d", BranchPrefix, ts)) {
		ts++
	}
	return fmt.Sprintf("%s%d", BranchPrefix, ts)
}

// checkoutBase checks out the first base branch that exists
func (o *Orchestrator) checkoutBase(ctx context.Context, g *git.Repo) (string, error) {
	var err error
	for _, base := range o.conf.BaseBranches {
		if err = g.Checkout(ctx, base); err == nil {
			return base, nil
		}
	}
	return "", err
}

// beginSession moves to Vibing on branch. When from isn't empty, branch is
// first created from it; if the session can't start, from is checked out
// again and the new branch deleted. The watcher and worker are started
// inside the transition, and released if it fails.
func (o *Orchestrator) beginSession(ctx context.Context, root string, g *git.Repo, branch, from string) (session.Vibing, error) {
	m := o.mirror(root)
	onCommit := func(msg string, at time.Time) {
		if m != nil {
			if err := m.RecordCommit(msg, at); err != nil {
				o.log.Warnf("failed to record commit in the session mirror: %v", err)
			}
		}
	}

	st, err := o.Machine.Transition(session.KindVibing, func(session.State) (session.State, error) {
		if from != "" {
			if err := g.CreateBranch(ctx, branch); err != nil {
				return nil, stepError("creating branch", err)
			}
		}

		sig := event.NewSignal()
		h, err := o.watch(root, g, sig, onCommit)
		if err != nil {
			if from != "" {
				o.dropBranch(ctx, g, branch, from)
			}
			return nil, fmt.Errorf("failed to start watching %s: %v", root, err)
		}

		return session.Vibing{Branch: branch, Watch: h, Signal: sig}, nil
	})
	if err != nil {
		return session.Vibing{}, err
	}

	if m != nil {
		if err := m.Start(branch); err != nil {
			o.log.Warnf("failed to save the session mirror: %v", err)
		}
	}

	o.log.WithField("branch", branch).Info("Vibe session started")
	return st.(session.Vibing), nil
}

// dropBranch returns to from and deletes the branch made for a session
// that couldn't start
func (o *Orchestrator) dropBranch(ctx context.Context, g *git.Repo, branch, from string) {
	if err := g.Checkout(ctx, from); err != nil {
		o.log.Warnf("failed to check %s out again, still on %s: %v", from, branch, err)
		return
	}
	if err := g.DeleteBranch(ctx, branch); err != nil {
		o.log.Warnf("failed to delete %s: %v", branch, err)
	}
}

// pauser is implemented by handles whose auto-commits can be suspended
type pauser interface {
	Pause()
	Resume()
}

type watchHandle struct {
	watcher *watcher.Watcher
	worker  *committer.Worker
}

// Stop halts the watcher, then the worker. Timeouts are only reported.
func (h *watchHandle) Stop(timeout time.Duration) error {
	werr := h.watcher.Stop(timeout)
	cerr := h.worker.Stop(timeout)
	if werr != nil {
		return werr
	}
	return cerr
}

// Pause suspends auto-commits
func (h *watchHandle) Pause() { h.worker.Pause() }

// Resume re-enables auto-commits
func (h *watchHandle) Resume() { h.worker.Resume() }

func (o *Orchestrator) startWatch(root string, g *git.Repo, sig *event.Signal, onCommit func(string, time.Time)) (session.Handle, error) {
	entry := o.log.WithField("repo", root)

	w, err := watcher.New(entry, root, g, o.conf.Debounce, sig).Start()
	if err != nil {
		return nil, err
	}

	worker := committer.New(entry, g, sig, o.conf.CommitPoll, onCommit).Start()

	return &watchHandle{watcher: w, worker: worker}, nil
}
