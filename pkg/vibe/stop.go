package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bpineau/vibegit/pkg/forge"
	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/session"
)

// Stop ends the running session: auto-commits are squashed into a single
// commit carrying msg, rebased onto the latest base branch, force pushed,
// and proposed as a pull request. The base branch is checked out last.
//
// A failing step aborts the stop, forces Idle, and is reported as a
// StepError. A missing or failing PR tool only degrades the result.
func (o *Orchestrator) Stop(ctx context.Context, msg string) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "stopping vibe session", true)

	v, ok := o.Machine.Current().(session.Vibing)
	if !ok {
		return Result{
			OK:      true,
			State:   o.Machine.Current().Kind(),
			Message: "Not currently vibing. You can start a vibe session with start_vibing().",
		}
	}

	if strings.TrimSpace(msg) == "" {
		return failure(errors.New("empty commit message"), "Error: a commit message is required to stop vibing")
	}

	root, g, err := o.open()
	if err != nil {
		return failure(err, "Error stopping vibe session: %v", err)
	}

	entry := o.log.WithField("branch", v.Branch)
	entry.Info("Stopping vibe session")

	_, err = o.Machine.Transition(session.KindIdle, func(session.State) (session.State, error) {
		res, err = o.finish(ctx, root, g, v, msg)
		if err != nil {
			return nil, err
		}
		return session.Idle{}, nil
	})

	if err != nil {
		entry.Errorf("Stopping failed, session reset: %v", err)
		o.Machine.Reset()

		var serr *StepError
		if errors.As(err, &serr) {
			res = stepFailure(serr)
		} else {
			res = failure(err, "Error stopping vibe session: %v", err)
		}
		res.Branch = v.Branch
		return res
	}

	if m := o.mirror(root); m != nil {
		if res.PRURL != "" {
			if err := m.RecordPR(res.PRURL); err != nil {
				entry.Warnf("failed to record the pull request url: %v", err)
			}
		}
		if err := m.Delete(); err != nil {
			entry.Warnf("failed to delete the session mirror: %v", err)
		}
	}

	entry.Info("Vibe session stopped")
	return res
}

// finish runs the git side of a stop, strictly in order. Auto-commits are
// suspended while history is rewritten and branches are switched; they
// only run during the settle delay, to catch files rewritten by hooks.
func (o *Orchestrator) finish(ctx context.Context, root string, g *git.Repo, v session.Vibing, msg string) (Result, error) {
	branch := v.Branch
	res := Result{State: session.KindIdle, Branch: branch}

	p, _ := v.Watch.(pauser)
	if p != nil {
		p.Pause()
	}

	base, mergeBase, err := o.findMergeBase(ctx, g)
	if err != nil {
		return res, stepError("finding branch point", err)
	}

	count, err := g.CountCommits(ctx, mergeBase, "HEAD")
	switch {
	case err != nil:
		o.log.Warnf("failed to count commits since %s, not squashing: %v", mergeBase, err)
		res.Warnings = append(res.Warnings, "Could not count the session commits, they were not squashed.")
	case count == 0:
		res.Warnings = append(res.Warnings, fmt.Sprintf("No commits since %s: the pull request may be empty.", base))
	case count > 1:
		if err = o.squash(ctx, g, mergeBase, msg); err != nil {
			return res, err
		}
		res.Squashed = count
		// let the watcher pick up files rewritten by hooks
		if p != nil {
			p.Resume()
		}
		o.sleep(o.conf.SettleDelay)
		if p != nil {
			p.Pause()
		}
	}

	if err = g.Checkout(ctx, base); err != nil {
		return res, stepError("checking out "+base, err)
	}

	if err = g.Pull(ctx, o.conf.Remote, base); err != nil {
		return res, stepError("pulling latest "+base, err)
	}

	if err = g.Checkout(ctx, branch); err != nil {
		return res, stepError("checking out vibe branch", err)
	}

	if out, rerr := g.Rebase(ctx, base); rerr != nil {
		res.HadConflicts = true
		if err = g.RebaseAbort(ctx); err != nil {
			o.log.Warnf("failed to abort the rebase: %v", err)
		}
		res.Warnings = append(res.Warnings, "Had to force push due to rebase conflicts. Review the PR carefully.")

		if err = g.ForcePush(ctx, o.conf.Remote, branch); err != nil {
			return res, &StepError{
				Step:   "force pushing after a failed rebase",
				Output: fmt.Sprintf("rebase: %s\npush: %s", strings.TrimSpace(out), outputOf(err)),
			}
		}
	} else if err = g.ForcePush(ctx, o.conf.Remote, branch); err != nil {
		// the rebase rewrote history, a plain push can't do
		return res, stepError("force pushing rebased branch", err)
	}

	title, body := forge.ParseMessage(msg)
	url, err := o.forge.Create(ctx, root, title, body)
	if err != nil {
		o.log.Warnf("pull request not created: %v", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("Pull request not created: %v", err))
	} else {
		res.PRURL = url
	}

	if err = g.Checkout(ctx, base); err != nil {
		return res, stepError("switching back to "+base, err)
	}

	if current, err := g.CurrentBranch(ctx); err != nil || current != base {
		return res, &StepError{
			Step:   "switching back to " + base,
			Output: fmt.Sprintf("still on %q (%s)", current, outputOf(err)),
		}
	}

	res.OK = true
	rebased := "rebased on " + base
	if res.HadConflicts {
		rebased = "not rebased (conflicts with " + base + ")"
	}
	res.Message = fmt.Sprintf("%s Stopped vibing! Squashed commits into: '%s', %s, and pushed to %s.",
		markStop, title, rebased, o.conf.Remote)

	return res, nil
}

// findMergeBase returns the first base branch sharing history with HEAD
func (o *Orchestrator) findMergeBase(ctx context.Context, g *git.Repo) (string, string, error) {
	var err error
	for _, base := range o.conf.BaseBranches {
		var mb string
		if mb, err = g.MergeBase(ctx, base, "HEAD"); err == nil && mb != "" {
			return base, mb, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no merge base with %s", strings.Join(o.conf.BaseBranches, " or "))
	}
	return "", "", err
}

// squash replaces the commits since mergeBase with a single commit. The
// commit is first made without hooks, then amended with them so they run
// on the final message. Files the hooks rewrite are staged and the amend
// retried once.
func (o *Orchestrator) squash(ctx context.Context, g *git.Repo, mergeBase, msg string) error {
	if err := g.ResetSoft(ctx, mergeBase); err != nil {
		return stepError("resetting to base commit", err)
	}

	if err := g.Commit(ctx, msg, true); err != nil {
		return stepError("creating squash commit", err)
	}

	var err error
	for i := 0; i < amendAttempts; i++ {
		if err = g.AmendNoEdit(ctx); err == nil {
			return nil
		}

		changed, _, serr := g.Status(ctx)
		if serr != nil || !changed {
			break
		}
		o.log.Infof("commit hooks changed files, amending again")
		if aerr := g.AddAll(ctx); aerr != nil {
			break
		}
	}

	return stepError("running hooks on squash commit", err)
}
