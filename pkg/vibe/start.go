package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/session"
)

// Start begins a vibe session. From Idle, it resumes a vibe branch that is
// already checked out, or creates a new one from the latest base branch.
// Uncommitted changes block the start (Dirty). Starting while Vibing or
// Dirty changes nothing.
func (o *Orchestrator) Start(ctx context.Context) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "starting vibe session", false)

	root, g, err := o.open()
	if err != nil {
		return failure(err, "Error starting vibe session: %v", err)
	}

	switch s := o.Machine.Current().(type) {
	case session.Vibing:
		return alreadyVibing(s.Branch)
	case session.Dirty:
		return dirtyResult(s.Branch, s.Changes, true)
	default:
		return o.startFromIdle(ctx, root, g)
	}
}

func (o *Orchestrator) startFromIdle(ctx context.Context, root string, g *git.Repo) Result {
	current, err := g.CurrentBranch(ctx)
	if err != nil {
		return stepFailure(stepError("reading current branch", err))
	}

	// restarted server, still on the session branch
	if IsVibeBranch(current) {
		if _, err = o.beginSession(ctx, root, g, current, ""); err != nil {
			return startFailure(err)
		}
		return Result{
			OK:      true,
			State:   session.KindVibing,
			Branch:  current,
			Message: fmt.Sprintf("%s Started vibing! Reusing existing vibe branch '%s' and auto-committing changes on file modifications.", markStart, current),
		}
	}

	changed, changes, err := g.Status(ctx)
	if err != nil {
		return stepFailure(stepError("checking working tree status", err))
	}

	if changed {
		branch := current
		if branch == "" {
			branch = "unknown"
		}
		_, err = o.Machine.Transition(session.KindDirty, func(session.State) (session.State, error) {
			return session.Dirty{Branch: branch, Changes: changes}, nil
		})
		if err != nil {
			return failure(err, "Error starting vibe session: %v", err)
		}
		o.log.WithField("branch", branch).Info("Uncommitted changes are blocking the vibe session")
		return dirtyResult(branch, changes, false)
	}

	base, err := o.checkoutBase(ctx, g)
	if err != nil {
		serr := stepError("checking out main/master", err)
		return failure(serr, "Error: Could not checkout %s branch. Try manually switching to main first.\n%s",
			strings.Join(o.conf.BaseBranches, "/"), serr.Output)
	}

	var warnings []string
	if err = g.Pull(ctx, o.conf.Remote, base); err != nil {
		o.log.Warnf("failed to pull %s/%s: %v", o.conf.Remote, base, err)
		warnings = append(warnings, fmt.Sprintf("Could not pull latest %s from %s, starting from the local branch: %s",
			base, o.conf.Remote, outputOf(err)))
	}

	branch := o.newBranchName(ctx, g)
	if _, err = o.beginSession(ctx, root, g, branch, base); err != nil {
		return startFailure(err)
	}

	return Result{
		OK:       true,
		State:    session.KindVibing,
		Branch:   branch,
		Warnings: warnings,
		Message: fmt.Sprintf("%s Started vibing! Created branch '%s' from latest %s and auto-committing changes on file modifications.",
			markStart, branch, base),
	}
}

// StashAndVibe stashes uncommitted changes, then starts a session from the
// base branch. The stash is left for the user to restore.
func (o *Orchestrator) StashAndVibe(ctx context.Context) (res Result) {
	return o.resolveAndStart(ctx, "stash", func(g *git.Repo) (string, error) {
		if err := g.Stash(ctx, StashLabel); err != nil {
			return "", stepError("stashing changes", err)
		}
		return fmt.Sprintf("%s Your changes are stashed. Run 'git stash pop' after vibing to restore them.", markNote), nil
	})
}

// CommitAndVibe commits uncommitted changes as a WIP commit on the current
// branch, then starts a session from the base branch.
func (o *Orchestrator) CommitAndVibe(ctx context.Context) (res Result) {
	return o.resolveAndStart(ctx, "commit", func(g *git.Repo) (string, error) {
		if err := g.AddAll(ctx); err != nil {
			return "", stepError("adding changes", err)
		}
		if err := g.Commit(ctx, WIPMessage, false); err != nil {
			return "", stepError("committing changes", err)
		}
		return fmt.Sprintf("%s Your changes were committed as '%s'", markDone, WIPMessage), nil
	})
}

// resolveAndStart sets pending changes aside with resolve, forces Idle,
// and starts. Without pending changes it is a plain start.
func (o *Orchestrator) resolveAndStart(ctx context.Context, what string, resolve func(*git.Repo) (string, error)) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "starting vibe session", false)

	root, g, err := o.open()
	if err != nil {
		return failure(err, "Error: %v", err)
	}

	if v, ok := o.Machine.Current().(session.Vibing); ok {
		return alreadyVibing(v.Branch)
	}

	changed, _, err := g.Status(ctx)
	if err != nil {
		return stepFailure(stepError("checking working tree status", err))
	}

	var note string
	if changed {
		if note, err = resolve(g); err != nil {
			return startFailure(err)
		}
	} else {
		note = fmt.Sprintf("No changes to %s. Proceeding to start vibe session...", what)
	}

	// resolved, the Dirty state no longer holds
	o.Machine.Reset()

	res = o.startFromIdle(ctx, root, g)
	res.Notes = append(res.Notes, note)
	return res
}

// VibeFromHere starts a session on the current branch when it is a vibe
// branch, or on a new vibe branch forked from the current commit. There is
// no checkout of the base branch and no pull. Pending changes are committed
// right away.
func (o *Orchestrator) VibeFromHere(ctx context.Context) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "starting vibe session", false)

	if v, ok := o.Machine.Current().(session.Vibing); ok {
		return alreadyVibing(v.Branch)
	}

	root, g, err := o.open()
	if err != nil {
		return failure(err, "Error starting vibe session: %v", err)
	}

	current, err := g.CurrentBranch(ctx)
	if err != nil || current == "" {
		return failure(err, "Error: Could not determine current branch")
	}

	branch, from := current, ""
	if !IsVibeBranch(current) {
		branch, from = o.newBranchName(ctx, g), current
	}

	changed, _, err := g.Status(ctx)
	if err != nil {
		return stepFailure(stepError("checking working tree status", err))
	}

	v, err := o.beginSession(ctx, root, g, branch, from)
	if err != nil {
		return startFailure(err)
	}

	res = Result{OK: true, State: session.KindVibing, Branch: branch}
	if changed {
		v.Signal.Set()
		res.Message = fmt.Sprintf("%s Started vibing on branch '%s'! Existing uncommitted changes will be auto-committed shortly.", markStart, branch)
	} else {
		res.Message = fmt.Sprintf("%s Started vibing on branch '%s'! Auto-committing future changes.", markStart, branch)
	}

	return res
}

func startFailure(err error) Result {
	var serr *StepError
	if errors.As(err, &serr) {
		return stepFailure(serr)
	}
	return failure(err, "Error starting vibe session: %v", err)
}
