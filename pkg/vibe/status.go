package vibe

import (
	"context"
	"fmt"

	"github.com/bpineau/vibegit/pkg/session"
)

// Status reports the session state, without touching git state. A Vibing
// session whose branch is no longer checked out is considered corrupted
// and reset to Idle.
func (o *Orchestrator) Status(ctx context.Context) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "checking status", false)

	root, g, err := o.open()
	if err != nil {
		return Result{
			Message: fmt.Sprintf("%s NOT INITIALIZED: Error checking repository status: %v", markNoRepo, err),
			Err:     err,
		}
	}

	current, err := g.CurrentBranch(ctx)
	if err != nil {
		return stepFailure(stepError("reading current branch", err))
	}

	var warnings []string

	switch s := o.Machine.Current().(type) {
	case session.Vibing:
		if current == s.Branch {
			return Result{
				OK:     true,
				State:  session.KindVibing,
				Branch: s.Branch,
				Message: fmt.Sprintf("%s VIBING: Active session on branch '%s' - auto-committing changes on file modifications",
					markVibing, s.Branch),
			}
		}
		o.log.Warnf("session branch %s is no longer checked out (on %q), resetting", s.Branch, current)
		o.Machine.Reset()
		warnings = append(warnings, fmt.Sprintf("Session on '%s' was reset: branch '%s' is checked out instead.", s.Branch, current))

	case session.Dirty:
		return Result{
			OK:     true,
			State:  session.KindDirty,
			Branch: s.Branch,
			Message: fmt.Sprintf("%s DIRTY: Uncommitted changes on branch '%s'. Choose commit_and_vibe(), stash_and_vibe(), or vibe_from_here().",
				markDirty, s.Branch),
		}
	}

	if IsVibeBranch(current) {
		res = Result{
			OK:       true,
			State:    session.KindIdle,
			Branch:   current,
			Warnings: warnings,
			Message: fmt.Sprintf("%s VIBE BRANCH DETECTED: On branch '%s' but session is idle. Call start_vibing() to resume or vibe_from_here() to restart watching.",
				markDirty, current),
		}
		if m := o.mirror(root); m != nil {
			if saved, err := m.Load(); err == nil && saved != nil && saved.Branch == current {
				res.Notes = append(res.Notes, fmt.Sprintf("%s A previous session on this branch started at %s.",
					markNote, saved.StartTime.Format("2006-01-02 15:04:05")))
			}
		}
		return res
	}

	return Result{
		OK:       true,
		State:    session.KindIdle,
		Branch:   current,
		Warnings: warnings,
		Message:  fmt.Sprintf("%s IDLE: Ready to start vibing. Call start_vibing() to begin!", markIdle),
	}
}

// CheckOrphanedSession inspects the session mirror left by a previous
// server. Stale mirrors are removed. It only logs and reports: nothing is
// checked out.
func (o *Orchestrator) CheckOrphanedSession(ctx context.Context) (res Result) {
	o.opmu.Lock()
	defer o.opmu.Unlock()
	defer o.protect(&res, "checking for orphaned sessions", false)

	root, g, err := o.open()
	if err != nil {
		return failure(err, "%v", err)
	}

	m := o.mirror(root)
	if m == nil {
		return Result{OK: true}
	}

	saved, err := m.Load()
	if err != nil || saved == nil {
		return Result{OK: true}
	}

	if m.IsStale(o.conf.StaleAfter) {
		o.log.Warnf("Removing stale vibe session on %s, started at %s", saved.Branch, saved.StartTime)
		if err := m.Delete(); err != nil {
			o.log.Warnf("failed to remove the stale session mirror: %v", err)
		}
		return Result{OK: true, Branch: saved.Branch, Message: fmt.Sprintf("Removed stale session on '%s'.", saved.Branch)}
	}

	current, _ := g.CurrentBranch(ctx)
	if current == saved.Branch {
		o.log.WithField("branch", saved.Branch).Info("Found a previous vibe session on the current branch: resume it with start_vibing")
		return Result{
			OK:      true,
			Branch:  saved.Branch,
			Message: fmt.Sprintf("Found a previous session on '%s'. Call start_vibing() to resume it.", saved.Branch),
		}
	}

	o.log.Warnf("Found an orphaned vibe session on %s (currently on %q)", saved.Branch, current)
	return Result{
		OK:     true,
		Branch: saved.Branch,
		Message: fmt.Sprintf("%s Found an orphaned session on '%s' while on '%s'. Check it out and call start_vibing() to resume it.",
			markWarn, saved.Branch, current),
	}
}
