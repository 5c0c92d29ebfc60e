package vibe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/session"
)

// Marks prefixing the user facing messages
const (
	markError  = "❌"
	markWarn   = "⚠️"
	markNote   = "💡"
	markDone   = "✅"
	markLink   = "🔗"
	markStart  = "🚀"
	markStop   = "🏁"
	markVibing = "🟢"
	markDirty  = "🟡"
	markIdle   = "🔵"
	markNoRepo = "⚪"
)

// Result is the outcome of a workflow operation. Only OK is meant to be
// relied upon structurally: Message is written for humans and agents.
type Result struct {
	OK      bool
	Message string
	State   session.Kind

	Branch       string
	PRURL        string
	Squashed     int
	HadConflicts bool
	Warnings     []string
	Notes        []string

	// Err is the failure cause, when OK is false
	Err error
}

// String renders the message, then the pull request link, the warnings
// and the notes, one per line.
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Message)

	if r.PRURL != "" {
		fmt.Fprintf(&b, "\n\n%s PR: %s", markLink, r.PRURL)
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "\n%s %s", markWarn, w)
		}
	}

	for _, n := range r.Notes {
		fmt.Fprintf(&b, "\n\n%s", n)
	}

	return b.String()
}

func failure(err error, format string, args ...interface{}) Result {
	return Result{
		OK:      false,
		Message: fmt.Sprintf("%s %s", markError, fmt.Sprintf(format, args...)),
		Err:     err,
	}
}

func stepFailure(err *StepError) Result {
	return failure(err, "%s", err.Error())
}

func dirtyResult(branch, changes string, still bool) Result {
	again := ""
	if still {
		again = " still"
	}

	return Result{
		OK:     false,
		State:  session.KindDirty,
		Branch: branch,
		Message: fmt.Sprintf("%s Uncommitted changes%s detected on branch '%s'!\n\n", markWarn, again, branch) +
			"Choose one of these functions:\n" +
			"• commit_and_vibe() - Commit changes as 'WIP' then start from main\n" +
			"• stash_and_vibe() - Stash changes then start from main\n" +
			"• vibe_from_here() - Start vibing from current branch with changes\n" +
			"\nChanges:\n" + changes,
	}
}

func alreadyVibing(branch string) Result {
	return Result{
		OK:      true,
		State:   session.KindVibing,
		Branch:  branch,
		Message: "Already vibing! Session is active and auto-committing changes.",
	}
}

// outputOf extracts the raw command output of a git failure
func outputOf(err error) string {
	var ge *git.GitError
	if errors.As(err, &ge) {
		return ge.Output
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
