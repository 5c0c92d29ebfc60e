// Package git wraps the git commands a vibe session needs (status, add,
// commit, branch handling, rebase, push, check-ignore) around a
// command.Runner bound to a repository root.
//
// It requires the git command in $PATH, since the pure Go git implementations
// aren't up to the task (hooks, rebase, credential helpers for push).
//
// All commands issued through a Repo are serialized: the auto-commit worker
// and the workflow operations never run git concurrently against the same
// working tree.
package git
