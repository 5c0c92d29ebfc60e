package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bpineau/vibegit/pkg/command"
)

var (
	// Binary is the git executable used by new repositories
	Binary = "git"

	// ErrGitOperationFailed is wrapped by every GitError
	ErrGitOperationFailed = errors.New("git operation failed")
)

// GitError reports a failed git invocation with its raw output
type GitError struct {
	Args   []string
	Output string
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed: %s", strings.Join(e.Args, " "), e.Output)
}

// Unwrap allows errors.Is(err, ErrGitOperationFailed)
func (e *GitError) Unwrap() error {
	return ErrGitOperationFailed
}

// Repo runs git commands in a repository working tree
type Repo struct {
	Dir    string
	Binary string
	runner command.Runner
	mu     *sync.Mutex
}

// New returns a Repo rooted at dir
func New(runner command.Runner, dir string) *Repo {
	return &Repo{
		Dir:    dir,
		Binary: Binary,
		runner: runner,
		mu:     &sync.Mutex{},
	}
}

// Run executes a git subcommand and returns its raw result
func (r *Repo) Run(ctx context.Context, args ...string) command.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runner.Run(ctx, r.Dir, r.Binary, args...)
}

// Git executes a git subcommand, converting failures to a *GitError
func (r *Repo) Git(ctx context.Context, args ...string) (string, error) {
	res := r.Run(ctx, args...)
	if !res.OK {
		return res.Output, &GitError{Args: args, Output: res.Output}
	}
	return res.Output, nil
}

// CurrentBranch returns the checked out branch name, empty on detached HEAD
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.Git(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Status tells whether the working tree has uncommitted changes, and
// returns the porcelain summary of those changes.
func (r *Repo) Status(ctx context.Context) (changed bool, summary string, err error) {
	out, err := r.Git(ctx, "status", "--porcelain")
	if err != nil {
		return false, "", err
	}

	summary = strings.TrimSpace(out)
	return summary != "", summary, nil
}

// IsIgnored asks git whether a path (relative to the root) is ignored.
// check-ignore exits 0 for ignored paths, 1 for tracked/unignored ones and
// 128 on errors; anything but 0 counts as "not ignored".
func (r *Repo) IsIgnored(ctx context.Context, path string) bool {
	return r.Run(ctx, "check-ignore", "-q", path).OK
}

// Checkout switches to an existing branch
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := r.Git(ctx, "checkout", branch)
	return err
}

// CreateBranch creates a branch from HEAD and checks it out
func (r *Repo) CreateBranch(ctx context.Context, branch string) error {
	_, err := r.Git(ctx, "checkout", "-b", branch)
	return err
}

// DeleteBranch force deletes a local branch
func (r *Repo) DeleteBranch(ctx context.Context, branch string) error {
	_, err := r.Git(ctx, "branch", "-D", branch)
	return err
}

// Pull fetches and merges a remote branch into the current one
func (r *Repo) Pull(ctx context.Context, remote, branch string) error {
	_, err := r.Git(ctx, "pull", remote, branch)
	return err
}

// AddAll stages every change under the working tree
func (r *Repo) AddAll(ctx context.Context) error {
	_, err := r.Git(ctx, "add", ".")
	return err
}

// Commit records the index. noVerify bypasses pre-commit and commit-msg hooks.
func (r *Repo) Commit(ctx context.Context, msg string, noVerify bool) error {
	args := []string{"commit", "-m", msg}
	if noVerify {
		args = append(args, "--no-verify")
	}
	_, err := r.Git(ctx, args...)
	return err
}

// AmendNoEdit amends the last commit, letting hooks run
func (r *Repo) AmendNoEdit(ctx context.Context) error {
	_, err := r.Git(ctx, "commit", "--amend", "--no-edit")
	return err
}

// MergeBase returns the best common ancestor of two commits
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := r.Git(ctx, "merge-base", a, b)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CountCommits counts the commits reachable from head but not from base
func (r *Repo) CountCommits(ctx context.Context, base, head string) (int, error) {
	out, err := r.Git(ctx, "rev-list", "--count", base+".."+head)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %v", out, err)
	}

	return n, nil
}

// ResetSoft moves HEAD to a commit, keeping the index and working tree
func (r *Repo) ResetSoft(ctx context.Context, commit string) error {
	_, err := r.Git(ctx, "reset", "--soft", commit)
	return err
}

// Rebase rebases the current branch onto another one
func (r *Repo) Rebase(ctx context.Context, onto string) (string, error) {
	return r.Git(ctx, "rebase", onto)
}

// RebaseAbort aborts an in-progress rebase
func (r *Repo) RebaseAbort(ctx context.Context) error {
	_, err := r.Git(ctx, "rebase", "--abort")
	return err
}

// ForcePush force pushes a branch and sets its upstream
func (r *Repo) ForcePush(ctx context.Context, remote, branch string) error {
	_, err := r.Git(ctx, "push", "-f", "-u", remote, branch)
	return err
}

// Stash stashes the working tree changes, untracked files included, under a label
func (r *Repo) Stash(ctx context.Context, label string) error {
	_, err := r.Git(ctx, "stash", "push", "--include-untracked", "-m", label)
	return err
}

// BranchExists tells whether a local branch exists
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	return r.Run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch).OK
}
