// Package forge opens pull requests through the GitHub CLI.
package forge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bpineau/vibegit/pkg/command"
)

var (
	// Binary is the default GitHub CLI executable
	Binary = "gh"

	// ErrToolUnavailable is returned when the CLI is missing or failed
	ErrToolUnavailable = errors.New("pull request tool unavailable")
)

// GitHub creates pull requests with `gh pr create`
type GitHub struct {
	Binary string
	runner command.Runner

	lookPath func(file string) (string, error)
}

// New returns a GitHub client using binary (default "gh")
func New(runner command.Runner, binary string) *GitHub {
	if binary == "" {
		binary = Binary
	}
	return &GitHub{
		Binary:   binary,
		runner:   runner,
		lookPath: exec.LookPath,
	}
}

// Available tells whether the CLI can be found
func (g *GitHub) Available() bool {
	_, err := g.lookPath(g.Binary)
	return err == nil
}

// Create opens a pull request for the current branch of the repository in
// dir, and returns its url. Every failure wraps ErrToolUnavailable.
func (g *GitHub) Create(ctx context.Context, dir, title, body string) (string, error) {
	if !g.Available() {
		return "", fmt.Errorf("%w: %s not found in PATH", ErrToolUnavailable, g.Binary)
	}

	res := g.runner.Run(ctx, dir, g.Binary, "pr", "create", "--title", title, "--body", body)
	if !res.OK {
		return "", fmt.Errorf("%w: %s pr create: %s", ErrToolUnavailable, g.Binary, res.Output)
	}

	url := strings.TrimSpace(res.Output)
	if url == "" {
		return "", fmt.Errorf("%w: %s pr create returned no url", ErrToolUnavailable, g.Binary)
	}

	// gh may print notices before the url
	if i := strings.LastIndex(url, "\n"); i >= 0 {
		url = strings.TrimSpace(url[i+1:])
	}

	return url, nil
}

// ParseMessage splits a commit message into a pull request title (its
// first line) and body (the whole message).
func ParseMessage(msg string) (title, body string) {
	trimmed := strings.TrimSpace(msg)
	title = trimmed
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		title = strings.TrimSpace(trimmed[:i])
	}
	return title, msg
}
