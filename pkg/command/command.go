// Package command runs external programs (git, gh) with captured output.
//
// A Runner never fails with a Go error: any problem (missing binary,
// non-zero exit, I/O error) is reported as an unsuccessful Result carrying
// the most useful text we have. Retries are left to callers.
package command

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of a command execution
type Result struct {
	OK     bool
	Output string
}

// Runner executes a command in a working directory
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) Result
}

type logger interface {
	Debugf(format string, args ...interface{})
}

// Exec is the os/exec backed Runner
type Exec struct {
	// Timeout bounds every command. Zero means no timeout.
	Timeout time.Duration
	Logger  logger
}

// New returns an Exec runner
func New(log logger, timeout time.Duration) *Exec {
	return &Exec{
		Timeout: timeout,
		Logger:  log,
	}
}

// Run implements Runner. Output is the trimmed stdout when non-empty,
// the trimmed stderr otherwise.
func (e *Exec) Run(ctx context.Context, dir string, name string, args ...string) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) // #nosec
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()

	if e.Logger != nil {
		e.Logger.Debugf("%s %s (err=%v)", name, strings.Join(args, " "), err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = strings.TrimSpace(stderr.String())
	}

	if err != nil {
		if out == "" {
			out = err.Error()
		}
		return Result{OK: false, Output: out}
	}

	return Result{OK: true, Output: out}
}
