// Package run implements the vibe-git server lifecycle: guard the
// repository, start the services, serve the MCP tools and stop everything
// on termination.
package run

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bpineau/vibegit/config"
	"github.com/bpineau/vibegit/pkg/health"
	"github.com/bpineau/vibegit/pkg/lock"
	"github.com/bpineau/vibegit/pkg/repo"
	"github.com/bpineau/vibegit/pkg/session"
	"github.com/bpineau/vibegit/pkg/tools"
	"github.com/bpineau/vibegit/pkg/vibe"
)

// Run serves the MCP tools on stdin/stdout until stdin is closed or the
// process receives SIGTERM or SIGINT
func Run(conf *config.VgConfig, version string) error {
	return Serve(context.Background(), conf, version, os.Stdin, os.Stdout)
}

// Serve serves the MCP tools on in/out. A running session is stopped, and
// the state forced to Idle, before returning.
func Serve(parent context.Context, conf *config.VgConfig, version string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	flow := vibe.New(conf, nil, nil)

	root, err := repo.FindRoot(conf.RepoDir)
	if err != nil {
		conf.Logger.Warnf("%v: tools will report errors until run inside a repository", err)
	} else {
		gitDir, err := repo.GitDir(root)
		if err != nil {
			return err
		}

		lk, err := lock.Acquire(gitDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := lk.Release(); err != nil {
				conf.Logger.Warnf("failed to release %s: %v", lk.Path, err)
			}
		}()

		if res := flow.CheckOrphanedSession(ctx); !res.OK {
			conf.Logger.Warnf("failed to check for orphaned sessions: %s", res.Message)
		}
	}

	http, err := health.New(conf, func() session.Kind { return flow.Machine.Current().Kind() }).Start()
	if err != nil {
		return err
	}
	defer http.Stop()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)
	signal.Notify(sigterm, syscall.SIGINT)
	defer signal.Stop(sigterm)

	go func() {
		select {
		case sig := <-sigterm:
			conf.Logger.Infof("Received %s, shutting down", sig)
			// aborts the git and gh calls of a running operation
			cancel()
			flow.Shutdown()
		case <-ctx.Done():
		}
	}()

	err = tools.New(flow, version, conf.Logger).Serve(ctx, in, out)

	flow.Shutdown()

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
