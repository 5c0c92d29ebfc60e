package vibe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bpineau/vibegit/config"
	"github.com/bpineau/vibegit/pkg/command"
	"github.com/bpineau/vibegit/pkg/event"
	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/session"
)

type rule struct {
	prefix string
	res    command.Result
}

type trigger struct {
	prefix string
	add    rule
}

// scriptedRunner answers commands by prefix (latest rule wins), and
// records every invocation as "name arg1 arg2...".
type scriptedRunner struct {
	sync.Mutex
	rules    []rule
	triggers []trigger
	calls    []string
	hang     string
	hanging  chan struct{}
}

// after installs a rule once a command matching prefix ran
func (s *scriptedRunner) after(prefix, rulePrefix string, ok bool, out string) *scriptedRunner {
	s.Lock()
	defer s.Unlock()
	s.triggers = append(s.triggers, trigger{
		prefix: prefix,
		add:    rule{prefix: rulePrefix, res: command.Result{OK: ok, Output: out}},
	})
	return s
}

func (s *scriptedRunner) on(prefix string, ok bool, out string) *scriptedRunner {
	s.Lock()
	defer s.Unlock()
	s.rules = append(s.rules, rule{prefix: prefix, res: command.Result{OK: ok, Output: out}})
	return s
}

func (s *scriptedRunner) Run(ctx context.Context, dir, name string, args ...string) command.Result {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))

	s.Lock()
	s.calls = append(s.calls, line)

	if s.hang != "" && strings.HasPrefix(line, s.hang) {
		entered := s.hanging
		s.hang = ""
		s.Unlock()

		// like a stuck network call, until the context is cancelled
		close(entered)
		<-ctx.Done()
		return command.Result{Output: "signal: killed"}
	}
	defer s.Unlock()

	defer func() {
		for _, tr := range s.triggers {
			if strings.HasPrefix(line, tr.prefix) {
				s.rules = append(s.rules, tr.add)
			}
		}
	}()

	for i := len(s.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, s.rules[i].prefix) {
			return s.rules[i].res
		}
	}
	return command.Result{OK: true}
}

// hangOn blocks the next command matching prefix until its context is
// done. The returned channel is closed once that command runs.
func (s *scriptedRunner) hangOn(prefix string) <-chan struct{} {
	s.Lock()
	defer s.Unlock()
	s.hang, s.hanging = prefix, make(chan struct{})
	return s.hanging
}

func (s *scriptedRunner) reset() {
	s.Lock()
	defer s.Unlock()
	s.calls = nil
}

func (s *scriptedRunner) history() []string {
	s.Lock()
	defer s.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeForge struct {
	sync.Mutex
	url    string
	err    error
	panics bool
	titles []string
	bodies []string
}

func (f *fakeForge) Create(ctx context.Context, dir, title, body string) (string, error) {
	f.Lock()
	defer f.Unlock()
	if f.panics {
		panic("forge exploded")
	}
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return f.url, f.err
}

type fakeHandle struct {
	sync.Mutex
	stops int
}

func (h *fakeHandle) Stop(timeout time.Duration) error {
	h.Lock()
	defer h.Unlock()
	h.stops++
	return nil
}

func (h *fakeHandle) count() int {
	h.Lock()
	defer h.Unlock()
	return h.stops
}

// newFakeRepoDir returns a directory that looks like a repository root
func newFakeRepoDir(t *testing.T) string {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o700))
	return dir
}

// newScripted builds an orchestrator over a scripted runner, with a fake
// watcher, a fixed clock and the session mirror disabled.
func newScripted(t *testing.T) (*Orchestrator, *scriptedRunner, *fakeForge, *fakeHandle) {
	conf := config.FakeConfig(newFakeRepoDir(t))
	conf.NoMirror = true
	require.NoError(t, conf.Init())

	runner := &scriptedRunner{}
	runner.on("git rev-parse --verify", false, "")

	pr := &fakeForge{url: "https://github.com/o/r/pull/42"}
	h := &fakeHandle{}

	o := New(conf, runner, pr)
	o.now = func() time.Time { return time.Unix(1700000000, 0) }
	o.sleep = func(time.Duration) {}
	o.watch = func(string, *git.Repo, *event.Signal, func(string, time.Time)) (session.Handle, error) {
		return h, nil
	}

	return o, runner, pr, h
}
