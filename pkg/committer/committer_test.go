package committer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpineau/vibegit/pkg/command"
	"github.com/bpineau/vibegit/pkg/event"
	"github.com/bpineau/vibegit/pkg/git"
	"github.com/bpineau/vibegit/pkg/git/gittest"
)

type mockLog struct{}

func (m *mockLog) Debugf(format string, args ...interface{}) {}
func (m *mockLog) Infof(format string, args ...interface{})  {}
func (m *mockLog) Errorf(format string, args ...interface{}) {}

type fakeRepo struct {
	sync.Mutex
	dirty     bool
	failAdd   bool
	statusErr error
	commits   []string
	noVerify  []bool
}

func (f *fakeRepo) Status(ctx context.Context) (bool, string, error) {
	f.Lock()
	defer f.Unlock()
	if f.statusErr != nil {
		return false, "", f.statusErr
	}
	return f.dirty, "", nil
}

func (f *fakeRepo) AddAll(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	if f.failAdd {
		return errors.New("index.lock exists")
	}
	return nil
}

func (f *fakeRepo) Commit(ctx context.Context, msg string, noVerify bool) error {
	f.Lock()
	defer f.Unlock()
	f.commits = append(f.commits, msg)
	f.noVerify = append(f.noVerify, noVerify)
	f.dirty = false
	return nil
}

func (f *fakeRepo) setDirty() {
	f.Lock()
	f.dirty = true
	f.Unlock()
}

func (f *fakeRepo) count() int {
	f.Lock()
	defer f.Unlock()
	return len(f.commits)
}

func TestCommitPending(t *testing.T) {
	repo := &fakeRepo{}
	var notified []string
	w := New(new(mockLog), repo, event.NewSignal(), 0, func(msg string, at time.Time) {
		notified = append(notified, msg)
	})
	w.now = func() time.Time { return time.Unix(1700000000, 0) }

	done, err := w.CommitPending(context.Background())
	assert.NoError(t, err)
	assert.False(t, done, "clean trees produce no empty commit")
	assert.Empty(t, repo.commits)

	repo.setDirty()
	done, err = w.CommitPending(context.Background())
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []string{"Auto-commit 1700000000"}, repo.commits)
	assert.Equal(t, []bool{true}, repo.noVerify, "auto-commits bypass hooks")
	assert.Equal(t, repo.commits, notified)

	repo.setDirty()
	repo.failAdd = true
	_, err = w.CommitPending(context.Background())
	assert.Error(t, err)

	repo.statusErr = errors.New("not a git repository")
	_, err = w.CommitPending(context.Background())
	assert.Error(t, err)
}

func TestWorkerLoop(t *testing.T) {
	repo := &fakeRepo{}
	sig := event.NewSignal()
	w := New(new(mockLog), repo, sig, 50*time.Millisecond, nil).Start()

	repo.setDirty()
	sig.Set()
	assert.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// failures are logged, and the loop keeps running
	repo.Lock()
	repo.dirty, repo.failAdd = true, true
	repo.Unlock()
	sig.Set()
	time.Sleep(150 * time.Millisecond)

	repo.Lock()
	repo.failAdd = false
	repo.Unlock()
	sig.Set()
	assert.Eventually(t, func() bool { return repo.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, w.Stop(time.Second))
	assert.NoError(t, w.Stop(time.Second), "stopping twice is harmless")

	repo.setDirty()
	sig.Set()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, repo.count(), "a stopped worker doesn't commit")
}

func TestPause(t *testing.T) {
	repo := &fakeRepo{}
	sig := event.NewSignal()
	w := New(new(mockLog), repo, sig, 50*time.Millisecond, nil)

	w.Pause()
	repo.setDirty()
	done, err := w.CommitPending(context.Background())
	assert.NoError(t, err)
	assert.False(t, done, "paused workers don't commit")
	assert.Equal(t, 0, repo.count())

	w.Resume()
	assert.True(t, sig.IsSet(), "a commit skipped while paused is replayed")

	w.Pause()
	w.Resume()
	sig.Clear()
	w.Resume()
	assert.False(t, sig.IsSet(), "nothing to replay")

	done, err = w.CommitPending(context.Background())
	assert.NoError(t, err)
	assert.True(t, done)
}

func TestWorkerStopIsPrompt(t *testing.T) {
	w := New(new(mockLog), &fakeRepo{}, event.NewSignal(), time.Hour, nil).Start()

	start := time.Now()
	assert.NoError(t, w.Stop(time.Second))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestWorkerWithGit(t *testing.T) {
	if !gittest.HasGit() {
		t.Skip("git not found, skipping")
	}

	dir := gittest.NewRepo(t)
	gittest.Git(t, dir, "checkout", "-q", "-b", "vibe-1")

	// a failing pre-commit hook must not block auto-commits
	hook := filepath.Join(dir, ".git", "hooks", "pre-commit")
	require.NoError(t, os.MkdirAll(filepath.Dir(hook), 0o755))
	require.NoError(t, os.WriteFile(hook, []byte("#!/bin/sh\nexit 1\n"), 0o755)) // #nosec

	repo := git.New(command.New(nil, 0), dir)
	sig := event.NewSignal()
	w := New(new(mockLog), repo, sig, 50*time.Millisecond, nil).Start()
	defer func() { _ = w.Stop(time.Second) }()

	gittest.WriteFile(t, dir, "feature.go", "package feature\n")
	sig.Set()

	assert.Eventually(t, func() bool {
		return strings.HasPrefix(gittest.Git(t, dir, "log", "-1", "--format=%s"), "Auto-commit ")
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "", gittest.Git(t, dir, "status", "--porcelain"))
}
