package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpineau/vibegit/pkg/event"
)

type mockLog struct{}

func (m *mockLog) Infof(format string, args ...interface{}) {}
func (m *mockLog) Warnf(format string, args ...interface{}) {}

type fakeHandle struct {
	sync.Mutex
	stops int
	err   error
}

func (h *fakeHandle) Stop(timeout time.Duration) error {
	h.Lock()
	defer h.Unlock()
	h.stops++
	return h.err
}

func (h *fakeHandle) count() int {
	h.Lock()
	defer h.Unlock()
	return h.stops
}

func returns(s State) func(State) (State, error) {
	return func(State) (State, error) { return s, nil }
}

func TestLegalTransitions(t *testing.T) {
	kinds := []Kind{KindIdle, KindVibing, KindDirty}
	allowed := map[[2]Kind]bool{
		{KindIdle, KindVibing}:  true,
		{KindIdle, KindDirty}:   true,
		{KindVibing, KindIdle}:  true,
		{KindDirty, KindIdle}:   true,
		{KindDirty, KindVibing}: true,
	}

	for _, from := range kinds {
		for _, dest := range kinds {
			assert.Equal(t, allowed[[2]Kind{from, dest}], Legal(from, dest), "%s -> %s", from, dest)
		}
	}
}

func TestTransition(t *testing.T) {
	m := New(new(mockLog), time.Second)
	assert.Equal(t, KindIdle, m.Current().Kind(), "machines start Idle")

	next, err := m.Transition(KindDirty, returns(Dirty{Branch: "main", Changes: " M a.go"}))
	require.NoError(t, err)
	assert.Equal(t, Dirty{Branch: "main", Changes: " M a.go"}, next)
	assert.Equal(t, next, m.Current())

	var seen State
	_, err = m.Transition(KindVibing, func(from State) (State, error) {
		seen = from
		return Vibing{Branch: "vibe-1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, KindDirty, seen.Kind(), "build receives the previous state")
	assert.Equal(t, "vibe-1", m.Current().(Vibing).Branch)
}

func TestInvalidTransition(t *testing.T) {
	m := New(new(mockLog), time.Second)
	_, err := m.Transition(KindVibing, returns(Vibing{Branch: "vibe-1"}))
	require.NoError(t, err)

	called := false
	_, err = m.Transition(KindDirty, func(State) (State, error) {
		called = true
		return Dirty{}, nil
	})

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, KindVibing, ite.From)
	assert.Equal(t, KindDirty, ite.To)
	assert.Contains(t, err.Error(), "Vibing")
	assert.Contains(t, err.Error(), "Dirty")
	assert.False(t, called, "illegal transitions never run their build function")
	assert.Equal(t, KindVibing, m.Current().Kind())

	_, err = m.Transition(KindVibing, returns(Vibing{Branch: "vibe-2"}))
	assert.Error(t, err, "Vibing -> Vibing is illegal")
	assert.Equal(t, "vibe-1", m.Current().(Vibing).Branch)
}

func TestFailedTransitionKeepsState(t *testing.T) {
	m := New(new(mockLog), time.Second)

	_, err := m.Transition(KindVibing, func(State) (State, error) {
		return nil, errors.New("checkout failed")
	})
	assert.EqualError(t, err, "checkout failed")
	assert.Equal(t, KindIdle, m.Current().Kind())

	_, err = m.Transition(KindVibing, func(State) (State, error) {
		panic("boom")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, KindIdle, m.Current().Kind())

	_, err = m.Transition(KindVibing, returns(Dirty{}))
	assert.Error(t, err, "a build returning the wrong kind fails")
	assert.Equal(t, KindIdle, m.Current().Kind())
}

func TestNoPartialStateVisible(t *testing.T) {
	m := New(new(mockLog), time.Second)
	inside := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = m.Transition(KindVibing, func(State) (State, error) {
			close(inside)
			<-proceed
			return Vibing{Branch: "vibe-1"}, nil
		})
	}()

	<-inside
	assert.Equal(t, KindIdle, m.Current().Kind(), "readers see the previous state while building")
	close(proceed)
	<-done
	assert.Equal(t, KindVibing, m.Current().Kind())
}

func TestLeavingVibingReleasesResources(t *testing.T) {
	m := New(new(mockLog), time.Second)
	h := &fakeHandle{}
	sig := event.NewSignal()

	_, err := m.Transition(KindVibing, returns(Vibing{Branch: "vibe-1", Watch: h, Signal: sig}))
	require.NoError(t, err)
	sig.Set()

	// a failed stop keeps the session and its resources
	_, err = m.Transition(KindIdle, func(State) (State, error) { return nil, errors.New("push failed") })
	assert.Error(t, err)
	assert.Equal(t, 0, h.count())

	_, err = m.Transition(KindIdle, returns(Idle{}))
	require.NoError(t, err)
	assert.Equal(t, 1, h.count())
	assert.False(t, sig.IsSet(), "the commit signal is cleared with the session")
}

func TestReset(t *testing.T) {
	m := New(new(mockLog), time.Second)
	m.Reset()
	assert.Equal(t, KindIdle, m.Current().Kind(), "resetting Idle is harmless")

	h := &fakeHandle{err: errors.New("timed out")}
	_, err := m.Transition(KindVibing, returns(Vibing{Branch: "vibe-1", Watch: h, Signal: event.NewSignal()}))
	require.NoError(t, err)

	m.Reset()
	assert.Equal(t, KindIdle, m.Current().Kind(), "release failures don't block the reset")
	assert.Equal(t, 1, h.count())

	_, err = m.Transition(KindDirty, returns(Dirty{Branch: "main"}))
	require.NoError(t, err)
	m.Reset()
	assert.Equal(t, KindIdle, m.Current().Kind())
}

func TestResetDoesNotWaitForTransitions(t *testing.T) {
	m := New(new(mockLog), time.Second)
	h := &fakeHandle{}
	_, err := m.Transition(KindVibing, returns(Vibing{Branch: "vibe-1", Watch: h, Signal: event.NewSignal()}))
	require.NoError(t, err)

	// a stop stuck on a slow push
	inside, proceed := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Transition(KindIdle, func(State) (State, error) {
			close(inside)
			<-proceed
			return Idle{}, nil
		})
		done <- err
	}()
	<-inside

	reset := make(chan struct{})
	go func() {
		m.Reset()
		close(reset)
	}()

	select {
	case <-reset:
	case <-time.After(time.Second):
		t.Fatal("Reset() waited for the running transition")
	}
	assert.Equal(t, KindIdle, m.Current().Kind())
	assert.Equal(t, 1, h.count())

	close(proceed)
	assert.True(t, errors.Is(<-done, ErrReset))
	assert.Equal(t, KindIdle, m.Current().Kind())
	assert.Equal(t, 1, h.count(), "the session is released once")
}

func TestResetDropsSessionsBuiltMeanwhile(t *testing.T) {
	m := New(new(mockLog), time.Second)
	h := &fakeHandle{}

	inside, proceed := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Transition(KindVibing, func(State) (State, error) {
			close(inside)
			<-proceed
			return Vibing{Branch: "vibe-1", Watch: h, Signal: event.NewSignal()}, nil
		})
		done <- err
	}()
	<-inside

	m.Reset()
	close(proceed)

	assert.True(t, errors.Is(<-done, ErrReset))
	assert.Equal(t, KindIdle, m.Current().Kind(), "a reset wins over a transition running meanwhile")
	assert.Equal(t, 1, h.count(), "the watcher started meanwhile is released")

	_, err := m.Transition(KindVibing, returns(Vibing{Branch: "vibe-2"}))
	assert.NoError(t, err, "the machine is usable after the reset")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Idle", KindIdle.String())
	assert.Equal(t, "Vibing", KindVibing.String())
	assert.Equal(t, "Dirty", KindDirty.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
