package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ReleaseTimeout bounds the wait on a Vibing session's resources
	ReleaseTimeout = 2 * time.Second

	// ErrReset is returned by a transition overtaken by a Reset
	ErrReset = errors.New("session was reset during the transition")
)

type logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Machine holds the current session state.
//
// Transitions are serialized, and run their build function without
// blocking readers: Current keeps returning the previous state until the
// new one is published. Reset never waits for a running transition.
type Machine struct {
	Logger  logger
	Timeout time.Duration

	txmu  sync.Mutex
	mu    sync.RWMutex
	state State
	gen   uint64
}

// New returns an Idle machine
func New(log logger, releaseTimeout time.Duration) *Machine {
	if releaseTimeout <= 0 {
		releaseTimeout = ReleaseTimeout
	}
	return &Machine{
		Logger:  log,
		Timeout: releaseTimeout,
		state:   Idle{},
	}
}

// Current returns the published state
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves the machine to a state of kind to, built by build from
// the current state. Illegal moves fail before build runs. If build fails,
// panics or returns a state of another kind, the current state is kept.
// When leaving Vibing, the session resources are released.
func (m *Machine) Transition(to Kind, build func(from State) (State, error)) (next State, err error) {
	m.txmu.Lock()
	defer m.txmu.Unlock()

	m.mu.RLock()
	from, gen := m.state, m.gen
	m.mu.RUnlock()

	if !Legal(from.Kind(), to) {
		return from, &InvalidTransitionError{From: from.Kind(), To: to}
	}

	defer func() {
		if r := recover(); r != nil {
			next, err = from, fmt.Errorf("transition from %s to %s aborted: %v", from.Kind(), to, r)
		}
	}()

	next, err = build(from)
	if err != nil {
		return from, err
	}

	if next == nil || next.Kind() != to {
		return from, fmt.Errorf("transition from %s to %s built a %v state", from.Kind(), to, next)
	}

	if !m.publish(gen, next) {
		// Reset already released from: only drop what build acquired
		if v, ok := next.(Vibing); ok {
			m.release(v)
		}
		return m.Current(), ErrReset
	}

	if v, ok := from.(Vibing); ok {
		m.release(v)
	}
	return next, nil
}

// Reset forces the machine to Idle whatever the current state, releasing
// a running session. It is meant for corruption recovery, failed stops and
// process termination. A transition running meanwhile fails with ErrReset.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.state
	m.state = Idle{}
	m.gen++
	m.mu.Unlock()

	if from.Kind() != KindIdle {
		m.Logger.Infof("Resetting session from %s to Idle", from.Kind())
	}
	if v, ok := from.(Vibing); ok {
		m.release(v)
	}
}

// publish installs next unless a Reset happened since generation gen
func (m *Machine) publish(gen uint64, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	m.state = next
	return true
}

func (m *Machine) release(v Vibing) {
	if v.Watch != nil {
		if err := v.Watch.Stop(m.Timeout); err != nil {
			// left behind, never fatal
			m.Logger.Warnf("failed to release session on %s: %v", v.Branch, err)
		}
	}
	if v.Signal != nil {
		v.Signal.Clear()
	}
}
