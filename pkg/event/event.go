// Package event mediates the "commit needed" notification between the file
// watcher and the auto-commit worker.
package event

import "time"

// Signal is a binary condition: setting it several times before it is
// consumed leaves a single pending notification.
type Signal struct {
	C chan struct{}
}

// NewSignal creates a new, unset, Signal
func NewSignal() *Signal {
	return &Signal{
		C: make(chan struct{}, 1),
	}
}

// Set raises the signal. It never blocks.
func (s *Signal) Set() {
	select {
	case s.C <- struct{}{}:
	default:
	}
}

// Clear drops a pending notification, if any
func (s *Signal) Clear() {
	select {
	case <-s.C:
	default:
	}
}

// IsSet tells whether a notification is pending, without consuming it
func (s *Signal) IsSet() bool {
	return len(s.C) > 0
}

// Wait blocks until the signal is raised, stop is closed or the timeout
// expires, and tells whether the signal was raised. A raised signal is
// consumed (cleared) by Wait. A nil stop channel never fires.
func (s *Signal) Wait(stop <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.C:
		return true
	case <-stop:
		return false
	case <-timer.C:
		return false
	}
}
