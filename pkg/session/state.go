// Package session holds the vibe session state machine.
//
// There is exactly one State per Machine. States are replaced atomically:
// an observer never sees a half built state, and a failed transition
// leaves the previous state in place.
package session

import (
	"fmt"
	"time"

	"github.com/bpineau/vibegit/pkg/event"
)

// Kind names a session state variant
type Kind int

// The three session states
const (
	KindIdle Kind = iota
	KindVibing
	KindDirty
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "Idle"
	case KindVibing:
		return "Vibing"
	case KindDirty:
		return "Dirty"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// State is one of Idle, Vibing or Dirty
type State interface {
	Kind() Kind
}

// Handle owns the background resources of a Vibing session
type Handle interface {
	Stop(timeout time.Duration) error
}

// Idle means no session is running
type Idle struct{}

// Kind implements State
func (Idle) Kind() Kind { return KindIdle }

// Vibing is an active auto-commit session on Branch. Watch and Signal are
// owned by the state and released when the machine leaves it.
type Vibing struct {
	Branch string
	Watch  Handle
	Signal *event.Signal
}

// Kind implements State
func (Vibing) Kind() Kind { return KindVibing }

// Dirty records a start attempt blocked by uncommitted changes
type Dirty struct {
	Branch  string
	Changes string
}

// Kind implements State
func (Dirty) Kind() Kind { return KindDirty }

// InvalidTransitionError reports an illegal state change
type InvalidTransitionError struct {
	From Kind
	To   Kind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition from %s to %s", e.From, e.To)
}

var legal = map[Kind][]Kind{
	KindIdle:   {KindVibing, KindDirty},
	KindVibing: {KindIdle},
	KindDirty:  {KindIdle, KindVibing},
}

// Legal tells whether the machine may move from one kind to another
func Legal(from, to Kind) bool {
	for _, k := range legal[from] {
		if k == to {
			return true
		}
	}
	return false
}
