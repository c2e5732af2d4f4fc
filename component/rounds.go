package component

import (
	"fmt"
	"sync"
	"time"

	"github.com/c360/frontgate/errors"
)

// Round represents one discrete state of the component loading state machine.
type Round int

const (
	// RoundSetup loads and validates the component descriptor and assets
	RoundSetup Round = iota
	// RoundHealthcheck verifies the serving surfaces came up
	RoundHealthcheck
	// RoundDone is the terminal serving state (not a shutdown state)
	RoundDone
	// RoundError is the recoverable failure state
	RoundError
)

// String returns the string representation of the round
func (r Round) String() string {
	switch r {
	case RoundSetup:
		return "setup"
	case RoundHealthcheck:
		return "healthcheck"
	case RoundDone:
		return "done"
	case RoundError:
		return "error"
	default:
		return "unknown"
	}
}

// Trigger is the transition alphabet of the loading state machine.
type Trigger int

const (
	// TriggerDone signals the current round completed successfully
	TriggerDone Trigger = iota
	// TriggerError signals the current round failed
	TriggerError
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	switch t {
	case TriggerDone:
		return "done"
	case TriggerError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions is the full transition table. Done is terminal: the host stays
// there while serving traffic. Error recovers back to Setup on the next
// successful trigger.
var transitions = map[Round]map[Trigger]Round{
	RoundSetup: {
		TriggerDone:  RoundHealthcheck,
		TriggerError: RoundError,
	},
	RoundHealthcheck: {
		TriggerDone:  RoundDone,
		TriggerError: RoundError,
	},
	RoundError: {
		TriggerDone: RoundSetup,
	},
	RoundDone: {},
}

// Lifecycle drives component loading through discrete rounds. It owns the
// current round and the last transition timestamp; Fire is the only mutator.
type Lifecycle struct {
	mu             sync.RWMutex
	round          Round
	lastTransition time.Time
}

// NewLifecycle creates a loading state machine starting at the given round.
// Only Setup and Healthcheck are valid entry points.
func NewLifecycle(entry Round) (*Lifecycle, error) {
	if entry != RoundSetup && entry != RoundHealthcheck {
		return nil, errors.WrapInvalid(
			fmt.Errorf("round %s is not a valid entry point", entry),
			"Lifecycle", "NewLifecycle", "entry round validation")
	}
	return &Lifecycle{
		round:          entry,
		lastTransition: time.Now(),
	}, nil
}

// Round returns the current round.
func (l *Lifecycle) Round() Round {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.round
}

// LastTransition returns the timestamp of the most recent transition.
func (l *Lifecycle) LastTransition() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastTransition
}

// Serving reports whether the machine reached the terminal serving round.
func (l *Lifecycle) Serving() bool {
	return l.Round() == RoundDone
}

// Fire applies a trigger to the current round and advances the machine.
// Firing a trigger with no defined transition is an error and leaves the
// round unchanged.
func (l *Lifecycle) Fire(trigger Trigger) (Round, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, ok := transitions[l.round][trigger]
	if !ok {
		return l.round, errors.WrapInvalid(
			fmt.Errorf("no transition from %s on %s", l.round, trigger),
			"Lifecycle", "Fire", "transition lookup")
	}

	l.round = next
	l.lastTransition = time.Now()
	return next, nil
}
