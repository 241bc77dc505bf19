package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a requested state change breaks the lifecycle rules.
var ErrInvalidTransition = errors.New("invalid state transition")

// StateChange is a planned state change for a single goal. It is applied to the
// store with a compare-and-set on From.
type StateChange struct {
	From         State
	To           State
	DateInit     *time.Time // Set when entering INITIATED
	DateComplete *time.Time // Set when entering COMPLETE
	Progress     *float64   // Raised to the target on explicit completion
	Expired      bool       // The deadline passed and the requested state was discarded
}

// Apply writes the change onto g.
func (c StateChange) Apply(g *Goal) {
	g.State = c.To
	if c.DateInit != nil {
		t := *c.DateInit
		g.DateInit = &t
	}
	if c.DateComplete != nil {
		t := *c.DateComplete
		g.DateComplete = &t
	}
	if c.Progress != nil {
		g.Progress = *c.Progress
	}
}

// ExpireChange plans the forced move to EXPIRED.
func ExpireChange(g *Goal) StateChange {
	return StateChange{From: g.State, To: StateExpired, Expired: true}
}

// CompleteChange plans the move into COMPLETE at now, keeping progress at or above the target.
func CompleteChange(g *Goal, now time.Time) StateChange {
	change := StateChange{From: g.State, To: StateComplete, DateComplete: &now}
	if g.Progress < g.QuantityTarget {
		target := g.QuantityTarget
		change.Progress = &target
	}
	return change
}

// PlanTransition decides what happens when requested is asked of g at now.
// An overdue deadline always wins: the goal is moved to EXPIRED and the request is dropped.
func PlanTransition(g *Goal, requested State, now time.Time) (StateChange, error) {
	// 1. Expiry first
	if g.IsExpiredAt(now) {
		return ExpireChange(g), nil
	}

	// 2. Absorbing states
	switch g.State {
	case StateComplete:
		return StateChange{}, fmt.Errorf("%w: goal already completed", ErrInvalidTransition)
	case StateExpired:
		return StateChange{}, fmt.Errorf("%w: goal expired", ErrInvalidTransition)
	}

	// 3. Requested state
	switch requested {
	case StateInitiated:
		if g.State == StateInitiated {
			return StateChange{}, fmt.Errorf("%w: goal already started", ErrInvalidTransition)
		}
		return StateChange{From: g.State, To: StateInitiated, DateInit: &now}, nil

	case StateComplete:
		return CompleteChange(g, now), nil

	case StateStopped:
		switch g.State {
		case StateNotInitiated:
			return StateChange{}, fmt.Errorf("%w: goal not started", ErrInvalidTransition)
		case StateStopped:
			return StateChange{}, fmt.Errorf("%w: goal already stopped", ErrInvalidTransition)
		}
		return StateChange{From: g.State, To: StateStopped}, nil

	default:
		return StateChange{}, fmt.Errorf("%w: cannot move goal to %s", ErrInvalidTransition, requested)
	}
}
