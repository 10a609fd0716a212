// Package auto models autonomous maneuvers as single-use actions with a
// start, a per-cycle completion check and a cleanup, and runs them in order.
package auto

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

// Lifecycle violations. They indicate a bug in the caller.
var (
	ErrAlreadyStarted = errors.New("auto: action already started")
	ErrNotStarted     = errors.New("auto: action not started")
	ErrCompleted      = errors.New("auto: action completed")
)

// State is the lifecycle phase of an Action.
type State int

const (
	NotStarted State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Action is a cooperative task driven by an external loop.
// Transitions are NotStarted -> Running -> Completed, each once.
type Action struct {
	name  string
	clock clock.Clock

	onStart   func()
	onUpdate  func(start time.Time) bool
	onCleanup func()

	start time.Time
	state State
}

// New binds the callbacks. Nil callbacks are no-ops; a nil onUpdate
// completes on the first update. A nil clock uses the system clock.
func New(name string, clk clock.Clock, onStart func(), onUpdate func(start time.Time) bool, onCleanup func()) *Action {
	if clk == nil {
		clk = clock.New()
	}
	return &Action{
		name:      name,
		clock:     clk,
		onStart:   onStart,
		onUpdate:  onUpdate,
		onCleanup: onCleanup,
	}
}

// Timed returns an action that completes once d has elapsed since start.
func Timed(name string, clk clock.Clock, d time.Duration, onStart, onCleanup func()) *Action {
	a := New(name, clk, onStart, nil, onCleanup)
	a.onUpdate = func(start time.Time) bool {
		return a.clock.Since(start) >= d
	}
	return a
}

func (a *Action) Name() string { return a.name }

func (a *Action) State() State { return a.state }

// StartTime returns the latched start, zero before Start.
func (a *Action) StartTime() time.Time { return a.start }

// Elapsed returns the time since start, 0 before Start.
func (a *Action) Elapsed() time.Duration {
	if a.state == NotStarted {
		return 0
	}
	return a.clock.Since(a.start)
}

// Start latches the start time and runs onStart.
func (a *Action) Start() error {
	if a.state != NotStarted {
		return errors.Wrap(ErrAlreadyStarted, a.name)
	}
	a.start = a.clock.Now()
	a.state = Running
	debug.Action(a.name, "start")
	if a.onStart != nil {
		a.onStart()
	}
	return nil
}

// Update asks onUpdate whether the action is done. When it is, onCleanup
// runs and the action becomes Completed.
func (a *Action) Update() (bool, error) {
	switch a.state {
	case NotStarted:
		return false, errors.Wrap(ErrNotStarted, a.name)
	case Completed:
		return true, errors.Wrap(ErrCompleted, a.name)
	}
	if a.onUpdate != nil && !a.onUpdate(a.start) {
		return false, nil
	}
	return true, a.Cleanup()
}

// Poll starts the action on its first call and updates it on every call.
// Polling a completed action returns ErrCompleted.
func (a *Action) Poll() (bool, error) {
	if a.state == NotStarted {
		if err := a.Start(); err != nil {
			return false, err
		}
	}
	return a.Update()
}

// Cleanup runs onCleanup and completes a running action. It is also the
// cancellation path for an action that must stop early.
func (a *Action) Cleanup() error {
	switch a.state {
	case NotStarted:
		return errors.Wrap(ErrNotStarted, a.name)
	case Completed:
		return errors.Wrap(ErrCompleted, a.name)
	}
	a.state = Completed
	debug.Action(a.name, "cleanup")
	if a.onCleanup != nil {
		a.onCleanup()
	}
	return nil
}
