package auto

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

// Sequence runs actions one after the other, one Poll per control cycle.
// Only one action is active at a time.
type Sequence struct {
	name    string
	queue   []*Action
	active  *Action
	total   int
	started bool
}

func NewSequence(name string, actions ...*Action) *Sequence {
	s := &Sequence{name: name}
	s.Add(actions...)
	return s
}

func (s *Sequence) Name() string { return s.name }

// Add appends actions to the queue.
func (s *Sequence) Add(actions ...*Action) {
	s.queue = append(s.queue, actions...)
	s.total += len(actions)
}

// Active returns the running action, or nil between actions.
func (s *Sequence) Active() *Action { return s.active }

// Remaining counts the actions not yet completed, the active one included.
func (s *Sequence) Remaining() int {
	n := len(s.queue)
	if s.active != nil {
		n++
	}
	return n
}

// Len returns the number of actions ever added.
func (s *Sequence) Len() int { return s.total }

// Done reports whether every action has completed.
func (s *Sequence) Done() bool { return s.active == nil && len(s.queue) == 0 }

// Poll advances the active action by one cycle, starting the next queued
// action when none is active. It returns true once the queue is drained.
func (s *Sequence) Poll() (bool, error) {
	if !s.started {
		s.started = true
		debug.Section("Routine " + s.name)
	}
	if s.active == nil {
		if len(s.queue) == 0 {
			return true, nil
		}
		s.active = s.queue[0]
		s.queue = s.queue[1:]
		debug.Step(s.total-len(s.queue), s.active.Name())
	}

	finished, err := s.active.Poll()
	if err != nil {
		return false, err
	}
	if finished {
		s.active = nil
	}
	return s.Done(), nil
}

// Cancel cleans up the active action and drops the rest of the queue.
func (s *Sequence) Cancel() error {
	s.queue = nil
	a := s.active
	s.active = nil
	if a == nil || a.State() != Running {
		return nil
	}
	debug.Live("Routine %s cancelled during %s", s.name, a.Name())
	return a.Cleanup()
}

// Run polls the sequence every period until it is done or ctx is
// cancelled. On cancellation the active action is cleaned up.
func (s *Sequence) Run(ctx context.Context, clk clock.Clock, period time.Duration) error {
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(period)
	defer ticker.Stop()

	for {
		done, err := s.Poll()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			if err := s.Cancel(); err != nil {
				debug.Error(err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
